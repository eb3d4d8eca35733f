package model

import (
	"sync"
	"time"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
)

// ModelType is the pipeline stage a model serves.
type ModelType string

const (
	// ModelTypeSTT is the type of a speech-to-text model.
	ModelTypeSTT ModelType = "stt"

	// ModelTypeTranslate is the type of a text translation model.
	ModelTypeTranslate ModelType = "translate"

	// ModelTypeTTS is the type of a text-to-speech model.
	ModelTypeTTS ModelType = "tts"
)

// ModelStatus is the current loading status of a model.
type ModelStatus string

const (
	// ModelStatusUnloaded indicates that the model is registered but not in use yet.
	ModelStatusUnloaded ModelStatus = "unloaded"

	// ModelStatusLoaded indicates that the model is ready to serve requests.
	ModelStatusLoaded ModelStatus = "loaded"

	// ModelStatusFailed indicates that the model could not be prepared.
	ModelStatusFailed ModelStatus = "failed"
)

// ModelInstance is a configured model resolved to something a backend can run:
// a local path for downloaded models or a remote model name.
type ModelInstance struct {
	Config   *config.ModelConfig `json:"-"`
	LoadedAt *time.Time          `json:"loaded_at,omitempty"`
	ID       string              `json:"id"`
	Type     ModelType           `json:"type"`
	Backend  string              `json:"backend"`
	Path     string              `json:"-"`
	Status   ModelStatus         `json:"status"`
	Error    string              `json:"error,omitempty"`
	mu       sync.RWMutex
}

// NewModelInstance creates a new model instance.
func NewModelInstance(cfg *config.ModelConfig, id, path string) *ModelInstance {
	return &ModelInstance{
		Config:  cfg,
		ID:      id,
		Type:    ModelType(cfg.Type),
		Backend: cfg.Backend,
		Path:    path,
		Status:  ModelStatusUnloaded,
	}
}

// SetStatus sets the status of the model instance.
func (mi *ModelInstance) SetStatus(status ModelStatus) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.Status = status
	if status == ModelStatusLoaded {
		now := time.Now()
		mi.LoadedAt = &now
	}
}

// SetError marks the instance failed with err.
func (mi *ModelInstance) SetError(err error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.Status = ModelStatusFailed
	mi.Error = err.Error()
}

// CurrentStatus returns the status under lock.
func (mi *ModelInstance) CurrentStatus() ModelStatus {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	return mi.Status
}

// Parameters returns the configured inference parameters, never nil.
func (mi *ModelInstance) Parameters() map[string]any {
	if mi.Config == nil || mi.Config.Parameters == nil {
		return map[string]any{}
	}
	return mi.Config.Parameters
}

// CurrentError returns the failure message under lock.
func (mi *ModelInstance) CurrentError() string {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	return mi.Error
}
