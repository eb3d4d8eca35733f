package model

import (
	"sort"
	"sync"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
)

// Registry stores loaded model instances.
type Registry struct {
	models map[string]*ModelInstance
	config *config.Config
	mu     sync.RWMutex
}

// NewRegistry creates a new model registry.
func NewRegistry(config *config.Config) *Registry {
	return &Registry{
		models: make(map[string]*ModelInstance),
		config: config,
	}
}

// Set adds a model instance to the registry.
func (r *Registry) Set(instance *ModelInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[instance.ID] = instance
}

// Get returns the model instance with the given ID.
func (r *Registry) Get(id string) (*ModelInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.models[id]
	return instance, ok
}

// List returns all model instances sorted by ID.
func (r *Registry) List() []*ModelInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]*ModelInstance, 0, len(r.models))
	for _, instance := range r.models {
		instances = append(instances, instance)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].ID < instances[j].ID })

	return instances
}

// Delete deletes the model instance with the given ID.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.models, id)
}

// Assigned returns the usable models assigned to a service, ordered by their
// configured order and then by their position in the assignment list.
func (r *Registry) Assigned(kind ModelType) []*ModelInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.config == nil {
		return nil
	}

	var ids []string
	switch kind {
	case ModelTypeSTT:
		ids = r.config.Services.STT.Models
	case ModelTypeTranslate:
		ids = r.config.Services.Translate.Models
	case ModelTypeTTS:
		ids = r.config.Services.TTS.Models
	}

	out := make([]*ModelInstance, 0, len(ids))
	for _, id := range ids {
		instance, ok := r.models[id]
		if !ok || instance.Type != kind || instance.CurrentStatus() == ModelStatusFailed {
			continue
		}
		out = append(out, instance)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Config.Order < out[j].Config.Order
	})

	return out
}

// Config returns the config the registry was built from.
func (r *Registry) Config() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.config
}
