package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/model"
)

// Models exposes the current model registry. *model.Manager implements it;
// the registry is swapped on config reload, so services look it up per call.
type Models interface {
	Registry() *model.Registry
}

// SpeechRecognizer turns an audio file into a transcription.
type SpeechRecognizer interface {
	Transcribe(ctx context.Context, audioPath string) (Transcription, error)
}

// TextTranslator translates text between two language codes.
// Implementations must be safe for concurrent use.
type TextTranslator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// SpeechSynthesizer speaks text and returns the path of the written audio file.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, lang string) (string, error)
}

// binding is a model resolved together with the backend that runs it.
type binding struct {
	model     *model.ModelInstance
	backend   backend.Backend
	modelPath string
	config    *config.Config
}

type resolver struct {
	backends *backend.Registry
	models   Models
}

// resolve picks the first usable model assigned to kind.
func (r resolver) resolve(kind model.ModelType) (*binding, error) {
	registry := r.models.Registry()
	if registry == nil {
		return nil, model.ErrNotConfigured
	}

	assigned := registry.Assigned(kind)
	if len(assigned) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoModelAssigned, kind)
	}
	m := assigned[0]

	b, ok := r.backends.Get(backend.BackendProvider(m.Backend))
	if !ok {
		return nil, fmt.Errorf("%w: %s (model %s)", backend.ErrNotFound, m.Backend, m.ID)
	}

	path := m.Path
	if locator, ok := b.(backend.ModelLocator); ok {
		if _, err := os.Stat(path); err == nil {
			resolved, err := locator.ResolveModelPath(path)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve model %s: %w", m.ID, err)
			}
			path = resolved
		}
	}

	return &binding{
		model:     m,
		backend:   b,
		modelPath: path,
		config:    registry.Config(),
	}, nil
}

// withTimeout bounds ctx by d; zero means no stage limit.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func mergeParams(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
