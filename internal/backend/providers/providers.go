// Package providers builds the backend registry from configuration.
package providers

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend/edge"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend/gtts"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend/llama"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend/openai"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend/piper"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend/whisper"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/envvar"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/xfs"
)

// NewRegistry registers every configured backend. A backend that cannot be
// created is skipped and reported in the joined error; the registry still
// holds the rest.
func NewRegistry(cfg config.BackendsConfig, servers *backend.ServerManager) (*backend.Registry, error) {
	registry := backend.NewRegistry()
	var errs []error

	register := func(b backend.Backend, err error) {
		if err == nil {
			err = registry.Register(b)
		}
		if err != nil {
			errs = append(errs, err)
			return
		}
		slog.Info("Backend registered", "provider", b.Provider(), "tasks", b.Tasks())
	}

	if c := cfg.WhisperCPP; c != nil {
		b, err := whisper.NewBackend(whisper.Options{
			ServerManager: servers,
			BinPath:       xfs.ExpandTilde(c.BinPath),
			URL:           c.URL,
			Port:          c.Port,
			Timeout:       c.Timeout.Std(),
		})
		register(b, wrap(backend.BackendProviderWhisperCPP, err))
	}

	if c := cfg.LlamaCPP; c != nil {
		b, err := llama.NewBackend(xfs.ExpandTilde(c.BinPath), c.Timeout.Std())
		register(b, wrap(backend.BackendProviderLlamaCPP, err))
	}

	if c := cfg.Piper; c != nil {
		b, err := piper.NewBackend(xfs.ExpandTilde(c.BinPath), c.Timeout.Std())
		register(b, wrap(backend.BackendProviderPiper, err))
	}

	if c := cfg.OpenAI; c != nil {
		keyEnv := c.APIKeyEnv
		if keyEnv == "" {
			keyEnv = envvar.OpenAIAPIKey
		}
		key := os.Getenv(keyEnv)
		if key == "" {
			slog.Warn("OpenAI API key is not set", "env", keyEnv)
		}
		register(openai.NewBackend(openai.Options{
			APIKey:  key,
			BaseURL: c.BaseURL,
			Timeout: c.Timeout.Std(),
		}), nil)
	}

	if c := cfg.Edge; c != nil {
		register(edge.NewBackend(c.Voices), nil)
	}

	if c := cfg.GTTS; c != nil {
		register(gtts.NewBackend(c.BaseURL, c.Timeout.Std()), nil)
	}

	return registry, errors.Join(errs...)
}

func wrap(provider backend.BackendProvider, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("backend %s: %w", provider, err)
}
