package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/config/source"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/envvar"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/xfs"
)

// DownloaderFactory returns the downloader for a model source type.
type DownloaderFactory func(ctx context.Context, sourceType config.SourceType) (source.Downloader, error)

// Manager orchestrates model lifecycle for every pipeline stage.
type Manager struct {
	registry      *Registry
	getDownloader DownloaderFactory
	mu            sync.RWMutex
}

// NewManager creates a new Manager backed by the default downloaders.
func NewManager() *Manager {
	return NewManagerWithDownloaders(source.GetDownloader)
}

// NewManagerWithDownloaders creates a Manager with a custom downloader factory.
func NewManagerWithDownloaders(factory DownloaderFactory) *Manager {
	return &Manager{getDownloader: factory}
}

// Registry returns the current model registry, or nil before the first load.
func (m *Manager) Registry() *Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.registry
}

// LoadModelsFromConfig prepares every assigned model and swaps in a new registry.
// Models that fail to prepare stay in the registry marked failed, and the
// returned error joins every failure.
func (m *Manager) LoadModelsFromConfig(ctx context.Context, cfg *config.Config) error {
	registry := NewRegistry(cfg)

	modelsPath := resolveModelsPath(cfg)
	needsDownload := false
	for _, id := range cfg.Services.AssignedModels() {
		if mc, ok := cfg.Models[id]; ok && mc.Source.HuggingFace != nil {
			needsDownload = true
			break
		}
	}
	if needsDownload {
		if err := source.EnsureModelsDirectory(modelsPath); err != nil {
			return fmt.Errorf("failed to prepare models directory %s: %w", modelsPath, err)
		}
	}

	var errs []error
	seen := make(map[string]bool)
	for _, modelID := range cfg.Services.AssignedModels() {
		if seen[modelID] {
			continue
		}
		seen[modelID] = true

		modelConfig, ok := cfg.Models[modelID]
		if !ok {
			slog.Warn("Model not found in config", "model_id", modelID)
			errs = append(errs, fmt.Errorf("%w: %s", ErrNotFound, modelID))
			continue
		}

		instance, err := m.prepare(ctx, modelID, &modelConfig, modelsPath)
		if err != nil {
			slog.Error("Failed to prepare model", "model_id", modelID, "error", err)
			instance = NewModelInstance(&modelConfig, modelID, "")
			instance.SetError(err)
			errs = append(errs, fmt.Errorf("model %s: %w", modelID, err))
		} else {
			instance.SetStatus(ModelStatusLoaded)
			slog.Info("Model loaded into registry", "model_id", modelID, "backend", modelConfig.Backend, "path", instance.Path)
		}
		registry.Set(instance)
	}

	m.mu.Lock()
	m.registry = registry
	m.mu.Unlock()

	return errors.Join(errs...)
}

// prepare downloads the model when it has a source and resolves its path.
func (m *Manager) prepare(ctx context.Context, id string, mc *config.ModelConfig, modelsPath string) (*ModelInstance, error) {
	src, err := mc.GetSource()
	if errors.Is(err, config.ErrNoSource) {
		// Remote model: the backend addresses it by name.
		name := mc.Name
		if name == "" {
			name = id
		}
		return NewModelInstance(mc, id, name), nil
	}
	if err != nil {
		return nil, err
	}

	downloader, err := m.getDownloader(ctx, src.Type())
	if err != nil {
		return nil, fmt.Errorf("failed to get downloader: %w", err)
	}

	downloadPath, _, err := downloader.Download(ctx, mc, modelsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to download into %s: %w", modelsPath, err)
	}

	path := downloadPath
	if mc.Name != "" {
		candidate := filepath.Join(downloadPath, mc.Name)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		} else {
			slog.Warn("Configured model file not found in download, using repository path",
				"model_id", id, "name", mc.Name, "path", downloadPath)
		}
	}

	return NewModelInstance(mc, id, path), nil
}

// resolveModelsPath returns the path to the models directory.
// Precedence:
// 1. SEAMLESS_MODELS_PATH environment variable.
// 2. ModelsDir field in the config.
// 3. Default models path.
func resolveModelsPath(cfg *config.Config) string {
	if p := os.Getenv(envvar.SeamlessModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if cfg.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(cfg.Storage.ModelsDir)
	}
	return xfs.ExpandTilde(config.DefaultModelsPath())
}
