package service

import (
	"bytes"
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/model"
)

type MockBackend struct {
	mock.Mock
	provider backend.BackendProvider
}

func (m *MockBackend) Provider() backend.BackendProvider { return m.provider }

func (m *MockBackend) Tasks() []backend.Task {
	return []backend.Task{backend.TaskTranscribe, backend.TaskTranslate, backend.TaskSynthesize}
}

func (m *MockBackend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	var input string
	if req.Input != nil {
		b, _ := io.ReadAll(req.Input)
		input = string(b)
	}
	args := m.Called(req.Task, input, req.Parameters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.Response), args.Error(1)
}

func (m *MockBackend) Close() error { return nil }

func textResponse(s, format string) *backend.Response {
	return &backend.Response{
		Output:   bytes.NewReader([]byte(s)),
		Metadata: &backend.ResponseMetadata{Format: format},
	}
}

type staticModels struct {
	registry *model.Registry
}

func (s staticModels) Registry() *model.Registry { return s.registry }

// newFixture registers one mock backend serving a model for every stage.
func newFixture(cfg *config.Config) (*MockBackend, *backend.Registry, Models) {
	mb := &MockBackend{provider: "mock"}
	backends := backend.NewRegistry()
	_ = backends.Register(mb)

	cfg.Models = map[string]config.ModelConfig{
		"stt-model":       {Type: "stt", Backend: "mock"},
		"translate-model": {Type: "translate", Backend: "mock"},
		"tts-model":       {Type: "tts", Backend: "mock"},
	}
	cfg.Services.STT.Models = []string{"stt-model"}
	cfg.Services.Translate.Models = []string{"translate-model"}
	cfg.Services.TTS.Models = []string{"tts-model"}

	registry := model.NewRegistry(cfg)
	for id, mc := range cfg.Models {
		instance := model.NewModelInstance(&mc, id, id)
		instance.SetStatus(model.ModelStatusLoaded)
		registry.Set(instance)
	}

	return mb, backends, staticModels{registry}
}
