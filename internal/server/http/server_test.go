package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/model"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/service"
)

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, audioPath, sourceLang, targetLang string) (*service.Result, error) {
	args := m.Called(audioPath, sourceLang, targetLang)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Result), args.Error(1)
}

type staticModels struct {
	registry *model.Registry
}

func (s staticModels) Registry() *model.Registry { return s.registry }

func newTestServer(t *testing.T, p Processor, mutate func(*config.Config)) (*Server, *config.Config) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Uploads.Dir = t.TempDir()
	cfg.Output.Dir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	return New(Options{
		Pipeline: p,
		Models:   staticModels{model.NewRegistry(cfg)},
		Config:   func() *config.Config { return cfg },
	}), cfg
}

// multipartBody builds a form with an optional audio file and extra fields.
func multipartBody(t *testing.T, audio []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if audio != nil {
		fw, err := w.CreateFormFile("audio", "clip.wav")
		require.NoError(t, err)
		_, err = fw.Write(audio)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func postTranslate(t *testing.T, s *Server, audio []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, audio, fields)
	req := httptest.NewRequest(http.MethodPost, "/translate", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTranslate_MissingAudio(t *testing.T) {
	withoutAudio, withoutAudioType := multipartBody(t, nil, map[string]string{"target_lang": "fr"})

	var renamed bytes.Buffer
	mw := multipart.NewWriter(&renamed)
	part, err := mw.CreateFormFile("file", "speech.wav")
	require.NoError(t, err)
	_, _ = part.Write([]byte("RIFF-audio"))
	require.NoError(t, mw.Close())

	tests := []struct {
		name        string
		contentType string
		body        io.Reader
	}{
		{"no body", "", nil},
		{"empty multipart", "multipart/form-data; boundary=xyz", strings.NewReader("")},
		{"multipart without boundary", "multipart/form-data", strings.NewReader("audio")},
		{"urlencoded", "application/x-www-form-urlencoded", strings.NewReader("source_lang=en&target_lang=fr")},
		{"json", "application/json", strings.NewReader(`{"audio": "abc"}`)},
		{"multipart without audio", withoutAudioType, withoutAudio},
		{"wrong field name", mw.FormDataContentType(), &renamed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(MockProcessor)
			s, _ := newTestServer(t, p, nil)

			req := httptest.NewRequest(http.MethodPost, "/translate", tt.body)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error": "No audio file provided."}`, rec.Body.String())
			p.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestTranslate_Success(t *testing.T) {
	p := new(MockProcessor)
	s, cfg := newTestServer(t, p, nil)

	var uploaded string
	p.On("Process", mock.AnythingOfType("string"), "en", "fr").
		Run(func(args mock.Arguments) {
			uploaded = args.String(0)
			data, err := os.ReadFile(uploaded)
			require.NoError(t, err)
			assert.Equal(t, "RIFF-audio", string(data))
		}).
		Return(&service.Result{AudioPath: "translated_fr_1234.mp3"}, nil)

	rec := postTranslate(t, s, []byte("RIFF-audio"), nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"translated_audio": "translated_fr_1234.mp3"}`, rec.Body.String())
	assert.Equal(t, cfg.Uploads.Dir, filepath.Dir(uploaded))
	assert.Equal(t, ".wav", filepath.Ext(uploaded))
	assert.FileExists(t, uploaded)
	p.AssertExpectations(t)
}

func TestTranslate_ConfiguredDefaultsAndOverrides(t *testing.T) {
	p := new(MockProcessor)
	s, _ := newTestServer(t, p, func(cfg *config.Config) {
		cfg.Pipeline.DefaultSourceLang = "de"
		cfg.Pipeline.DefaultTargetLang = "es"
	})
	p.On("Process", mock.Anything, "de", "es").Return(&service.Result{AudioPath: "translated_es.mp3"}, nil).Once()
	p.On("Process", mock.Anything, "it", "ja").Return(&service.Result{AudioPath: "translated_ja.mp3"}, nil).Once()

	assert.Equal(t, http.StatusOK, postTranslate(t, s, []byte("a"), nil).Code)
	assert.Equal(t, http.StatusOK, postTranslate(t, s, []byte("a"), map[string]string{
		"source_lang": "it",
		"target_lang": "ja",
	}).Code)
	p.AssertExpectations(t)
}

func TestTranslate_RepeatedRequests(t *testing.T) {
	p := new(MockProcessor)
	s, _ := newTestServer(t, p, nil)
	p.On("Process", mock.Anything, "en", "fr").Return(&service.Result{AudioPath: "translated_fr.mp3"}, nil)

	for i := range 3 {
		rec := postTranslate(t, s, []byte("same clip"), map[string]string{"source_lang": "en", "target_lang": "fr"})
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
	p.AssertNumberOfCalls(t, "Process", 3)
}

func TestTranslate_CleanupUploads(t *testing.T) {
	p := new(MockProcessor)
	s, cfg := newTestServer(t, p, func(cfg *config.Config) { cfg.Uploads.Cleanup = true })
	p.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(&service.Result{AudioPath: "out.mp3"}, nil)

	rec := postTranslate(t, s, []byte("a"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries, err := os.ReadDir(cfg.Uploads.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTranslate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "unintelligible",
			err:     &service.TranscriptionError{Transcription: service.Transcription{Status: service.TranscriptionUnintelligible}},
			status:  http.StatusUnprocessableEntity,
			message: "Could not understand audio",
		},
		{
			name: "recognizer unreachable",
			err: &service.TranscriptionError{Transcription: service.Transcription{
				Status: service.TranscriptionRequestFailed,
				Err:    errors.New("connection refused"),
			}},
			status:  http.StatusUnprocessableEntity,
			message: "Could not request results; connection refused",
		},
		{
			name:    "no model",
			err:     fmt.Errorf("%w: tts", service.ErrNoModelAssigned),
			status:  http.StatusServiceUnavailable,
			message: "no usable model assigned to service: tts",
		},
		{
			name:    "backend missing",
			err:     fmt.Errorf("%w: piper", backend.ErrNotFound),
			status:  http.StatusServiceUnavailable,
			message: "backend not found in registry: piper",
		},
		{
			name:    "timeout",
			err:     fmt.Errorf("translate with qwen: %w", context.DeadlineExceeded),
			status:  http.StatusGatewayTimeout,
			message: "processing timed out: translate with qwen: context deadline exceeded",
		},
		{
			name:    "other",
			err:     errors.New("disk full"),
			status:  http.StatusInternalServerError,
			message: "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(MockProcessor)
			s, _ := newTestServer(t, p, nil)
			p.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := postTranslate(t, s, []byte("a"), nil)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, map[string]string{"error": tt.message}, body)
		})
	}
}

func TestTranslate_PanicRecovered(t *testing.T) {
	p := new(MockProcessor)
	s, _ := newTestServer(t, p, nil)
	p.On("Process", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("nil map write")
	})

	rec := postTranslate(t, s, []byte("a"), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error": "internal server error"}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	p := new(MockProcessor)
	s, _ := newTestServer(t, p, func(cfg *config.Config) {
		cfg.Server.RateLimit.Requests = 2
	})

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestTranslatedArtifacts(t *testing.T) {
	s, cfg := newTestServer(t, new(MockProcessor), nil)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Output.Dir, "translated_fr.mp3"), []byte("ID3"), 0o644))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/translated/translated_fr.mp3", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3", rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/translated/missing.mp3", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Run("not loaded", func(t *testing.T) {
		s := New(Options{
			Pipeline: new(MockProcessor),
			Models:   staticModels{},
			Config:   func() *config.Config { return &config.Config{} },
		})
		api := humatest.Wrap(t, s.API())

		resp := api.Get("/health")
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Body.String(), `"status":"degraded"`)
	})

	t.Run("all stages assigned", func(t *testing.T) {
		cfg := &config.Config{Models: map[string]config.ModelConfig{
			"whisper": {Type: "stt", Backend: "whisper.cpp"},
			"qwen":    {Type: "translate", Backend: "llama.cpp"},
			"gtts":    {Type: "tts", Backend: "gtts"},
		}}
		cfg.Services.STT.Models = []string{"whisper"}
		cfg.Services.Translate.Models = []string{"qwen"}
		cfg.Services.TTS.Models = []string{"gtts"}

		registry := model.NewRegistry(cfg)
		for id, mc := range cfg.Models {
			instance := model.NewModelInstance(&mc, id, id)
			instance.SetStatus(model.ModelStatusLoaded)
			registry.Set(instance)
		}

		s := New(Options{
			Pipeline: new(MockProcessor),
			Models:   staticModels{registry},
			Config:   func() *config.Config { return cfg },
			Version:  "test",
		})
		api := humatest.Wrap(t, s.API())

		resp := api.Get("/health")
		require.Equal(t, http.StatusOK, resp.Code)

		var body HealthResponseDTO
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "test", body.Version)
		require.Len(t, body.Models, 3)
		assert.Equal(t, "gtts", body.Models[0].ID)
		assert.True(t, strings.HasPrefix(body.Models[1].Backend, "llama"))
	})
}
