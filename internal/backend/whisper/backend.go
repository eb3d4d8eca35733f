package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/mapsafe"
)

// DefaultPort is the port whisper-server is started on when none is configured.
const DefaultPort = 8082

// Options configures the whisper.cpp backend.
type Options struct {
	ServerManager *backend.ServerManager
	// BinPath is the whisper-server binary, used when URL is empty.
	BinPath string
	// URL points at an already running whisper-server.
	URL     string
	Port    int
	Timeout time.Duration
}

// Backend implements backend.Backend for a whisper.cpp server.
type Backend struct {
	serverManager *backend.ServerManager
	client        *http.Client
	binPath       string
	baseURL       string
	loadedModel   string
	port          int
	external      bool
	mu            sync.Mutex
}

// TranscriptionResponse is the JSON body returned by whisper-server's /inference.
type TranscriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewBackend creates a new Backend instance.
func NewBackend(opts Options) (*Backend, error) {
	if opts.URL == "" && opts.BinPath == "" {
		return nil, fmt.Errorf("whisper.cpp: either url or bin_path is required")
	}

	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute // Transcription can take longer
	}

	b := &Backend{
		serverManager: opts.ServerManager,
		client:        &http.Client{Timeout: timeout},
		binPath:       opts.BinPath,
		port:          port,
		external:      opts.URL != "",
		baseURL:       strings.TrimRight(opts.URL, "/"),
	}
	if !b.external {
		if b.serverManager == nil {
			b.serverManager = backend.NewServerManager()
		}
		b.baseURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	}

	return b, nil
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderWhisperCPP
}

// Tasks implements backend.Backend.
func (b *Backend) Tasks() []backend.Task {
	return []backend.Task{backend.TaskTranscribe}
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	if b.external {
		return nil
	}
	return b.serverManager.StopServer(string(backend.BackendProviderWhisperCPP), b.port)
}

// ResolveModelPath implements backend.ModelLocator. A directory resolves to
// the first ggml model file inside it.
func (b *Backend) ResolveModelPath(basePath string) (string, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return "", fmt.Errorf("whisper.cpp: model path: %w", err)
	}
	if !info.IsDir() {
		return basePath, nil
	}

	matches, err := filepath.Glob(filepath.Join(basePath, "ggml-*.bin"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("whisper.cpp: no ggml-*.bin model in %s", basePath)
	}
	return matches[0], nil
}

// Infer implements backend.Backend.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if req.Task != backend.TaskTranscribe {
		return nil, fmt.Errorf("%w: %s cannot %s", backend.ErrUnsupportedTask, b.Provider(), req.Task)
	}

	if err := b.ensureServer(ctx, req.ModelPath); err != nil {
		return nil, err
	}

	p := req.Parameters
	if p == nil {
		p = map[string]any{}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", mapsafe.Get(p, backend.ParamFilename, "audio.wav"))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, req.Input); err != nil {
		return nil, fmt.Errorf("failed to read audio input: %w", err)
	}

	if err := writeParams(writer, p); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var tr TranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if tr.Error != "" {
		return nil, fmt.Errorf("whisper.cpp: %s", tr.Error)
	}

	text := strings.TrimSpace(tr.Text)

	return &backend.Response{
		Output: strings.NewReader(text),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           req.ModelPath,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(text)),
			BackendSpecific: map[string]any{
				"language": tr.Language,
			},
		},
	}, nil
}

// ensureServer starts whisper-server for modelPath, restarting it when the
// model changed since the last start.
func (b *Backend) ensureServer(ctx context.Context, modelPath string) error {
	if b.external {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	name := string(backend.BackendProviderWhisperCPP)
	if b.loadedModel != "" && b.loadedModel != modelPath {
		if err := b.serverManager.StopServer(name, b.port); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	err := b.serverManager.StartServer(ctx, backend.ServerConfig{
		Name:    name,
		BinPath: b.binPath,
		Args: []string{
			"--model", modelPath,
			"--port", fmt.Sprintf("%d", b.port),
			"--host", "127.0.0.1",
		},
		Port:       b.port,
		HealthPath: "/", // whisper-server has no dedicated health endpoint
	})
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	b.loadedModel = modelPath
	return nil
}

// writeParams adds inference parameters to the multipart form.
func writeParams(w *multipart.Writer, p map[string]any) error {
	params := map[string]string{
		"response_format": "json",
		"temperature":     fmt.Sprintf("%.2f", mapsafe.Get(p, "temperature", 0.0)),
		"translate":       "false",
	}

	if lang := mapsafe.Get(p, backend.ParamLanguage, ""); lang != "" {
		params["language"] = lang
	}
	if v := mapsafe.Get(p, "beam_size", -1); v >= 0 {
		params["beam_size"] = fmt.Sprintf("%d", v)
	}
	if v := mapsafe.Get(p, "best_of", 0); v > 0 {
		params["best_of"] = fmt.Sprintf("%d", v)
	}
	if v := mapsafe.Get(p, "prompt", ""); v != "" {
		params["prompt"] = v
	}

	for key, value := range params {
		if err := w.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	return nil
}
