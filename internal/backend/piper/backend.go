package piper

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/mapsafe"
)

// Backend implements backend.Backend for Piper TTS.
type Backend struct {
	executor *backend.Executor
	tempDir  string
}

// NewBackend creates a new Piper backend.
func NewBackend(binPath string, timeout time.Duration) (*Backend, error) {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	executor, err := backend.NewExecutor(binPath, timeout)
	if err != nil {
		return nil, err
	}

	return NewBackendWithExecutor(executor, os.TempDir()), nil
}

// NewBackendWithExecutor creates a backend writing scratch files to tempDir.
func NewBackendWithExecutor(executor *backend.Executor, tempDir string) *Backend {
	return &Backend{
		executor: executor,
		tempDir:  tempDir,
	}
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderPiper
}

// Tasks implements backend.Backend.
func (b *Backend) Tasks() []backend.Task {
	return []backend.Task{backend.TaskSynthesize}
}

// ResolveModelPath implements backend.ModelLocator.
func (b *Backend) ResolveModelPath(basePath string) (string, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return "", fmt.Errorf("piper: model path: %w", err)
	}
	if !info.IsDir() {
		return basePath, nil
	}

	matches, err := filepath.Glob(filepath.Join(basePath, "*.onnx"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("piper: no .onnx voice in %s", basePath)
	}
	return matches[0], nil
}

// Infer synthesizes speech from text.
// Input: text bytes.
// Output: WAV audio bytes.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if req.Task != backend.TaskSynthesize {
		return nil, fmt.Errorf("%w: %s cannot %s", backend.ErrUnsupportedTask, b.Provider(), req.Task)
	}

	// Piper's CLI only writes to a file, so render into a scratch file and read it back.
	scratch, err := os.CreateTemp(b.tempDir, "piper_*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	outputFile := scratch.Name()
	scratch.Close()
	defer os.Remove(outputFile)

	args := b.buildArgs(req, outputFile)

	start := time.Now()
	stdout, stderr, err := b.executor.Execute(ctx, args, req.Input)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w\nstderr: %s", err, stderr)
	}

	audio, err := os.ReadFile(outputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("piper: %w", backend.ErrEmptyOutput)
	}

	return &backend.Response{
		Output: bytes.NewReader(audio),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           req.ModelPath,
			Format:          "wav",
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(audio)),
			BackendSpecific: map[string]any{
				"stdout": string(stdout),
				"stderr": string(stderr),
			},
		},
	}, nil
}

// buildArgs builds Piper command-line arguments. The voice model fixes the
// language, so the requested language is not passed on.
func (b *Backend) buildArgs(req *backend.Request, outputFile string) []string {
	args := []string{
		"--model", req.ModelPath,
		"--output_file", outputFile,
	}

	p := req.Parameters
	if p == nil {
		return args
	}

	if v := mapsafe.Get(p, "speaker_id", -1); v >= 0 {
		args = append(args, "--speaker", fmt.Sprintf("%d", v))
	}
	if v := mapsafe.Get(p, "length_scale", 0.0); v > 0 {
		args = append(args, "--length_scale", fmt.Sprintf("%.2f", v))
	}
	if v := mapsafe.Get(p, "noise_scale", 0.0); v > 0 {
		args = append(args, "--noise_scale", fmt.Sprintf("%.2f", v))
	}
	if v := mapsafe.Get(p, "noise_w", 0.0); v > 0 {
		args = append(args, "--noise_w", fmt.Sprintf("%.2f", v))
	}
	if v := mapsafe.Get(p, "sentence_silence", 0.0); v > 0 {
		args = append(args, "--sentence_silence", fmt.Sprintf("%.2f", v))
	}

	return args
}

// Close cleans up resources. Piper does not have any resources to clean up.
func (b *Backend) Close() error {
	return nil
}
