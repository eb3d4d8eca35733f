package llama

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/mapsafe"
)

// Backend implements backend.Backend for translation with llama-cli.
type Backend struct {
	executor *backend.Executor
}

// NewBackend creates a new llama.cpp backend.
func NewBackend(binPath string, timeout time.Duration) (*Backend, error) {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	executor, err := backend.NewExecutor(binPath, timeout)
	if err != nil {
		return nil, err
	}

	return NewBackendWithExecutor(executor), nil
}

// NewBackendWithExecutor creates a backend around an existing executor.
func NewBackendWithExecutor(executor *backend.Executor) *Backend {
	return &Backend{executor: executor}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderLlamaCPP
}

// Tasks implements backend.Backend.
func (b *Backend) Tasks() []backend.Task {
	return []backend.Task{backend.TaskTranslate}
}

// ResolveModelPath implements backend.ModelLocator.
func (b *Backend) ResolveModelPath(basePath string) (string, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return "", fmt.Errorf("llama.cpp: model path: %w", err)
	}
	if !info.IsDir() {
		return basePath, nil
	}

	matches, err := filepath.Glob(filepath.Join(basePath, "*.gguf"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("llama.cpp: no .gguf model in %s", basePath)
	}
	return matches[0], nil
}

// Infer translates the input text.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if req.Task != backend.TaskTranslate {
		return nil, fmt.Errorf("%w: %s cannot %s", backend.ErrUnsupportedTask, b.Provider(), req.Task)
	}

	text, err := io.ReadAll(req.Input)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	p := req.Parameters
	if p == nil {
		p = map[string]any{}
	}

	prompt := buildPrompt(
		mapsafe.Get(p, backend.ParamSourceLang, ""),
		mapsafe.Get(p, backend.ParamTargetLang, ""),
		string(text),
	)

	args := b.buildArgs(req.ModelPath, p)
	args = append(args, "--prompt", prompt)

	start := time.Now()
	stdout, stderr, err := b.executor.Execute(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w\nstderr: %s", err, stderr)
	}

	out := parseOutput(string(stdout))
	if out == "" {
		return nil, fmt.Errorf("llama.cpp: %w", backend.ErrEmptyOutput)
	}

	return &backend.Response{
		Output: strings.NewReader(out),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           req.ModelPath,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(out)),
			BackendSpecific: map[string]any{
				"args": strings.Join(args[:len(args)-2], " "),
			},
		},
	}, nil
}

// buildPrompt frames the text with the translation instruction. When the
// source or target is unknown the instruction omits it.
func buildPrompt(sourceLang, targetLang, text string) string {
	var sb strings.Builder
	sb.WriteString(backend.TranslationInstruction(sourceLang, targetLang))
	sb.WriteString("\n\nText:\n")
	sb.WriteString(strings.TrimSpace(text))
	sb.WriteString("\n\nTranslation:\n")
	return sb.String()
}

// buildArgs builds llama-cli command-line arguments.
func (b *Backend) buildArgs(modelPath string, p map[string]any) []string {
	args := []string{"--model", modelPath}

	if v := mapsafe.Get(p, "n_ctx", 0); v > 0 {
		args = append(args, "--ctx-size", fmt.Sprintf("%d", v))
	}

	args = append(args, "-n", fmt.Sprintf("%d", mapsafe.Get(p, "n_predict", 512)))

	if v := mapsafe.Get(p, "n_gpu_layers", -1); v >= 0 {
		args = append(args, "-ngl", fmt.Sprintf("%d", v))
	}
	if v := mapsafe.Get(p, "threads", 0); v > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", v))
	}

	// Low temperature keeps translations close to greedy decoding.
	args = append(args, "--temp", fmt.Sprintf("%.2f", mapsafe.Get(p, "temperature", 0.0)))
	args = append(args, "--repeat-penalty", fmt.Sprintf("%.2f", mapsafe.Get(p, "repeat_penalty", 1.1)))

	if v := mapsafe.Get(p, "top_p", 0.0); v > 0 {
		args = append(args, "--top-p", fmt.Sprintf("%.2f", v))
	}
	if v := mapsafe.Get(p, "top_k", 0); v > 0 {
		args = append(args, "--top-k", fmt.Sprintf("%d", v))
	}

	args = append(args,
		"--no-warmup",
		"--no-display-prompt",
		"--simple-io",
		"--no-conversation",
	)

	return args
}

var logPrefixes = []string{
	"system_info:", "llama_", "ggml_", "print_info:", "load:", "main:", "sampler", "generate:",
}

// parseOutput drops llama.cpp log lines and the end-of-text marker.
func parseOutput(output string) string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		skip := false
		for _, prefix := range logPrefixes {
			if strings.HasPrefix(line, prefix) {
				skip = true
				break
			}
		}
		if !skip {
			lines = append(lines, line)
		}
	}

	out := strings.Join(lines, "\n")
	out = strings.ReplaceAll(out, "[end of text]", "")
	return strings.TrimSpace(out)
}

// Close cleans up resources. llama-cli runs per request, so there is nothing to release.
func (b *Backend) Close() error {
	return nil
}
