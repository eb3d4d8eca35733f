package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/mapsafe"
)

const (
	defaultVoice   = "alloy"
	defaultTimeout = 2 * time.Minute
)

// Options configures the OpenAI backend. BaseURL may point at any
// OpenAI-compatible server.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Backend runs all three pipeline tasks against the OpenAI API:
// Whisper transcription, chat-completion translation and speech synthesis.
type Backend struct {
	client *openai.Client
}

// NewBackend creates a new OpenAI backend.
func NewBackend(opts Options) *Backend {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Backend{client: openai.NewClientWithConfig(cfg)}
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderOpenAI
}

// Tasks implements backend.Backend.
func (b *Backend) Tasks() []backend.Task {
	return []backend.Task{backend.TaskTranscribe, backend.TaskTranslate, backend.TaskSynthesize}
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	return nil
}

// Infer implements backend.Backend.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	p := req.Parameters
	if p == nil {
		p = map[string]any{}
	}

	start := time.Now()

	var (
		out    []byte
		format string
		err    error
	)
	switch req.Task {
	case backend.TaskTranscribe:
		out, err = b.transcribe(ctx, req, p)
	case backend.TaskTranslate:
		out, err = b.translate(ctx, req, p)
	case backend.TaskSynthesize:
		format = mapsafe.Get(p, "response_format", string(openai.SpeechResponseFormatMp3))
		out, err = b.synthesize(ctx, req, p, format)
	default:
		return nil, fmt.Errorf("%w: %s cannot %s", backend.ErrUnsupportedTask, b.Provider(), req.Task)
	}
	if err != nil {
		return nil, fmt.Errorf("openai %s: %w", req.Task, err)
	}

	return &backend.Response{
		Output: bytes.NewReader(out),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           req.ModelPath,
			Format:          format,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(out)),
		},
	}, nil
}

func (b *Backend) transcribe(ctx context.Context, req *backend.Request, p map[string]any) ([]byte, error) {
	resp, err := b.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       req.ModelPath,
		FilePath:    mapsafe.Get(p, backend.ParamFilename, "audio.wav"),
		Reader:      req.Input,
		Language:    mapsafe.Get(p, backend.ParamLanguage, ""),
		Prompt:      mapsafe.Get(p, "prompt", ""),
		Temperature: float32(mapsafe.Get(p, "temperature", 0.0)),
		Format:      openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, err
	}

	return []byte(strings.TrimSpace(resp.Text)), nil
}

func (b *Backend) translate(ctx context.Context, req *backend.Request, p map[string]any) ([]byte, error) {
	text, err := io.ReadAll(req.Input)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.ModelPath,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: backend.TranslationInstruction(
					mapsafe.Get(p, backend.ParamSourceLang, ""),
					mapsafe.Get(p, backend.ParamTargetLang, ""),
				),
			},
			{Role: openai.ChatMessageRoleUser, Content: string(text)},
		},
		Temperature: float32(mapsafe.Get(p, "temperature", 0.0)),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, backend.ErrEmptyOutput
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return nil, backend.ErrEmptyOutput
	}
	return []byte(out), nil
}

func (b *Backend) synthesize(ctx context.Context, req *backend.Request, p map[string]any, format string) ([]byte, error) {
	text, err := io.ReadAll(req.Input)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	resp, err := b.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(req.ModelPath),
		Input:          string(text),
		Voice:          openai.SpeechVoice(mapsafe.Get(p, "voice", defaultVoice)),
		ResponseFormat: openai.SpeechResponseFormat(format),
		Speed:          mapsafe.Get(p, "speed", 1.0),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, backend.ErrEmptyOutput
	}
	return audio, nil
}
