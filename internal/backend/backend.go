package backend

import (
	"context"
	"io"
	"time"
)

// BackendProvider is a string identifier for a backend provider.
type BackendProvider string

const (
	BackendProviderWhisperCPP BackendProvider = "whisper.cpp"
	BackendProviderLlamaCPP   BackendProvider = "llama.cpp"
	BackendProviderPiper      BackendProvider = "piper"
	BackendProviderOpenAI     BackendProvider = "openai"
	BackendProviderEdge       BackendProvider = "edge"
	BackendProviderGTTS       BackendProvider = "gtts"
)

// Task is the kind of inference a request asks for.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
	TaskSynthesize Task = "synthesize"
)

// Parameter keys shared by the services and every backend.
const (
	ParamLanguage   = "language"
	ParamSourceLang = "source_lang"
	ParamTargetLang = "target_lang"
	ParamFilename   = "filename"
)

// Backend defines the core interface for all inference backends.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() BackendProvider

	// Tasks returns the tasks the backend can run.
	Tasks() []Task

	// Infer executes inference and returns complete result.
	Infer(ctx context.Context, req *Request) (*Response, error)

	// Close cleans up resources.
	Close() error
}

// Request encapsulates all parameters for an inference call.
type Request struct {
	// Input is the raw input data (audio bytes for transcription, UTF-8 text otherwise).
	Input io.Reader

	// Parameters contains backend-specific inference parameters.
	Parameters map[string]any

	// Task selects what the backend should do with Input.
	Task Task

	// ModelPath is the local model file, or the remote model name.
	ModelPath string
}

// Response contains the result of an inference operation.
type Response struct {
	// Output is the raw output data: text for transcribe/translate, encoded audio for synthesize.
	Output io.Reader

	// Metadata contains backend-specific information.
	Metadata *ResponseMetadata
}

// ResponseMetadata contains metadata about the response.
type ResponseMetadata struct {
	Timestamp       time.Time       `json:"timestamp"`
	BackendSpecific map[string]any  `json:"backend_specific,omitempty"`
	Provider        BackendProvider `json:"provider"`
	Model           string          `json:"model"`
	// Format is the audio container of synthesized output ("mp3", "wav").
	Format          string  `json:"format,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	OutputBytes     int64   `json:"output_bytes"`
}

// Supports reports whether b can run task.
func Supports(b Backend, task Task) bool {
	for _, t := range b.Tasks() {
		if t == task {
			return true
		}
	}
	return false
}
