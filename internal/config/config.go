package config

import (
	"errors"
	"fmt"
	"time"

	"go.yaml.in/yaml/v3"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeHuggingFace represents a Hugging Face model repository source.
	SourceTypeHuggingFace SourceType = "huggingface"
)

// OutputNaming selects how synthesized files are named.
type OutputNaming string

const (
	// OutputNamingRequest names every artifact with a request-scoped id.
	OutputNamingRequest OutputNaming = "request"

	// OutputNamingLanguage names artifacts after the target language only.
	// Requests sharing a target language overwrite each other's file.
	OutputNamingLanguage OutputNaming = "language"
)

// ErrNoSource is returned by GetSource for remote models that need no download.
var ErrNoSource = errors.New("no source configured for model")

// Config holds the main configuration for the application.
type Config struct {
	Models   map[string]ModelConfig `json:"models"             toml:"models"             yaml:"models"`
	Version  string                 `json:"version"            toml:"version"            yaml:"version"`
	Server   ServerConfig           `json:"server,omitempty"   toml:"server,omitempty"   yaml:"server,omitempty"`
	Storage  StorageConfig          `json:"storage,omitempty"  toml:"storage,omitempty"  yaml:"storage,omitempty"`
	Uploads  UploadsConfig          `json:"uploads,omitempty"  toml:"uploads,omitempty"  yaml:"uploads,omitempty"`
	Output   OutputConfig           `json:"output,omitempty"   toml:"output,omitempty"   yaml:"output,omitempty"`
	Pipeline PipelineConfig         `json:"pipeline,omitempty" toml:"pipeline,omitempty" yaml:"pipeline,omitempty"`
	Backends BackendsConfig         `json:"backends,omitempty" toml:"backends,omitempty" yaml:"backends,omitempty"`
	Services ServicesConfig         `json:"services"           toml:"services"           yaml:"services"`
}

// ServerConfig holds HTTP middleware settings.
type ServerConfig struct {
	CORS      CORSConfig      `json:"cors,omitempty"       toml:"cors,omitempty"       yaml:"cors,omitempty"`
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" toml:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// CORSConfig enables CORS when AllowedOrigins is non-empty.
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins,omitempty" toml:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// RateLimitConfig enables per-IP rate limiting when Requests > 0.
type RateLimitConfig struct {
	Requests int      `json:"requests,omitempty" toml:"requests,omitempty" yaml:"requests,omitempty"`
	Window   Duration `json:"window,omitempty"   toml:"window,omitempty"   yaml:"window,omitempty"`
}

// StorageConfig holds configuration for caching and auto-download.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" toml:"models_dir,omitempty" yaml:"models_dir,omitempty"`
}

// UploadsConfig controls where uploaded clips are stored.
type UploadsConfig struct {
	Dir     string `json:"dir,omitempty"     toml:"dir,omitempty"     yaml:"dir,omitempty"`
	Cleanup bool   `json:"cleanup,omitempty" toml:"cleanup,omitempty" yaml:"cleanup,omitempty"`
}

// OutputConfig controls where synthesized audio is written.
type OutputConfig struct {
	Dir    string       `json:"dir,omitempty"    toml:"dir,omitempty"    yaml:"dir,omitempty"`
	Naming OutputNaming `json:"naming,omitempty" toml:"naming,omitempty" yaml:"naming,omitempty"`
}

// PipelineConfig holds request-level pipeline behavior.
type PipelineConfig struct {
	// StrictTranscription aborts the pipeline when transcription fails.
	// When false, the failure text is translated and spoken like a transcript.
	StrictTranscription *bool  `json:"strict_transcription,omitempty" toml:"strict_transcription,omitempty" yaml:"strict_transcription,omitempty"`
	DefaultSourceLang   string `json:"default_source_lang,omitempty"  toml:"default_source_lang,omitempty"  yaml:"default_source_lang,omitempty"`
	DefaultTargetLang   string `json:"default_target_lang,omitempty"  toml:"default_target_lang,omitempty"  yaml:"default_target_lang,omitempty"`
}

// Strict reports whether transcription failures abort the pipeline.
func (p PipelineConfig) Strict() bool {
	return p.StrictTranscription == nil || *p.StrictTranscription
}

// BackendsConfig holds per-provider settings. A nil entry disables the provider.
type BackendsConfig struct {
	WhisperCPP *WhisperCPPConfig `json:"whisper_cpp,omitempty" toml:"whisper_cpp,omitempty" yaml:"whisper_cpp,omitempty"`
	LlamaCPP   *ExecutableConfig `json:"llama_cpp,omitempty"   toml:"llama_cpp,omitempty"   yaml:"llama_cpp,omitempty"`
	Piper      *ExecutableConfig `json:"piper,omitempty"       toml:"piper,omitempty"       yaml:"piper,omitempty"`
	OpenAI     *OpenAIConfig     `json:"openai,omitempty"      toml:"openai,omitempty"      yaml:"openai,omitempty"`
	Edge       *EdgeConfig       `json:"edge,omitempty"        toml:"edge,omitempty"        yaml:"edge,omitempty"`
	GTTS       *GTTSConfig       `json:"gtts,omitempty"        toml:"gtts,omitempty"        yaml:"gtts,omitempty"`
}

// WhisperCPPConfig configures the whisper.cpp server backend. When URL is set
// an already running server is used and BinPath is ignored.
type WhisperCPPConfig struct {
	BinPath string   `json:"bin_path,omitempty" toml:"bin_path,omitempty" yaml:"bin_path,omitempty"`
	URL     string   `json:"url,omitempty"      toml:"url,omitempty"      yaml:"url,omitempty"`
	Port    int      `json:"port,omitempty"     toml:"port,omitempty"     yaml:"port,omitempty"`
	Timeout Duration `json:"timeout,omitempty"  toml:"timeout,omitempty"  yaml:"timeout,omitempty"`
}

// ExecutableConfig configures a CLI backend.
type ExecutableConfig struct {
	BinPath string   `json:"bin_path"          toml:"bin_path"          yaml:"bin_path"`
	Timeout Duration `json:"timeout,omitempty" toml:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	BaseURL   string   `json:"base_url,omitempty"    toml:"base_url,omitempty"    yaml:"base_url,omitempty"`
	APIKeyEnv string   `json:"api_key_env,omitempty" toml:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Timeout   Duration `json:"timeout,omitempty"     toml:"timeout,omitempty"     yaml:"timeout,omitempty"`
}

// EdgeConfig configures the Edge TTS backend.
type EdgeConfig struct {
	// Voices maps a language code to an Edge voice name.
	Voices map[string]string `json:"voices,omitempty" toml:"voices,omitempty" yaml:"voices,omitempty"`
}

// GTTSConfig configures the Google Translate TTS backend.
type GTTSConfig struct {
	BaseURL string   `json:"base_url,omitempty" toml:"base_url,omitempty" yaml:"base_url,omitempty"`
	Timeout Duration `json:"timeout,omitempty"  toml:"timeout,omitempty"  yaml:"timeout,omitempty"`
}

// ModelConfig holds configuration for a specific model.
type ModelConfig struct {
	Parameters map[string]any `json:"parameters,omitempty" toml:"parameters,omitempty" yaml:"parameters,omitempty"`
	Source     SourceConfig   `json:"source,omitempty"     toml:"source,omitempty"     yaml:"source,omitempty"`
	Type       string         `json:"type"                 toml:"type"                 yaml:"type"`
	Backend    string         `json:"backend"              toml:"backend"              yaml:"backend"`
	// Name identifies remote models (e.g. "whisper-1") or a file inside a
	// downloaded repository (e.g. "ggml-base.bin").
	Name  string   `json:"name,omitempty"  toml:"name,omitempty"  yaml:"name,omitempty"`
	Tags  []string `json:"tags,omitempty"  toml:"tags,omitempty"  yaml:"tags,omitempty"`
	Order int      `json:"order,omitempty" toml:"order,omitempty" yaml:"order,omitempty"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" toml:"huggingface,omitempty" yaml:"huggingface,omitempty"`
}

// ServicesConfig holds configuration for the three pipeline stages.
type ServicesConfig struct {
	STT       ServiceConfig `json:"stt"       toml:"stt"       yaml:"stt"`
	Translate ServiceConfig `json:"translate" toml:"translate" yaml:"translate"`
	TTS       ServiceConfig `json:"tts"       toml:"tts"       yaml:"tts"`
}

// ServiceConfig holds model assignments and limits for a service.
type ServiceConfig struct {
	Models         []string `json:"models"                    toml:"models"                    yaml:"models"` // List of model IDs
	Timeout        Duration `json:"timeout,omitempty"         toml:"timeout,omitempty"         yaml:"timeout,omitempty"`
	MaxConcurrency int      `json:"max_concurrency,omitempty" toml:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
}

// AssignedModels returns every model ID referenced by a service.
func (s ServicesConfig) AssignedModels() []string {
	var ids []string
	ids = append(ids, s.STT.Models...)
	ids = append(ids, s.Translate.Models...)
	ids = append(ids, s.TTS.Models...)
	return ids
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a model.
type ModelSource interface {
	Type() SourceType
}

// HuggingFaceSource represents a Hugging Face model repository source.
type HuggingFaceSource struct {
	Repo          string   `json:"repo"                     toml:"repo"                     yaml:"repo"`
	Revision      string   `json:"revision,omitempty"       toml:"revision,omitempty"       yaml:"revision,omitempty"`
	RepoType      string   `json:"repo_type,omitempty"      toml:"repo_type,omitempty"      yaml:"repo_type,omitempty"`
	Token         string   `json:"token,omitempty"          toml:"token,omitempty"          yaml:"token,omitempty"`
	Include       []string `json:"include,omitempty"        toml:"include,omitempty"        yaml:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"        toml:"exclude,omitempty"        yaml:"exclude,omitempty"`
	MaxWorkers    int      `json:"max_workers,omitempty"    toml:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool     `json:"force_download,omitempty" toml:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// GetSource returns the active source for the model.
func (m *ModelConfig) GetSource() (ModelSource, error) {
	if m.Source.HuggingFace != nil {
		return *m.Source.HuggingFace, nil
	}

	return nil, ErrNoSource
}

// SetHuggingFaceSource sets the Hugging Face source.
func (m *ModelConfig) SetHuggingFaceSource(source HuggingFaceSource) {
	m.Source.HuggingFace = &source
}

// Duration is a time.Duration written as a Go duration string ("30s", "2m").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}
