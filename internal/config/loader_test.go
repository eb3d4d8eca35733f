package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaPath = "../../configs/seamless.v1.schema.json"

const validYAML = `
version: "1"
output:
  naming: language
pipeline:
  strict_transcription: false
backends:
  openai:
    timeout: 45s
models:
  whisper-1:
    type: stt
    backend: openai
  gpt:
    type: translate
    backend: openai
    name: gpt-4o-mini
    parameters:
      temperature: 0.1
  google:
    type: tts
    backend: gtts
services:
  stt:
    models: [whisper-1]
  translate:
    models: [gpt]
    timeout: 90s
    max_concurrency: 2
  tts:
    models: [google]
`

const validTOML = `
version = "1"

[output]
dir = "/srv/out"

[models.whisper]
type = "stt"
backend = "whisper.cpp"
name = "ggml-base.bin"

[models.whisper.source.huggingface]
repo = "ggerganov/whisper.cpp"
include = ["ggml-base.bin"]

[models.llama]
type = "translate"
backend = "llama.cpp"

[models.llama.parameters]
n_predict = 128

[models.piper]
type = "tts"
backend = "piper"

[services.stt]
models = ["whisper"]

[services.translate]
models = ["llama"]

[services.tts]
models = ["piper"]
timeout = "1m"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndValidate_YAML(t *testing.T) {
	cfg, err := LoadAndValidate(writeFile(t, "config.yaml", validYAML), schemaPath)
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, OutputNamingLanguage, cfg.Output.Naming)
	assert.Equal(t, ".", cfg.Output.Dir)
	assert.False(t, cfg.Pipeline.Strict())
	assert.Equal(t, "en", cfg.Pipeline.DefaultSourceLang)
	assert.Equal(t, "fr", cfg.Pipeline.DefaultTargetLang)
	require.NotNil(t, cfg.Backends.OpenAI)
	assert.Equal(t, 45*time.Second, cfg.Backends.OpenAI.Timeout.Std())
	assert.Equal(t, 90*time.Second, cfg.Services.Translate.Timeout.Std())
	assert.Equal(t, 2, cfg.Services.Translate.MaxConcurrency)
	assert.Equal(t, "gpt-4o-mini", cfg.Models["gpt"].Name)
	assert.Equal(t, 0.1, cfg.Models["gpt"].Parameters["temperature"])
	assert.ElementsMatch(t, []string{"whisper-1", "gpt", "google"}, cfg.Services.AssignedModels())
}

func TestLoadAndValidate_TOML(t *testing.T) {
	cfg, err := LoadAndValidate(writeFile(t, "config.toml", validTOML), schemaPath)
	require.NoError(t, err)

	assert.Equal(t, "/srv/out", cfg.Output.Dir)
	assert.Equal(t, OutputNamingRequest, cfg.Output.Naming)
	assert.True(t, cfg.Pipeline.Strict())
	assert.Equal(t, time.Minute, cfg.Services.TTS.Timeout.Std())

	whisper := cfg.Models["whisper"]
	src, err := whisper.GetSource()
	require.NoError(t, err)
	assert.Equal(t, SourceTypeHuggingFace, src.Type())
	assert.Equal(t, "ggerganov/whisper.cpp", src.(HuggingFaceSource).Repo)

	piper := cfg.Models["piper"]
	_, err = piper.GetSource()
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestLoadAndValidate_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing services",
			content: "version: \"1\"\nmodels: {}\n",
		},
		{
			name: "unknown backend",
			content: `
version: "1"
models:
  m:
    type: stt
    backend: kaldi
services:
  stt: {models: [m]}
  translate: {models: [m]}
  tts: {models: [m]}
`,
		},
		{
			name: "bad naming",
			content: `
version: "1"
output:
  naming: random
models: {}
services:
  stt: {models: [a]}
  translate: {models: [b]}
  tts: {models: [c]}
`,
		},
		{
			name: "bad duration",
			content: `
version: "1"
models: {}
services:
  stt: {models: [a], timeout: soon}
  translate: {models: [b]}
  tts: {models: [c]}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAndValidate(writeFile(t, "config.yaml", tt.content), schemaPath)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestLoadAndValidate_InvalidYAML(t *testing.T) {
	_, err := LoadAndValidate(writeFile(t, "config.yaml", "version: [unterminated"), schemaPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

func TestLoadAndValidate_MissingFile(t *testing.T) {
	_, err := LoadAndValidate(filepath.Join(t.TempDir(), "nope.yaml"), schemaPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultPorts(t *testing.T) {
	t.Setenv("SEAMLESS_SERVER_HTTP_PORT", "9999")
	t.Setenv("SEAMLESS_SERVER_GRPC_PORT", "not-a-port")

	assert.Equal(t, 9999, DefaultHTTPPort())
	assert.Equal(t, 9090, DefaultGRPCPort())
}
