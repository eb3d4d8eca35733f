package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hajimehoshi/go-mp3"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/model"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/xfs"
)

const defaultAudioFormat = "mp3"

// TTS is a service abstraction for text-to-speech.
type TTS struct {
	resolver
	newID func() string
}

// NewTTS creates a new TTS service.
func NewTTS(backends *backend.Registry, models Models) *TTS {
	return &TTS{
		resolver: resolver{backends: backends, models: models},
		newID:    uuid.NewString,
	}
}

// Synthesize speaks text in lang, writes the audio under the output
// directory and returns its path.
func (s *TTS) Synthesize(ctx context.Context, text, lang string) (string, error) {
	bind, err := s.resolve(model.ModelTypeTTS)
	if err != nil {
		return "", err
	}

	ctx, cancel := withTimeout(ctx, bind.config.Services.TTS.Timeout.Std())
	defer cancel()

	params := mergeParams(bind.model.Parameters(), map[string]any{
		backend.ParamLanguage: lang,
	})

	resp, err := bind.backend.Infer(ctx, &backend.Request{
		Task:       backend.TaskSynthesize,
		ModelPath:  bind.modelPath,
		Input:      strings.NewReader(text),
		Parameters: params,
	})
	if err != nil {
		return "", fmt.Errorf("synthesize with %s: %w", bind.model.ID, err)
	}

	format := defaultAudioFormat
	if resp.Metadata != nil && resp.Metadata.Format != "" {
		format = resp.Metadata.Format
	}

	dir := bind.config.Output.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, s.fileName(bind.config.Output.Naming, lang, format))
	n, err := xfs.WriteFileAtomic(path, resp.Output, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}

	attrs := []any{"model_id", bind.model.ID, "path", path, "bytes", n}
	if format == "mp3" {
		if d, err := mp3Duration(path); err == nil {
			attrs = append(attrs, "duration", d.Round(time.Millisecond))
		} else {
			slog.Debug("Could not decode synthesized MP3", "path", path, "error", err)
		}
	}
	slog.Info("Speech synthesized", attrs...)

	return path, nil
}

// fileName builds the artifact name for lang. Language naming reuses one
// file per target language.
func (s *TTS) fileName(naming config.OutputNaming, lang, format string) string {
	lang = sanitizeLang(lang)
	if naming == config.OutputNamingLanguage {
		return fmt.Sprintf("translated_%s.%s", lang, format)
	}
	return fmt.Sprintf("translated_%s_%s.%s", lang, s.newID(), format)
}

// sanitizeLang keeps language codes from escaping the output directory.
func sanitizeLang(lang string) string {
	lang = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, lang)
	if lang == "" {
		return "und"
	}
	return lang
}

func mp3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, err
	}

	// 16-bit stereo PCM: four bytes per sample.
	samples := dec.Length() / 4
	if samples <= 0 || dec.SampleRate() == 0 {
		return 0, fmt.Errorf("unknown length")
	}
	return time.Duration(samples) * time.Second / time.Duration(dec.SampleRate()), nil
}
