package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/model"
)

// TranscriptionStatus is the outcome of a transcription attempt.
type TranscriptionStatus string

const (
	TranscriptionOK             TranscriptionStatus = "ok"
	TranscriptionUnintelligible TranscriptionStatus = "unintelligible"
	TranscriptionRequestFailed  TranscriptionStatus = "request_failed"
)

// Placeholder texts reported in place of a transcript when recognition fails.
const (
	UnintelligibleText  = "Could not understand audio"
	RequestFailedPrefix = "Could not request results; "
)

// Transcription is the result of speech recognition.
type Transcription struct {
	Err        error
	Status     TranscriptionStatus
	Transcript string
}

// OK reports whether speech was recognized.
func (t Transcription) OK() bool {
	return t.Status == TranscriptionOK
}

// Text returns the transcript, or the placeholder text for a failed attempt.
func (t Transcription) Text() string {
	switch t.Status {
	case TranscriptionUnintelligible:
		return UnintelligibleText
	case TranscriptionRequestFailed:
		msg := "unknown error"
		if t.Err != nil {
			msg = t.Err.Error()
		}
		return RequestFailedPrefix + msg
	default:
		return t.Transcript
	}
}

// STT is a service abstraction for speech-to-text.
type STT struct {
	resolver
}

// NewSTT creates a new STT service.
func NewSTT(backends *backend.Registry, models Models) *STT {
	return &STT{resolver{backends: backends, models: models}}
}

// Transcribe recognizes the speech in the audio file. Recognition problems are
// reported in the Transcription; the error covers setup failures only.
func (s *STT) Transcribe(ctx context.Context, audioPath string) (Transcription, error) {
	bind, err := s.resolve(model.ModelTypeSTT)
	if err != nil {
		return Transcription{}, err
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	ctx, cancel := withTimeout(ctx, bind.config.Services.STT.Timeout.Std())
	defer cancel()

	params := mergeParams(bind.model.Parameters(), map[string]any{
		backend.ParamFilename: filepath.Base(audioPath),
	})

	resp, err := bind.backend.Infer(ctx, &backend.Request{
		Task:       backend.TaskTranscribe,
		ModelPath:  bind.modelPath,
		Input:      f,
		Parameters: params,
	})
	if err != nil {
		if errors.Is(err, backend.ErrEmptyOutput) {
			return Transcription{Status: TranscriptionUnintelligible}, nil
		}
		slog.Warn("Transcription request failed", "model_id", bind.model.ID, "error", err)
		return Transcription{Status: TranscriptionRequestFailed, Err: err}, nil
	}

	raw, err := io.ReadAll(resp.Output)
	if err != nil {
		return Transcription{Status: TranscriptionRequestFailed, Err: err}, nil
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Transcription{Status: TranscriptionUnintelligible}, nil
	}

	slog.Debug("Audio transcribed", "model_id", bind.model.ID, "chars", len(text))
	return Transcription{Status: TranscriptionOK, Transcript: text}, nil
}
