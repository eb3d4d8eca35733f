package service

import (
	"context"
	"log/slog"
	"time"
)

// Result describes one completed speech translation.
type Result struct {
	AudioPath   string
	Transcript  Transcription
	Translation string
	Duration    time.Duration
}

// Pipeline runs transcription, translation and synthesis in sequence.
type Pipeline struct {
	stt        SpeechRecognizer
	translator TextTranslator
	tts        SpeechSynthesizer
	models     Models
}

// NewPipeline creates a pipeline over the three stage services. models
// supplies the live config that decides whether failed transcriptions abort.
func NewPipeline(stt SpeechRecognizer, translator TextTranslator, tts SpeechSynthesizer, models Models) *Pipeline {
	return &Pipeline{
		stt:        stt,
		translator: translator,
		tts:        tts,
		models:     models,
	}
}

// Process translates the speech in audioPath from sourceLang to targetLang
// and returns the synthesized audio location.
func (p *Pipeline) Process(ctx context.Context, audioPath, sourceLang, targetLang string) (*Result, error) {
	start := time.Now()

	transcription, err := p.stt.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	// A recognizer that degrades to a placeholder on cancellation must not
	// push the request any further.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !transcription.OK() {
		if p.strict() {
			return nil, &TranscriptionError{Transcription: transcription}
		}
		slog.Warn("Transcription failed, continuing with placeholder text",
			"status", transcription.Status, "text", transcription.Text())
	}

	translated, err := p.translator.Translate(ctx, transcription.Text(), sourceLang, targetLang)
	if err != nil {
		return nil, err
	}

	path, err := p.tts.Synthesize(ctx, translated, targetLang)
	if err != nil {
		return nil, err
	}

	result := &Result{
		AudioPath:   path,
		Transcript:  transcription,
		Translation: translated,
		Duration:    time.Since(start),
	}
	slog.Info("Speech translated",
		"source_lang", sourceLang, "target_lang", targetLang,
		"path", path, "duration", result.Duration)

	return result, nil
}

func (p *Pipeline) strict() bool {
	if p.models == nil {
		return true
	}
	registry := p.models.Registry()
	if registry == nil || registry.Config() == nil {
		return true
	}
	return registry.Config().Pipeline.Strict()
}
