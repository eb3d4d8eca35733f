package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/model"
)

// Translator is a service abstraction for text translation.
//
// A Translator is safe for concurrent use. Backends receive every call
// independently; when services.translate.max_concurrency is positive,
// at most that many inferences run at once and the rest wait, bounded
// by their context.
type Translator struct {
	resolver

	mu      sync.Mutex
	sem     *semaphore.Weighted
	semSize int
}

// NewTranslator creates a new translation service.
func NewTranslator(backends *backend.Registry, models Models) *Translator {
	return &Translator{resolver: resolver{backends: backends, models: models}}
}

// Translate returns the single best translation of text from sourceLang to targetLang.
func (t *Translator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	bind, err := t.resolve(model.ModelTypeTranslate)
	if err != nil {
		return "", err
	}

	svc := bind.config.Services.Translate
	ctx, cancel := withTimeout(ctx, svc.Timeout.Std())
	defer cancel()

	if sem := t.limiter(svc.MaxConcurrency); sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("waiting for translation slot: %w", err)
		}
		defer sem.Release(1)
	}

	params := mergeParams(bind.model.Parameters(), map[string]any{
		backend.ParamSourceLang: sourceLang,
		backend.ParamTargetLang: targetLang,
	})

	resp, err := bind.backend.Infer(ctx, &backend.Request{
		Task:       backend.TaskTranslate,
		ModelPath:  bind.modelPath,
		Input:      strings.NewReader(text),
		Parameters: params,
	})
	if err != nil {
		return "", fmt.Errorf("translate with %s: %w", bind.model.ID, err)
	}

	out, err := io.ReadAll(resp.Output)
	if err != nil {
		return "", fmt.Errorf("failed to read translation: %w", err)
	}

	translated := strings.TrimSpace(string(out))
	slog.Debug("Text translated", "model_id", bind.model.ID, "source_lang", sourceLang, "target_lang", targetLang)
	return translated, nil
}

// limiter returns the semaphore for size, replacing it when the configured
// limit changed on reload. Holders of the old semaphore release into it.
func (t *Translator) limiter(size int) *semaphore.Weighted {
	if size <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sem == nil || t.semSize != size {
		t.sem = semaphore.NewWeighted(int64(size))
		t.semSize = size
	}
	return t.sem
}
