package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/service"
)

const (
	fallbackSourceLang = "en"
	fallbackTargetLang = "fr"

	errNoAudio = "No audio file provided."
)

// Processor runs the speech translation pipeline.
type Processor interface {
	Process(ctx context.Context, audioPath, sourceLang, targetLang string) (*service.Result, error)
}

type (
	TranslateResponseDTO struct {
		TranslatedAudio string `json:"translated_audio"`
	}
)

type (
	TranslateInput struct {
		RawBody huma.MultipartFormFiles[struct {
			Audio      huma.FormFile `form:"audio"`
			SourceLang string        `form:"source_lang"`
			TargetLang string        `form:"target_lang"`
		}]
	}

	TranslateOutput struct {
		Body TranslateResponseDTO
	}
)

// TranslateHandler handles HTTP requests for speech translation.
type TranslateHandler struct {
	pipeline Processor
	config   func() *config.Config
}

// NewTranslateHandler creates a new TranslateHandler instance.
func NewTranslateHandler(api huma.API, pipeline Processor, cfg func() *config.Config) *TranslateHandler {
	h := &TranslateHandler{pipeline: pipeline, config: cfg}

	huma.Register(api, huma.Operation{
		OperationID:     "translate",
		Method:          http.MethodPost,
		Path:            "/translate",
		Summary:         "Translate speech in an audio clip into another language",
		Tags:            []string{"translate"},
		DefaultStatus:   http.StatusOK,
		MaxBodyBytes:    -1,
		BodyReadTimeout: -1,
		Middlewares:     huma.Middlewares{requireUpload(api)},
	}, h.handleTranslate)

	return h
}

// requireUpload rejects bodies that are not a readable multipart form, such
// as an empty POST or a urlencoded form, with the missing audio error.
func requireUpload(api huma.API) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if _, err := ctx.GetMultipartForm(); err != nil {
			slog.Debug("Rejected translate request without multipart body",
				"content_type", ctx.Header("Content-Type"), "error", err)
			_ = huma.WriteErr(api, ctx, http.StatusBadRequest, errNoAudio)
			return
		}
		next(ctx)
	}
}

// handleTranslate handles the translate operation.
func (h *TranslateHandler) handleTranslate(ctx context.Context, input *TranslateInput) (*TranslateOutput, error) {
	form := input.RawBody.Data()
	if !form.Audio.IsSet {
		return nil, huma.Error400BadRequest(errNoAudio)
	}

	cfg := h.config()
	sourceLang := firstNonEmpty(form.SourceLang, cfg.Pipeline.DefaultSourceLang, fallbackSourceLang)
	targetLang := firstNonEmpty(form.TargetLang, cfg.Pipeline.DefaultTargetLang, fallbackTargetLang)

	audioPath, err := saveUpload(form.Audio, cfg.Uploads.Dir)
	if err != nil {
		slog.Error("Failed to store upload", "error", err)
		return nil, huma.Error500InternalServerError("failed to store audio", err)
	}
	if cfg.Uploads.Cleanup {
		defer func() {
			if err := os.Remove(audioPath); err != nil {
				slog.Warn("Failed to remove upload", "path", audioPath, "error", err)
			}
		}()
	}

	result, err := h.pipeline.Process(ctx, audioPath, sourceLang, targetLang)
	if err != nil {
		slog.Error("Speech translation failed",
			"source_lang", sourceLang, "target_lang", targetLang, "error", err)
		return nil, pipelineError(err)
	}

	return &TranslateOutput{
		Body: TranslateResponseDTO{TranslatedAudio: result.AudioPath},
	}, nil
}

// saveUpload writes the uploaded clip to a uniquely named file in dir.
func saveUpload(file huma.FormFile, dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}

	defer file.Close()

	f, err := os.CreateTemp(dir, "upload_*"+ext)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, file); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("copy upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
