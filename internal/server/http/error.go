package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/model"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/service"
)

// ErrorBody is the single error shape returned by every endpoint.
type ErrorBody struct {
	status  int
	Message string `json:"error"`
}

// Error implements error.
func (e *ErrorBody) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *ErrorBody) GetStatus() int {
	return e.status
}

func init() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		details := make([]string, 0, len(errs))
		for _, err := range errs {
			if err != nil && err.Error() != msg {
				details = append(details, err.Error())
			}
		}
		if len(details) > 0 {
			msg = msg + ": " + strings.Join(details, "; ")
		}
		return &ErrorBody{status: status, Message: msg}
	}
}

// pipelineError maps a pipeline failure to its HTTP error.
func pipelineError(err error) huma.StatusError {
	var terr *service.TranscriptionError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return huma.NewError(http.StatusGatewayTimeout, "processing timed out: "+err.Error())
	case errors.As(err, &terr):
		return huma.NewError(http.StatusUnprocessableEntity, terr.Transcription.Text())
	case errors.Is(err, service.ErrNoModelAssigned),
		errors.Is(err, backend.ErrNotFound),
		errors.Is(err, model.ErrNotConfigured):
		return huma.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return huma.NewError(http.StatusInternalServerError, err.Error())
	}
}

// writeError writes the error shape outside of huma, for middleware.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&ErrorBody{status: status, Message: msg})
}
