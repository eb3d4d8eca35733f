package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/model"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/service"
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

type (
	ModelStatusDTO struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Backend string `json:"backend"`
		Status  string `json:"status"`
		Error   string `json:"error,omitempty"`
	}

	HealthResponseDTO struct {
		Status  string           `json:"status"`
		Version string           `json:"version"`
		Models  []ModelStatusDTO `json:"models"`
	}
)

type HealthOutput struct {
	Body HealthResponseDTO
}

// HealthHandler reports service and model readiness.
type HealthHandler struct {
	models  service.Models
	version string
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(api huma.API, models service.Models, version string) *HealthHandler {
	h := &HealthHandler{models: models, version: version}

	huma.Register(api, huma.Operation{
		OperationID:   "health",
		Method:        http.MethodGet,
		Path:          "/health",
		Summary:       "Report service health and model status",
		Tags:          []string{"health"},
		DefaultStatus: http.StatusOK,
	}, h.handleHealth)

	return h
}

// handleHealth handles the health operation. The service is degraded when
// models have not been loaded or any stage lacks a usable model.
func (h *HealthHandler) handleHealth(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	body := HealthResponseDTO{
		Status:  healthOK,
		Version: h.version,
		Models:  []ModelStatusDTO{},
	}

	var registry *model.Registry
	if h.models != nil {
		registry = h.models.Registry()
	}
	if registry == nil {
		body.Status = healthDegraded
		return &HealthOutput{Body: body}, nil
	}

	for _, m := range registry.List() {
		dto := ModelStatusDTO{
			ID:      m.ID,
			Type:    string(m.Type),
			Backend: m.Backend,
			Status:  string(m.CurrentStatus()),
		}
		if dto.Status == string(model.ModelStatusFailed) {
			dto.Error = m.CurrentError()
		}
		body.Models = append(body.Models, dto)
	}

	for _, kind := range []model.ModelType{model.ModelTypeSTT, model.ModelTypeTranslate, model.ModelTypeTTS} {
		if len(registry.Assigned(kind)) == 0 {
			body.Status = healthDegraded
		}
	}

	return &HealthOutput{Body: body}, nil
}
