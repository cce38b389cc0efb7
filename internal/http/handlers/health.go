package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/NicolasFerec/ferelix-server/internal/database"
	"github.com/NicolasFerec/ferelix-server/internal/version"
)

// HealthHandler serves the unauthenticated liveness endpoint.
type HealthHandler struct {
	db *database.DB
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db *database.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthInput is the (empty) request for GET /health.
type HealthInput struct{}

// HealthOutput is the response for GET /health.
type HealthOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// Register registers the health endpoint with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness and database connectivity check",
		Tags:        []string{"Health"},
	}, h.health)
}

func (h *HealthHandler) health(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	if err := h.db.Ping(ctx); err != nil {
		return nil, huma.Error503ServiceUnavailable("database unreachable")
	}
	out := &HealthOutput{}
	out.Body.Status = "ok"
	out.Body.Version = version.Version
	return out, nil
}
