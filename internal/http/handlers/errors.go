// Package handlers provides the HTTP API handlers for ferelix.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// apiError maps a core error to the huma status error the client sees.
func apiError(err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, models.ErrConflict):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, models.ErrInvalidArgument):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, models.ErrForbidden):
		return huma.Error403Forbidden(err.Error())
	case errors.Is(err, models.ErrUnavailable):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, models.ErrEncoderFailed):
		return huma.Error500InternalServerError(err.Error())
	default:
		return huma.Error500InternalServerError("internal error")
	}
}

// writeDetail writes the JSON error body used by the raw (non-huma) routes.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
