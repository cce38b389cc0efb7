package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/service"
)

// DashboardSettingsHandler serves the settings singleton. Updates take effect
// immediately: the settings service reschedules the recurring jobs in place.
type DashboardSettingsHandler struct {
	authn    *Authenticator
	settings *service.SettingsService
}

// NewDashboardSettingsHandler creates a dashboard settings handler.
func NewDashboardSettingsHandler(authn *Authenticator, settings *service.SettingsService) *DashboardSettingsHandler {
	return &DashboardSettingsHandler{authn: authn, settings: settings}
}

// GetSettingsInput is the request for GET /dashboard/settings.
type GetSettingsInput struct {
	Authorization string `header:"Authorization"`
}

// SettingsOutput is the settings singleton response.
type SettingsOutput struct {
	Body *models.Settings
}

// UpdateSettingsInput is the request for PUT /dashboard/settings.
type UpdateSettingsInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		LibraryScanIntervalMin   int `json:"library_scan_interval_minutes" minimum:"1"`
		CleanupScheduleHour      int `json:"cleanup_schedule_hour" minimum:"0" maximum:"23"`
		CleanupScheduleMinute    int `json:"cleanup_schedule_minute" minimum:"0" maximum:"59"`
		CleanupGracePeriodDays   int `json:"cleanup_grace_period_days" minimum:"0"`
		TranscodeSessionMaxHours int `json:"transcode_session_max_hours" minimum:"1"`
	}
}

// Register registers the settings endpoints with the API.
func (h *DashboardSettingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-get-settings",
		Method:      http.MethodGet,
		Path:        "/api/v1/dashboard/settings",
		Summary:     "Get the runtime settings",
		Tags:        []string{"Dashboard"},
	}, h.get)

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-update-settings",
		Method:      http.MethodPut,
		Path:        "/api/v1/dashboard/settings",
		Summary:     "Update the runtime settings and reschedule jobs",
		Tags:        []string{"Dashboard"},
	}, h.update)
}

func (h *DashboardSettingsHandler) get(ctx context.Context, input *GetSettingsInput) (*SettingsOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	settings, err := h.settings.Get(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return &SettingsOutput{Body: settings}, nil
}

func (h *DashboardSettingsHandler) update(ctx context.Context, input *UpdateSettingsInput) (*SettingsOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	current, err := h.settings.Get(ctx)
	if err != nil {
		return nil, apiError(err)
	}

	current.LibraryScanIntervalMin = input.Body.LibraryScanIntervalMin
	current.CleanupScheduleHour = input.Body.CleanupScheduleHour
	current.CleanupScheduleMinute = input.Body.CleanupScheduleMinute
	current.CleanupGracePeriodDays = input.Body.CleanupGracePeriodDays
	current.TranscodeSessionMaxHours = input.Body.TranscodeSessionMaxHours

	updated, err := h.settings.Update(ctx, current)
	if err != nil {
		return nil, apiError(err)
	}
	return &SettingsOutput{Body: updated}, nil
}
