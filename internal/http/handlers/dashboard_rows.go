package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/service"
)

// DashboardRowHandler serves the admin recommendation row endpoints.
type DashboardRowHandler struct {
	authn *Authenticator
	rows  repository.RecommendationRowRepository
	recs  *service.RecommendationService
}

// NewDashboardRowHandler creates a dashboard recommendation row handler.
func NewDashboardRowHandler(authn *Authenticator, rows repository.RecommendationRowRepository, recs *service.RecommendationService) *DashboardRowHandler {
	return &DashboardRowHandler{authn: authn, rows: rows, recs: recs}
}

// RowBody is the writable recommendation row representation.
type RowBody struct {
	LibraryID string `json:"library_id" minLength:"1"`
	Title     string `json:"title" minLength:"1"`
	SortOrder int    `json:"sort_order,omitempty"`
	Criteria  string `json:"criteria,omitempty" doc:"JSON filter document over media file fields"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// ListRowsInput is the request for GET /dashboard/libraries/{id}/rows.
type ListRowsInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Library ID"`
}

// ListRowsOutput is the response for GET /dashboard/libraries/{id}/rows.
type ListRowsOutput struct {
	Body []*models.RecommendationRow
}

// CreateRowInput is the request for POST /dashboard/rows.
type CreateRowInput struct {
	Authorization string `header:"Authorization"`
	Body          RowBody
}

// RowOutput is a single-row response.
type RowOutput struct {
	Status int
	Body   *models.RecommendationRow
}

// UpdateRowInput is the request for PUT /dashboard/rows/{id}.
type UpdateRowInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Recommendation row ID"`
	Body          RowBody
}

// DeleteRowInput is the request for DELETE /dashboard/rows/{id}.
type DeleteRowInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Recommendation row ID"`
}

// DeleteRowOutput is an empty 204 response.
type DeleteRowOutput struct {
	Status int
}

// RowItemsInput is the request for GET /dashboard/rows/{id}/items.
type RowItemsInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Recommendation row ID"`
}

// RowItemsOutput lists the media matching a row's criteria.
type RowItemsOutput struct {
	Body []*models.MediaFile
}

// Register registers the recommendation row endpoints with the API.
func (h *DashboardRowHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-list-rows",
		Method:      http.MethodGet,
		Path:        "/api/v1/dashboard/libraries/{id}/rows",
		Summary:     "List recommendation rows for a library",
		Tags:        []string{"Dashboard"},
	}, h.list)

	huma.Register(api, huma.Operation{
		OperationID:   "dashboard-create-row",
		Method:        http.MethodPost,
		Path:          "/api/v1/dashboard/rows",
		Summary:       "Create a recommendation row",
		DefaultStatus: http.StatusCreated,
		Tags:          []string{"Dashboard"},
	}, h.create)

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-update-row",
		Method:      http.MethodPut,
		Path:        "/api/v1/dashboard/rows/{id}",
		Summary:     "Update a recommendation row",
		Tags:        []string{"Dashboard"},
	}, h.update)

	huma.Register(api, huma.Operation{
		OperationID:   "dashboard-delete-row",
		Method:        http.MethodDelete,
		Path:          "/api/v1/dashboard/rows/{id}",
		Summary:       "Delete a recommendation row",
		DefaultStatus: http.StatusNoContent,
		Tags:          []string{"Dashboard"},
	}, h.delete)

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-row-items",
		Method:      http.MethodGet,
		Path:        "/api/v1/dashboard/rows/{id}/items",
		Summary:     "Resolve a row's criteria to its matching media files",
		Tags:        []string{"Dashboard"},
	}, h.items)
}

func (h *DashboardRowHandler) list(ctx context.Context, input *ListRowsInput) (*ListRowsOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid library id")
	}
	rows, err := h.rows.GetByLibrary(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	return &ListRowsOutput{Body: rows}, nil
}

func (h *DashboardRowHandler) create(ctx context.Context, input *CreateRowInput) (*RowOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	libraryID, err := models.ParseULID(input.Body.LibraryID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid library id")
	}
	if input.Body.Criteria != "" {
		if err := service.ValidateCriteria(input.Body.Criteria); err != nil {
			return nil, apiError(err)
		}
	}
	row := &models.RecommendationRow{
		LibraryID: libraryID,
		Title:     input.Body.Title,
		SortOrder: input.Body.SortOrder,
		Criteria:  input.Body.Criteria,
		Enabled:   input.Body.Enabled,
	}
	if row.Enabled == nil {
		row.Enabled = models.BoolPtr(true)
	}
	if err := h.rows.Create(ctx, row); err != nil {
		return nil, apiError(err)
	}
	return &RowOutput{Status: http.StatusCreated, Body: row}, nil
}

func (h *DashboardRowHandler) update(ctx context.Context, input *UpdateRowInput) (*RowOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid row id")
	}
	row, err := h.rows.GetByID(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	if row == nil {
		return nil, huma.Error404NotFound("recommendation row not found")
	}
	if input.Body.Criteria != "" {
		if err := service.ValidateCriteria(input.Body.Criteria); err != nil {
			return nil, apiError(err)
		}
	}

	row.Title = input.Body.Title
	row.SortOrder = input.Body.SortOrder
	row.Criteria = input.Body.Criteria
	if input.Body.Enabled != nil {
		row.Enabled = input.Body.Enabled
	}
	if err := h.rows.Update(ctx, row); err != nil {
		return nil, apiError(err)
	}
	return &RowOutput{Status: http.StatusOK, Body: row}, nil
}

func (h *DashboardRowHandler) delete(ctx context.Context, input *DeleteRowInput) (*DeleteRowOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid row id")
	}
	if err := h.rows.Delete(ctx, id); err != nil {
		return nil, apiError(err)
	}
	return &DeleteRowOutput{Status: http.StatusNoContent}, nil
}

func (h *DashboardRowHandler) items(ctx context.Context, input *RowItemsInput) (*RowItemsOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid row id")
	}
	items, err := h.recs.RowItems(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	return &RowItemsOutput{Body: items}, nil
}
