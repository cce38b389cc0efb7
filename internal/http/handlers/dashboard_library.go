package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/scanner"
	"github.com/NicolasFerec/ferelix-server/internal/scheduler"
)

// DashboardLibraryHandler serves the admin library CRUD, directory browsing,
// and scan trigger endpoints.
type DashboardLibraryHandler struct {
	authn     *Authenticator
	libraries repository.LibraryRepository
	scanner   *scanner.Scanner
	sched     *scheduler.Scheduler
}

// NewDashboardLibraryHandler creates a dashboard library handler.
func NewDashboardLibraryHandler(authn *Authenticator, libraries repository.LibraryRepository, sc *scanner.Scanner, sched *scheduler.Scheduler) *DashboardLibraryHandler {
	return &DashboardLibraryHandler{authn: authn, libraries: libraries, scanner: sc, sched: sched}
}

// LibraryBody is the writable library representation.
type LibraryBody struct {
	Name    string             `json:"name" minLength:"1"`
	Path    string             `json:"path" minLength:"1"`
	Type    models.LibraryType `json:"type" enum:"movies,shows" default:"movies"`
	Enabled *bool              `json:"enabled,omitempty"`
}

// CreateLibraryInput is the request for POST /dashboard/libraries.
type CreateLibraryInput struct {
	Authorization string `header:"Authorization"`
	Body          LibraryBody
}

// LibraryOutput is a single-library response.
type LibraryOutput struct {
	Status int
	Body   *models.Library
}

// UpdateLibraryInput is the request for PUT /dashboard/libraries/{id}.
type UpdateLibraryInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Library ID"`
	Body          LibraryBody
}

// DeleteLibraryInput is the request for DELETE /dashboard/libraries/{id}.
type DeleteLibraryInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Library ID"`
}

// DeleteLibraryOutput is an empty 204 response.
type DeleteLibraryOutput struct {
	Status int
}

// BrowseInput is the request for GET /dashboard/browse.
type BrowseInput struct {
	Authorization string `header:"Authorization"`
	Path          string `query:"path" doc:"Absolute directory to list; empty lists the filesystem root"`
}

// BrowseEntry is one directory in a browse listing.
type BrowseEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// BrowseOutput is the response for GET /dashboard/browse.
type BrowseOutput struct {
	Body struct {
		Path    string        `json:"path"`
		Parent  string        `json:"parent,omitempty"`
		Entries []BrowseEntry `json:"entries"`
	}
}

// TriggerScanInput is the request for POST /dashboard/libraries/{id}/scan.
type TriggerScanInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Library ID"`
}

// TriggerScanOutput reports the scheduled scan job.
type TriggerScanOutput struct {
	Body struct {
		JobID string `json:"job_id"`
	}
}

// ScanAllInput is the request for POST /dashboard/scan.
type ScanAllInput struct {
	Authorization string `header:"Authorization"`
}

// ScanAllOutput reports how many library scans were scheduled.
type ScanAllOutput struct {
	Body scanner.ScanAllResult
}

// Register registers the dashboard library endpoints with the API.
func (h *DashboardLibraryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-list-libraries",
		Method:      http.MethodGet,
		Path:        "/api/v1/dashboard/libraries",
		Summary:     "List all libraries including disabled ones",
		Tags:        []string{"Dashboard"},
	}, h.list)

	huma.Register(api, huma.Operation{
		OperationID:   "dashboard-create-library",
		Method:        http.MethodPost,
		Path:          "/api/v1/dashboard/libraries",
		Summary:       "Create a library",
		DefaultStatus: http.StatusCreated,
		Tags:          []string{"Dashboard"},
	}, h.create)

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-update-library",
		Method:      http.MethodPut,
		Path:        "/api/v1/dashboard/libraries/{id}",
		Summary:     "Update a library",
		Tags:        []string{"Dashboard"},
	}, h.update)

	huma.Register(api, huma.Operation{
		OperationID:   "dashboard-delete-library",
		Method:        http.MethodDelete,
		Path:          "/api/v1/dashboard/libraries/{id}",
		Summary:       "Delete a library",
		Description:   "Media files under the library are not touched; the scanner owns their lifecycle.",
		DefaultStatus: http.StatusNoContent,
		Tags:          []string{"Dashboard"},
	}, h.delete)

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-browse-directories",
		Method:      http.MethodGet,
		Path:        "/api/v1/dashboard/browse",
		Summary:     "List subdirectories of a path",
		Description: "Hidden directories (dot prefix) are skipped.",
		Tags:        []string{"Dashboard"},
	}, h.browse)

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-scan-library",
		Method:      http.MethodPost,
		Path:        "/api/v1/dashboard/libraries/{id}/scan",
		Summary:     "Schedule a one-shot scan of a library",
		Tags:        []string{"Dashboard"},
	}, h.triggerScan)

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-scan-all",
		Method:      http.MethodPost,
		Path:        "/api/v1/dashboard/scan",
		Summary:     "Schedule scans for every enabled library",
		Tags:        []string{"Dashboard"},
	}, h.scanAll)
}

// ListAllLibrariesOutput is the response for GET /dashboard/libraries.
type ListAllLibrariesOutput struct {
	Body []*models.Library
}

func (h *DashboardLibraryHandler) list(ctx context.Context, input *ListLibrariesInput) (*ListAllLibrariesOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	libraries, err := h.libraries.GetAll(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return &ListAllLibrariesOutput{Body: libraries}, nil
}

func (h *DashboardLibraryHandler) create(ctx context.Context, input *CreateLibraryInput) (*LibraryOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	library := &models.Library{
		Name:    input.Body.Name,
		Path:    filepath.Clean(input.Body.Path),
		Type:    input.Body.Type,
		Enabled: input.Body.Enabled,
	}
	if library.Enabled == nil {
		library.Enabled = models.BoolPtr(true)
	}
	if existing, err := h.libraries.GetByPath(ctx, library.Path); err == nil && existing != nil {
		return nil, huma.Error409Conflict("a library with this path already exists")
	}
	if err := h.libraries.Create(ctx, library); err != nil {
		return nil, apiError(err)
	}
	return &LibraryOutput{Status: http.StatusCreated, Body: library}, nil
}

func (h *DashboardLibraryHandler) update(ctx context.Context, input *UpdateLibraryInput) (*LibraryOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid library id")
	}
	library, err := h.libraries.GetByID(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	if library == nil {
		return nil, huma.Error404NotFound("library not found")
	}

	library.Name = input.Body.Name
	library.Path = filepath.Clean(input.Body.Path)
	library.Type = input.Body.Type
	if input.Body.Enabled != nil {
		library.Enabled = input.Body.Enabled
	}
	if err := h.libraries.Update(ctx, library); err != nil {
		return nil, apiError(err)
	}
	return &LibraryOutput{Status: http.StatusOK, Body: library}, nil
}

func (h *DashboardLibraryHandler) delete(ctx context.Context, input *DeleteLibraryInput) (*DeleteLibraryOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid library id")
	}
	if err := h.libraries.Delete(ctx, id); err != nil {
		return nil, apiError(err)
	}
	return &DeleteLibraryOutput{Status: http.StatusNoContent}, nil
}

func (h *DashboardLibraryHandler) browse(ctx context.Context, input *BrowseInput) (*BrowseOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}

	dir := input.Path
	if dir == "" {
		dir = string(os.PathSeparator)
	}
	dir = filepath.Clean(dir)
	if !filepath.IsAbs(dir) {
		return nil, huma.Error400BadRequest("path must be absolute")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, huma.Error404NotFound("directory not found")
		}
		return nil, huma.Error403Forbidden("directory not readable")
	}

	out := &BrowseOutput{}
	out.Body.Path = dir
	if parent := filepath.Dir(dir); parent != dir {
		out.Body.Parent = parent
	}
	out.Body.Entries = make([]BrowseEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		out.Body.Entries = append(out.Body.Entries, BrowseEntry{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(out.Body.Entries, func(i, j int) bool {
		return out.Body.Entries[i].Name < out.Body.Entries[j].Name
	})
	return out, nil
}

func (h *DashboardLibraryHandler) triggerScan(ctx context.Context, input *TriggerScanInput) (*TriggerScanOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid library id")
	}
	library, err := h.libraries.GetByID(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	if library == nil {
		return nil, huma.Error404NotFound("library not found")
	}
	if !library.IsEnabled() {
		return nil, huma.Error403Forbidden("library is disabled")
	}

	jobID, err := h.scanner.ScheduleScan(h.sched, library)
	if err != nil {
		return nil, apiError(err)
	}
	out := &TriggerScanOutput{}
	out.Body.JobID = jobID
	return out, nil
}

func (h *DashboardLibraryHandler) scanAll(ctx context.Context, input *ScanAllInput) (*ScanAllOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	result, err := h.scanner.ScanAll(ctx, h.sched)
	if err != nil {
		return nil, apiError(err)
	}
	return &ScanAllOutput{Body: result}, nil
}
