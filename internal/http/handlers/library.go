package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
)

// LibraryHandler serves the read-only browsing endpoints used by players.
type LibraryHandler struct {
	authn     *Authenticator
	libraries repository.LibraryRepository
	media     repository.MediaFileRepository
}

// NewLibraryHandler creates a library handler.
func NewLibraryHandler(authn *Authenticator, libraries repository.LibraryRepository, media repository.MediaFileRepository) *LibraryHandler {
	return &LibraryHandler{authn: authn, libraries: libraries, media: media}
}

// ListLibrariesInput is the request for GET /libraries.
type ListLibrariesInput struct {
	Authorization string `header:"Authorization"`
}

// ListLibrariesOutput is the response for GET /libraries.
type ListLibrariesOutput struct {
	Body []*models.Library
}

// LibraryItemsInput is the request for GET /libraries/{id}/items.
type LibraryItemsInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Library ID"`
	Skip          int    `query:"skip" minimum:"0" default:"0"`
	Limit         int    `query:"limit" minimum:"1" maximum:"500" default:"100"`
}

// LibraryItemsBody is the paginated item listing.
type LibraryItemsBody struct {
	Items []*models.MediaFile `json:"items"`
	Total int64               `json:"total"`
	Skip  int                 `json:"skip"`
	Limit int                 `json:"limit"`
}

// LibraryItemsOutput is the response for GET /libraries/{id}/items.
type LibraryItemsOutput struct {
	Body LibraryItemsBody
}

// MediaDetailInput is the request for GET /media/{id}.
type MediaDetailInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Media file ID"`
}

// MediaDetailOutput is the response for GET /media/{id}.
type MediaDetailOutput struct {
	Body *models.MediaFile
}

// Register registers the browsing endpoints with the API.
func (h *LibraryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-libraries",
		Method:      http.MethodGet,
		Path:        "/api/v1/libraries",
		Summary:     "List libraries",
		Tags:        []string{"Libraries"},
	}, h.list)

	huma.Register(api, huma.Operation{
		OperationID: "list-library-items",
		Method:      http.MethodGet,
		Path:        "/api/v1/libraries/{id}/items",
		Summary:     "List media files in a library",
		Description: "Returns non-deleted media files under the library path, paginated.",
		Tags:        []string{"Libraries"},
	}, h.items)

	huma.Register(api, huma.Operation{
		OperationID: "get-media-file",
		Method:      http.MethodGet,
		Path:        "/api/v1/media/{id}",
		Summary:     "Get a media file with its tracks",
		Tags:        []string{"Libraries"},
	}, h.getMedia)
}

func (h *LibraryHandler) list(ctx context.Context, input *ListLibrariesInput) (*ListLibrariesOutput, error) {
	if _, err := h.authn.UserFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	libraries, err := h.libraries.GetEnabled(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return &ListLibrariesOutput{Body: libraries}, nil
}

func (h *LibraryHandler) items(ctx context.Context, input *LibraryItemsInput) (*LibraryItemsOutput, error) {
	if _, err := h.authn.UserFromHeader(ctx, input.Authorization); err != nil {
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
	items, total, err := h.media.ListActiveUnderPath(ctx, library.Path, input.Skip, input.Limit)
	if err != nil {
		return nil, apiError(err)
	}
	return &LibraryItemsOutput{Body: LibraryItemsBody{
		Items: items,
		Total: total,
		Skip:  input.Skip,
		Limit: input.Limit,
	}}, nil
}

func (h *LibraryHandler) getMedia(ctx context.Context, input *MediaDetailInput) (*MediaDetailOutput, error) {
	if _, err := h.authn.UserFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid media id")
	}
	file, err := h.media.GetByID(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	if file == nil || file.IsDeleted() {
		return nil, huma.Error404NotFound("media file not found")
	}
	return &MediaDetailOutput{Body: file}, nil
}
