package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/stream"
)

// PlaybackHandler serves the playback decision endpoint.
type PlaybackHandler struct {
	authn *Authenticator
	media repository.MediaFileRepository
}

// NewPlaybackHandler creates a playback handler.
func NewPlaybackHandler(authn *Authenticator, media repository.MediaFileRepository) *PlaybackHandler {
	return &PlaybackHandler{authn: authn, media: media}
}

// PlaybackInfoInput is the request for POST /playback-info/{id}. Field names
// follow the client-facing PascalCase convention of the decision payload.
type PlaybackInfoInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Media file ID"`
	Body          struct {
		DeviceProfile       *stream.DeviceProfile `json:"DeviceProfile"`
		EnableDirectPlay    *bool                 `json:"EnableDirectPlay"`
		EnableDirectStream  *bool                 `json:"EnableDirectStream"`
		EnableTranscoding   *bool                 `json:"EnableTranscoding"`
		RequestedResolution *stream.Resolution    `json:"RequestedResolution,omitempty"`
	}
}

// PlaybackInfoBody wraps the decision in a media source list.
type PlaybackInfoBody struct {
	MediaSources []*stream.StreamInfo `json:"MediaSources"`
}

// PlaybackInfoOutput is the response for POST /playback-info/{id}.
type PlaybackInfoOutput struct {
	Body PlaybackInfoBody
}

// Register registers the playback endpoint with the API.
func (h *PlaybackHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-playback-info",
		Method:      http.MethodPost,
		Path:        "/api/v1/playback-info/{id}",
		Summary:     "Decide how to play a media file",
		Description: "Evaluates the device profile against the file's tracks and returns the chosen delivery mode with stream URLs.",
		Tags:        []string{"Playback"},
	}, h.playbackInfo)
}

func (h *PlaybackHandler) playbackInfo(ctx context.Context, input *PlaybackInfoInput) (*PlaybackInfoOutput, error) {
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

	profile := input.Body.DeviceProfile
	if profile == nil {
		profile = &stream.DeviceProfile{}
	}
	opts := stream.Options{
		AllowDirectPlay:     boolOr(input.Body.EnableDirectPlay, true),
		AllowDirectStream:   boolOr(input.Body.EnableDirectStream, true),
		AllowTranscode:      boolOr(input.Body.EnableTranscoding, true),
		RequestedResolution: input.Body.RequestedResolution,
	}

	info := stream.Decide(file, profile, opts)
	return &PlaybackInfoOutput{Body: PlaybackInfoBody{MediaSources: []*stream.StreamInfo{info}}}, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
