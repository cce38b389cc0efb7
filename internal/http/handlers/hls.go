package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/NicolasFerec/ferelix-server/internal/ffmpeg"
	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/transcoder"
)

// segmentNameRe matches the only segment filenames the muxer produces.
var segmentNameRe = regexp.MustCompile(`^segment_\d{3,}\.ts$`)

// HLSHandler serves HLS session control and segment delivery.
type HLSHandler struct {
	authn    *Authenticator
	media    repository.MediaFileRepository
	jobs     repository.TranscodingJobRepository
	sessions *transcoder.Manager
}

// NewHLSHandler creates an HLS handler.
func NewHLSHandler(authn *Authenticator, media repository.MediaFileRepository, jobs repository.TranscodingJobRepository, sessions *transcoder.Manager) *HLSHandler {
	return &HLSHandler{authn: authn, media: media, jobs: jobs, sessions: sessions}
}

// StartSessionInput is the request for the three session-start endpoints.
// The path id is the media file id.
type StartSessionInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Media file ID"`
	Body          struct {
		VideoCodec          string  `json:"video_codec,omitempty"`
		AudioCodec          string  `json:"audio_codec,omitempty"`
		VideoBitrate        int64   `json:"video_bitrate,omitempty"`
		AudioBitrate        int64   `json:"audio_bitrate,omitempty"`
		MaxWidth            int     `json:"max_width,omitempty"`
		MaxHeight           int     `json:"max_height,omitempty"`
		StartTime           float64 `json:"start_time,omitempty"`
		AudioStreamIndex    *int    `json:"audio_stream_index,omitempty"`
		SubtitleStreamIndex *int    `json:"subtitle_stream_index,omitempty"`
	}
}

// SessionBody describes a started or queried session.
type SessionBody struct {
	JobID       string                 `json:"job_id"`
	PlaylistURL string                 `json:"playlist_url"`
	Job         *models.TranscodingJob `json:"job"`
}

// SessionOutput is the response for the session-start endpoints.
type SessionOutput struct {
	Body SessionBody
}

// SessionStatusInput is the request for GET /hls/{id}/status.
type SessionStatusInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Transcoding job ID"`
}

// SessionStatusBody is the session status with a live process snapshot and
// the current manifest shape.
type SessionStatusBody struct {
	Job      *models.TranscodingJob   `json:"job"`
	Process  *ffmpeg.ProcessStats     `json:"process,omitempty"`
	Playlist *transcoder.PlaylistInfo `json:"playlist,omitempty"`
}

// SessionStatusOutput is the response for GET /hls/{id}/status.
type SessionStatusOutput struct {
	Body SessionStatusBody
}

// StopSessionOutput is the response for DELETE /hls/{id}/stop.
type StopSessionOutput struct {
	Body struct {
		Stopped bool `json:"stopped"`
	}
}

// Register registers the huma session-control endpoints. Playlist and segment
// delivery are raw routes, see RegisterRoutes.
func (h *HLSHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "start-hls-remux",
		Method:      http.MethodPost,
		Path:        "/api/v1/hls/{id}/remux",
		Summary:     "Start an HLS remux session",
		Description: "Repackages the file into HLS segments without re-encoding.",
		Tags:        []string{"HLS"},
	}, h.startRemux)

	huma.Register(api, huma.Operation{
		OperationID: "start-hls-transcode",
		Method:      http.MethodPost,
		Path:        "/api/v1/hls/{id}/start",
		Summary:     "Start an HLS transcode session",
		Tags:        []string{"HLS"},
	}, h.startTranscode)

	huma.Register(api, huma.Operation{
		OperationID: "start-hls-audio-transcode",
		Method:      http.MethodPost,
		Path:        "/api/v1/hls/{id}/audio-transcode",
		Summary:     "Start an HLS session that copies video and re-encodes audio",
		Tags:        []string{"HLS"},
	}, h.startAudioTranscode)

	huma.Register(api, huma.Operation{
		OperationID: "get-hls-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/hls/{id}/status",
		Summary:     "Get transcoding session status",
		Tags:        []string{"HLS"},
	}, h.status)

	huma.Register(api, huma.Operation{
		OperationID: "stop-hls-session",
		Method:      http.MethodDelete,
		Path:        "/api/v1/hls/{id}/stop",
		Summary:     "Stop a transcoding session and remove its output",
		Tags:        []string{"HLS"},
	}, h.stop)
}

// RegisterRoutes mounts playlist and segment delivery on the raw router.
func (h *HLSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/hls/{id}/playlist.m3u8", h.servePlaylist)
	r.Get("/api/v1/hls/{id}/segment_{seq}.ts", h.serveSegment)
}

func (h *HLSHandler) startRemux(ctx context.Context, input *StartSessionInput) (*SessionOutput, error) {
	media, err := h.mediaForStart(ctx, input)
	if err != nil {
		return nil, err
	}
	job, err := h.sessions.StartRemuxHLS(ctx, media, transcoder.Params{
		StartTime:        input.Body.StartTime,
		AudioStreamIndex: input.Body.AudioStreamIndex,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return sessionOutput(job), nil
}

func (h *HLSHandler) startTranscode(ctx context.Context, input *StartSessionInput) (*SessionOutput, error) {
	media, err := h.mediaForStart(ctx, input)
	if err != nil {
		return nil, err
	}
	p := transcoder.Params{
		VideoCodec:          input.Body.VideoCodec,
		AudioCodec:          input.Body.AudioCodec,
		VideoBitrate:        input.Body.VideoBitrate,
		AudioBitrate:        input.Body.AudioBitrate,
		MaxWidth:            input.Body.MaxWidth,
		MaxHeight:           input.Body.MaxHeight,
		StartTime:           input.Body.StartTime,
		AudioStreamIndex:    input.Body.AudioStreamIndex,
		SubtitleStreamIndex: input.Body.SubtitleStreamIndex,
	}
	if p.VideoCodec == "" {
		p.VideoCodec = "h264"
	}
	if p.AudioCodec == "" {
		p.AudioCodec = "aac"
	}
	if p.SubtitleStreamIndex != nil {
		p.SubtitleCodec = subtitleCodecAt(media, *p.SubtitleStreamIndex)
	}
	job, err := h.sessions.StartHLSTranscode(ctx, media, p)
	if err != nil {
		return nil, apiError(err)
	}
	return sessionOutput(job), nil
}

func (h *HLSHandler) startAudioTranscode(ctx context.Context, input *StartSessionInput) (*SessionOutput, error) {
	media, err := h.mediaForStart(ctx, input)
	if err != nil {
		return nil, err
	}
	job, err := h.sessions.StartAudioTranscodeHLS(ctx, media, transcoder.Params{
		AudioCodec:       input.Body.AudioCodec,
		AudioBitrate:     input.Body.AudioBitrate,
		StartTime:        input.Body.StartTime,
		AudioStreamIndex: input.Body.AudioStreamIndex,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return sessionOutput(job), nil
}

func (h *HLSHandler) status(ctx context.Context, input *SessionStatusInput) (*SessionStatusOutput, error) {
	if _, err := h.authn.UserFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	job, err := h.jobs.GetByID(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	if job == nil {
		return nil, huma.Error404NotFound("transcoding job not found")
	}

	out := &SessionStatusOutput{Body: SessionStatusBody{Job: job}}
	if job.Status == models.TranscodeStatusRunning {
		if stats, err := h.sessions.ProcessStats(ctx, job.ID); err == nil {
			out.Body.Process = stats
		}
	}
	if info, err := h.sessions.SessionPlaylist(job.ID); err == nil {
		out.Body.Playlist = info
	}
	return out, nil
}

func (h *HLSHandler) stop(ctx context.Context, input *SessionStatusInput) (*StopSessionOutput, error) {
	if _, err := h.authn.UserFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	stopped, err := h.sessions.Stop(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	if !stopped {
		return nil, huma.Error404NotFound("transcoding job not found")
	}
	out := &StopSessionOutput{}
	out.Body.Stopped = true
	return out, nil
}

func (h *HLSHandler) servePlaylist(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := h.jobs.GetByID(r.Context(), jobID)
	if err != nil || job == nil {
		writeDetail(w, http.StatusNotFound, "transcoding job not found")
		return
	}
	switch job.Status {
	case models.TranscodeStatusCancelled:
		writeDetail(w, http.StatusGone, "session cancelled")
		return
	case models.TranscodeStatusFailed:
		writeDetail(w, http.StatusInternalServerError, job.ErrorMessage)
		return
	}

	playlist := h.sessions.PlaylistPath(jobID)
	if _, err := os.Stat(playlist); err != nil {
		writeDetail(w, http.StatusNotFound, "playlist not ready")
		return
	}

	h.touch(r.Context(), job)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, playlist)
}

func (h *HLSHandler) serveSegment(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	name := fmt.Sprintf("segment_%s.ts", chi.URLParam(r, "seq"))
	if !segmentNameRe.MatchString(name) {
		writeDetail(w, http.StatusNotFound, "segment not found")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), jobID)
	if err != nil || job == nil {
		writeDetail(w, http.StatusNotFound, "transcoding job not found")
		return
	}

	segment := filepath.Join(h.sessions.JobDir(jobID), name)
	if _, err := os.Stat(segment); err != nil {
		writeDetail(w, http.StatusNotFound, "segment not found")
		return
	}

	h.touch(r.Context(), job)
	w.Header().Set("Content-Type", "video/mp2t")
	http.ServeFile(w, r, segment)
}

// touch keeps the session out of the stale sweep while a player is pulling
// segments.
func (h *HLSHandler) touch(ctx context.Context, job *models.TranscodingJob) {
	job.Touch()
	_ = h.jobs.Update(ctx, job)
}

func (h *HLSHandler) mediaForStart(ctx context.Context, input *StartSessionInput) (*models.MediaFile, error) {
	if _, err := h.authn.UserFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid media id")
	}
	media, err := h.media.GetByID(ctx, id)
	if err != nil {
		return nil, apiError(err)
	}
	if media == nil || media.IsDeleted() {
		return nil, huma.Error404NotFound("media file not found")
	}
	return media, nil
}

func sessionOutput(job *models.TranscodingJob) *SessionOutput {
	return &SessionOutput{Body: SessionBody{
		JobID:       job.ID,
		PlaylistURL: fmt.Sprintf("/api/v1/hls/%s/playlist.m3u8", job.ID),
		Job:         job,
	}}
}

func subtitleCodecAt(media *models.MediaFile, streamIndex int) string {
	for i := range media.SubtitleTracks {
		if media.SubtitleTracks[i].StreamIndex == streamIndex {
			return media.SubtitleTracks[i].Codec
		}
	}
	return ""
}
