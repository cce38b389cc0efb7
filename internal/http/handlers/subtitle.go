package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/transcoder"
)

// SubtitleHandler extracts embedded text subtitles to WebVTT and serves them
// from an on-disk cache.
type SubtitleHandler struct {
	media    repository.MediaFileRepository
	sessions *transcoder.Manager
	cacheDir string
}

// NewSubtitleHandler creates a subtitle handler.
func NewSubtitleHandler(media repository.MediaFileRepository, sessions *transcoder.Manager, cacheDir string) *SubtitleHandler {
	return &SubtitleHandler{media: media, sessions: sessions, cacheDir: cacheDir}
}

// RegisterRoutes mounts the subtitle route on the raw router.
func (h *SubtitleHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/subtitle/{media_id}/{stream_index}", h.serveSubtitle)
}

func (h *SubtitleHandler) serveSubtitle(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseULID(chi.URLParam(r, "media_id"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid media id")
		return
	}
	streamIndex, err := strconv.Atoi(chi.URLParam(r, "stream_index"))
	if err != nil || streamIndex < 0 {
		writeDetail(w, http.StatusBadRequest, "invalid stream index")
		return
	}

	media, err := h.media.GetByID(r.Context(), id)
	if err != nil || media == nil || media.IsDeleted() {
		writeDetail(w, http.StatusNotFound, "media file not found")
		return
	}

	var track *models.SubtitleTrack
	for i := range media.SubtitleTracks {
		if media.SubtitleTracks[i].StreamIndex == streamIndex {
			track = &media.SubtitleTracks[i]
			break
		}
	}
	if track == nil {
		writeDetail(w, http.StatusNotFound, "subtitle track not found")
		return
	}
	if !transcoder.IsTextSubtitleCodec(track.Codec) {
		writeDetail(w, http.StatusBadRequest, "subtitle codec cannot be converted to WebVTT")
		return
	}

	cached := filepath.Join(h.cacheDir, fmt.Sprintf("%s_%d.vtt", media.ID, streamIndex))
	if _, err := os.Stat(cached); err != nil {
		if err := os.MkdirAll(h.cacheDir, 0o755); err != nil {
			writeDetail(w, http.StatusInternalServerError, "subtitle cache unavailable")
			return
		}
		if err := h.sessions.ExtractSubtitle(r.Context(), media.FilePath, streamIndex, cached); err != nil {
			writeDetail(w, http.StatusInternalServerError, "subtitle extraction failed")
			return
		}
	}

	w.Header().Set("Content-Type", "text/vtt")
	http.ServeFile(w, r, cached)
}
