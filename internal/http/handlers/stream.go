package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
)

// streamChunkSize is the copy buffer for file streaming responses.
const streamChunkSize = 8 * 1024

// contentTypes maps file extensions to media MIME types.
var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".ts":   "video/mp2t",
	".flv":  "video/x-flv",
	".wmv":  "video/x-ms-wmv",
}

// StreamHandler serves media files with HTTP range support for direct play.
type StreamHandler struct {
	media repository.MediaFileRepository
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(media repository.MediaFileRepository) *StreamHandler {
	return &StreamHandler{media: media}
}

// RegisterRoutes mounts the raw streaming route. Range requests need direct
// control over status codes and chunked copying, so this bypasses huma.
func (h *StreamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/stream/{id}", h.serveFile)
}

func (h *StreamHandler) serveFile(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseULID(chi.URLParam(r, "id"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid media id")
		return
	}
	file, err := h.media.GetByID(r.Context(), id)
	if err != nil || file == nil || file.IsDeleted() {
		writeDetail(w, http.StatusNotFound, "media file not found")
		return
	}

	f, err := os.Open(file.FilePath)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "media file missing on disk")
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "stat failed")
		return
	}
	size := stat.Size()

	contentType := contentTypes[strings.ToLower(file.FileExtension)]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		copyChunks(w, f, size)
		return
	}

	start, end, ok := parseRange(rangeHeader, size)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		writeDetail(w, http.StatusRequestedRangeNotSatisfiable, "invalid range")
		return
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		writeDetail(w, http.StatusInternalServerError, "seek failed")
		return
	}
	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	copyChunks(w, f, length)
}

// parseRange handles a single "bytes=start-end" range. A missing end means
// the rest of the file. Suffix ranges ("bytes=-500") and multipart ranges are
// not supported.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}
	startStr, endStr, found := strings.Cut(spec, "-")
	if !found || startStr == "" {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}
	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, true
}

// copyChunks streams up to n bytes in fixed-size chunks, flushing after each
// so playback can begin before the copy finishes.
func copyChunks(w http.ResponseWriter, r io.Reader, n int64) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, streamChunkSize)
	remaining := n
	for remaining > 0 {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		read, err := r.Read(buf[:chunk])
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			remaining -= int64(read)
		}
		if err != nil {
			return
		}
	}
}
