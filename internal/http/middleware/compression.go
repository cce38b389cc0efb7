package middleware

import (
	"net/http"
	"strings"
)

// IsMediaPath reports whether a request path delivers media bytes: file
// streams, HLS playlists and segments, or extracted subtitles.
func IsMediaPath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/stream/") ||
		strings.HasPrefix(path, "/api/v1/hls/") ||
		strings.HasPrefix(path, "/api/v1/subtitle/")
}

// SkipCompressionForMedia wraps a compression middleware so media responses
// bypass it. Video payloads are already compressed, and gzip breaks
// Content-Range bookkeeping on byte-range responses.
func SkipCompressionForMedia(compressionHandler func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressedHandler := compressionHandler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsMediaPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			// WebSocket upgrades must not be buffered either.
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			compressedHandler.ServeHTTP(w, r)
		})
	}
}
