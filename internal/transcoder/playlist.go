package transcoder

import (
	"fmt"
	"os"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// PlaylistInfo summarizes a session's manifest for status reporting.
type PlaylistInfo struct {
	SegmentCount   int     `json:"segment_count"`
	TargetDuration int     `json:"target_duration"`
	TotalDuration  float64 `json:"total_duration"`
	Ended          bool    `json:"ended"`
}

// SessionPlaylist reads and parses a session's manifest. Returns ErrNotFound
// while the encoder has not produced one yet.
func (m *Manager) SessionPlaylist(jobID string) (*PlaylistInfo, error) {
	data, err := os.ReadFile(m.PlaylistPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: playlist for job %s", models.ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("reading playlist for job %s: %w", jobID, err)
	}
	return parsePlaylist(data)
}

// parsePlaylist extracts segment statistics from a media playlist. The
// encoder only emits media playlists, never multivariant ones.
func parsePlaylist(data []byte) (*PlaylistInfo, error) {
	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parsing playlist: %w", err)
	}
	media, ok := pl.(*playlist.Media)
	if !ok {
		return nil, fmt.Errorf("%w: expected a media playlist", models.ErrInvalidArgument)
	}

	info := &PlaylistInfo{
		SegmentCount:   len(media.Segments),
		TargetDuration: media.TargetDuration,
		Ended:          media.Endlist,
	}
	for _, seg := range media.Segments {
		info.TotalDuration += seg.Duration.Seconds()
	}
	return info, nil
}
