package transcoder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

const vodPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-PLAYLIST-TYPE:VOD
#EXTINF:6.000000,
segment_000.ts
#EXTINF:6.000000,
segment_001.ts
#EXTINF:3.500000,
segment_002.ts
#EXT-X-ENDLIST
`

func TestParsePlaylist_VOD(t *testing.T) {
	info, err := parsePlaylist([]byte(vodPlaylist))
	require.NoError(t, err)

	assert.Equal(t, 3, info.SegmentCount)
	assert.Equal(t, 6, info.TargetDuration)
	assert.InDelta(t, 15.5, info.TotalDuration, 0.001)
	assert.True(t, info.Ended)
}

func TestParsePlaylist_InProgress(t *testing.T) {
	live := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.000000,
segment_000.ts
`
	info, err := parsePlaylist([]byte(live))
	require.NoError(t, err)

	assert.Equal(t, 1, info.SegmentCount)
	assert.False(t, info.Ended)
}

func TestParsePlaylist_Garbage(t *testing.T) {
	_, err := parsePlaylist([]byte("not a playlist"))
	assert.Error(t, err)
}

func TestSessionPlaylist_MissingIsNotFound(t *testing.T) {
	m := &Manager{root: t.TempDir()}

	_, err := m.SessionPlaylist("no-such-job")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestSessionPlaylist_ReadsManifest(t *testing.T) {
	m := &Manager{root: t.TempDir()}
	dir := m.JobDir("job-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "playlist.m3u8"), []byte(vodPlaylist), 0o644))

	info, err := m.SessionPlaylist("job-1")
	require.NoError(t, err)
	assert.Equal(t, 3, info.SegmentCount)
	assert.True(t, info.Ended)
}
