package transcoder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/testutil"
)

// fakeEncoder writes a shell script that imitates the encoder: it prints a
// progress line, writes the playlist, then waits for "q" on stdin or a
// deadline.
func fakeEncoder(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

// playlistFromArgs recovers the playlist path, the final encoder argument,
// into $last and its directory into $dir.
const playlistFromArgs = `
for last; do :; done
dir=$(dirname "$last")
`

func newTestManager(t *testing.T, db *gorm.DB, ffmpegPath string) *Manager {
	t.Helper()
	repo := repository.NewTranscodingJobRepository(db)
	return NewManager(t.TempDir(), ffmpegPath, repo, nil, nil, nil)
}

func TestStartRemuxHLS_WaitsForPlaylist(t *testing.T) {
	db := testutil.NewTestDB(t)
	media := testutil.MakeMediaFile(t, db, "/media/film.mkv", 3600)

	script := playlistFromArgs + `
echo "frame=  100 fps= 50.0 time=00:00:04.00 bitrate= 900.0kbits/s speed=2.0x" >&2
touch "$dir/segment_000.ts"
touch "$last"
read _ignored
`
	m := newTestManager(t, db, fakeEncoder(t, script))

	job, err := m.StartRemuxHLS(context.Background(), media, Params{})
	require.NoError(t, err)
	assert.Equal(t, models.TranscodeTypeRemux, job.Type)
	assert.FileExists(t, job.PlaylistPath)

	stopped, err := m.Stop(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.NoDirExists(t, job.OutputPath)

	final, err := m.jobsRepo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, models.TranscodeStatusCancelled, final.Status)
}

func TestStart_ImmediateExitFails(t *testing.T) {
	db := testutil.NewTestDB(t)
	media := testutil.MakeMediaFile(t, db, "/media/film.mkv", 3600)

	script := `
echo "/media/film.mkv: Invalid data found when processing input" >&2
exit 1
`
	m := newTestManager(t, db, fakeEncoder(t, script))

	_, err := m.StartRemuxHLS(context.Background(), media, Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEncoderFailed)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestMonitor_CompletionMarksJob(t *testing.T) {
	db := testutil.NewTestDB(t)
	media := testutil.MakeMediaFile(t, db, "/media/film.mkv", 100)

	script := playlistFromArgs + `
echo "frame=  100 fps= 50.0 time=00:00:50.00 bitrate= 900.0kbits/s speed=2.0x" >&2
touch "$last"
sleep 0.3
exit 0
`
	m := newTestManager(t, db, fakeEncoder(t, script))

	job, err := m.StartRemuxHLS(context.Background(), media, Params{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := m.jobsRepo.GetByID(context.Background(), job.ID)
		return err == nil && current != nil && current.Status == models.TranscodeStatusCompleted
	}, 5*time.Second, 50*time.Millisecond)

	final, err := m.jobsRepo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(100), final.ProgressPercent)
	assert.InDelta(t, 50.0, final.TranscodedDuration, 1.0)
}

func TestMonitor_FailureCapturesStderr(t *testing.T) {
	db := testutil.NewTestDB(t)
	media := testutil.MakeMediaFile(t, db, "/media/film.mkv", 100)

	script := playlistFromArgs + `
touch "$last"
sleep 0.3
echo "Error while decoding stream #0:0" >&2
exit 1
`
	m := newTestManager(t, db, fakeEncoder(t, script))

	job, err := m.StartRemuxHLS(context.Background(), media, Params{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := m.jobsRepo.GetByID(context.Background(), job.ID)
		return err == nil && current != nil && current.Status == models.TranscodeStatusFailed
	}, 5*time.Second, 50*time.Millisecond)

	final, err := m.jobsRepo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Contains(t, final.ErrorMessage, "Error while decoding")
}

func TestStop_EscalatesToSigterm(t *testing.T) {
	db := testutil.NewTestDB(t)
	media := testutil.MakeMediaFile(t, db, "/media/film.mkv", 3600)

	// An encoder that never reads stdin, so the quit request goes unseen,
	// but exits cleanly on SIGTERM.
	script := playlistFromArgs + `
trap 'exit 0' TERM
touch "$last"
while :; do sleep 0.05; done
`
	m := newTestManager(t, db, fakeEncoder(t, script)).WithStopTimeout(2 * time.Second)

	job, err := m.StartRemuxHLS(context.Background(), media, Params{})
	require.NoError(t, err)

	start := time.Now()
	stopped, err := m.Stop(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, stopped)

	// SIGTERM fires after half the budget; a kill would only land at the
	// full budget. Finishing well before that means the TERM stage worked.
	assert.Less(t, time.Since(start), 1800*time.Millisecond)

	final, err := m.jobsRepo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, models.TranscodeStatusCancelled, final.Status)
	assert.NoDirExists(t, job.OutputPath)
}

func TestStop_UnknownJob(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := newTestManager(t, db, "/bin/false")

	stopped, err := m.Stop(context.Background(), "no-such-job")
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestCleanupStalledAtStartup(t *testing.T) {
	db := testutil.NewTestDB(t)
	media := testutil.MakeMediaFile(t, db, "/media/film.mkv", 100)
	m := newTestManager(t, db, "/bin/false")
	repo := m.jobsRepo

	dir := filepath.Join(t.TempDir(), "stalled-job")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	job := &models.TranscodingJob{
		MediaFileID: media.ID,
		Type:        models.TranscodeTypeHLS,
		Status:      models.TranscodeStatusRunning,
		OutputPath:  dir,
	}
	require.NoError(t, repo.Create(context.Background(), job))

	count, err := m.CleanupStalledAtStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoDirExists(t, dir)

	gone, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCleanupTranscodeFiles_RespectsMaxAge(t *testing.T) {
	db := testutil.NewTestDB(t)
	media := testutil.MakeMediaFile(t, db, "/media/film.mkv", 100)
	m := newTestManager(t, db, "/bin/false").WithMaxAge(time.Hour)
	repo := m.jobsRepo

	oldDir := filepath.Join(t.TempDir(), "old-job")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	stale := &models.TranscodingJob{
		MediaFileID: media.ID,
		Type:        models.TranscodeTypeHLS,
		Status:      models.TranscodeStatusCompleted,
		OutputPath:  oldDir,
	}
	require.NoError(t, repo.Create(context.Background(), stale))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Model(stale).UpdateColumn("last_accessed_at", past).Error)

	fresh := &models.TranscodingJob{
		MediaFileID: media.ID,
		Type:        models.TranscodeTypeHLS,
		Status:      models.TranscodeStatusCompleted,
	}
	require.NoError(t, repo.Create(context.Background(), fresh))
	now := time.Now()
	require.NoError(t, db.Model(fresh).UpdateColumn("last_accessed_at", now).Error)

	count, err := m.CleanupTranscodeFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoDirExists(t, oldDir)

	kept, err := repo.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestExtractSubtitle_RejectsMissingOutput(t *testing.T) {
	db := testutil.NewTestDB(t)
	m := newTestManager(t, db, fakeEncoder(t, "exit 0\n"))

	out := filepath.Join(t.TempDir(), "sub.vtt")
	err := m.ExtractSubtitle(context.Background(), "/media/film.mkv", 2, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEncoderFailed)
}

func TestExtractSubtitle_Succeeds(t *testing.T) {
	db := testutil.NewTestDB(t)
	script := `
for last; do :; done
printf 'WEBVTT\n' > "$last"
exit 0
`
	m := newTestManager(t, db, fakeEncoder(t, script))

	out := filepath.Join(t.TempDir(), "sub.vtt")
	require.NoError(t, m.ExtractSubtitle(context.Background(), "/media/film.mkv", 2, out))
	assert.FileExists(t, out)
}
