package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/NicolasFerec/ferelix-server/internal/ffmpeg"
	"github.com/NicolasFerec/ferelix-server/internal/jobs"
	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/scheduler"
	"github.com/NicolasFerec/ferelix-server/internal/testutil"
)

func schedulerForTest(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	return scheduler.New(nil)
}

// fakeProber returns canned media info keyed by file name.
type fakeProber struct {
	infos   map[string]*ffmpeg.MediaInfo
	fail    map[string]bool
	calls   int
	onProbe func(calls int)
}

func (p *fakeProber) ProbeMedia(_ context.Context, path string) (*ffmpeg.MediaInfo, error) {
	p.calls++
	if p.onProbe != nil {
		p.onProbe(p.calls)
	}
	if p.fail[filepath.Base(path)] {
		return nil, models.ErrProbeFailed
	}
	if info, ok := p.infos[filepath.Base(path)]; ok {
		return info, nil
	}
	return &ffmpeg.MediaInfo{Duration: 60}, nil
}

type fixture struct {
	db       *gorm.DB
	scanner  *Scanner
	media    repository.MediaFileRepository
	registry *jobs.Registry
	library  *models.Library
	root     string
	prober   *fakeProber
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	root := t.TempDir()

	libraries := repository.NewLibraryRepository(db)
	media := repository.NewMediaFileRepository(db)
	registry := jobs.NewRegistry(jobs.NewBus(), nil)
	prober := &fakeProber{
		infos: map[string]*ffmpeg.MediaInfo{
			"a.mp4": {
				Duration: 120,
				Codec:    "h264",
				Width:    1920,
				Height:   1080,
				VideoTracks: []models.VideoTrack{
					{StreamIndex: 0, Codec: "h264"},
				},
				AudioTracks: []models.AudioTrack{
					{StreamIndex: 1, Codec: "aac"},
				},
			},
			"b.mkv": {
				Duration: 5400,
				Codec:    "hevc",
				VideoTracks: []models.VideoTrack{
					{StreamIndex: 0, Codec: "hevc"},
				},
				AudioTracks: []models.AudioTrack{
					{StreamIndex: 1, Codec: "ac3"},
				},
			},
		},
		fail: map[string]bool{},
	}

	library := testutil.MakeLibrary(t, db, "Movies", root)

	return &fixture{
		db:       db,
		scanner:  New(libraries, media, prober, registry, nil),
		media:    media,
		registry: registry,
		library:  library,
		root:     root,
		prober:   prober,
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
}

func TestScanLibrary_FreshScan(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "a.mp4"))
	writeFile(t, filepath.Join(f.root, "b.mkv"))
	writeFile(t, filepath.Join(f.root, "c.txt"))

	stats, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ScanStats{New: 2}, stats)

	file, err := f.media.GetByPath(context.Background(), filepath.Join(f.root, "a.mp4"))
	require.NoError(t, err)
	require.NotNil(t, file)
	require.NotNil(t, file.Codec)
	assert.Equal(t, "h264", *file.Codec)
	require.NotNil(t, file.ScannedAt)

	missing, err := f.media.GetByPath(context.Background(), filepath.Join(f.root, "c.txt"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestScanLibrary_DiffLaw(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "a.mp4"))
	writeFile(t, filepath.Join(f.root, "b.mkv"))

	_, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, "")
	require.NoError(t, err)

	// An immediate rescan yields only updates.
	stats, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ScanStats{Updated: 2}, stats)
}

func TestScanLibrary_RemovalAndRestore(t *testing.T) {
	f := newFixture(t)
	aPath := filepath.Join(f.root, "a.mp4")
	writeFile(t, aPath)
	writeFile(t, filepath.Join(f.root, "b.mkv"))

	_, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, "")
	require.NoError(t, err)

	// Removal soft-deletes the row.
	require.NoError(t, os.Remove(aPath))
	stats, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ScanStats{Updated: 1, Deleted: 1}, stats)

	file, err := f.media.GetByPath(context.Background(), aPath)
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.True(t, file.IsDeleted())

	// Reappearance restores it.
	writeFile(t, aPath)
	stats, err = f.scanner.ScanLibrary(context.Background(), f.library.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ScanStats{Updated: 2, Restored: 1}, stats)

	file, err = f.media.GetByPath(context.Background(), aPath)
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.False(t, file.IsDeleted())
}

func TestScanLibrary_ProbeFailureDegrades(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "a.mp4"))
	f.prober.fail["a.mp4"] = true

	stats, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ScanStats{New: 1}, stats)

	file, err := f.media.GetByPath(context.Background(), filepath.Join(f.root, "a.mp4"))
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Nil(t, file.Codec)
	assert.Nil(t, file.Duration)
}

func TestScanLibrary_MissingRoot(t *testing.T) {
	f := newFixture(t)
	f.library.Path = filepath.Join(f.root, "does-not-exist")
	require.NoError(t, f.scanner.libraries.Update(context.Background(), f.library))

	stats, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ScanStats{}, stats)
}

func TestScanLibrary_UnknownLibrary(t *testing.T) {
	f := newFixture(t)
	_, err := f.scanner.ScanLibrary(context.Background(), models.NewULID(), "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestScanLibrary_CancelledBeforeIngest(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "a.mp4"))
	writeFile(t, filepath.Join(f.root, "b.mkv"))

	const jobID = "scan_library_test_1"
	f.registry.OnJobSubmitted(jobID, time.Now(), nil)
	require.True(t, f.registry.RequestCancel(jobID))

	stats, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, jobID)
	require.NoError(t, err)
	assert.True(t, stats.Cancelled)
	assert.Equal(t, ScanStats{Cancelled: true}, stats)

	// No rows were written and the job shows cancelled.
	file, err := f.media.GetByPath(context.Background(), filepath.Join(f.root, "a.mp4"))
	require.NoError(t, err)
	assert.Nil(t, file)
	assert.Equal(t, jobs.StatusCancelled, f.registry.Get(jobID).Status)
}

func TestScanLibrary_CancelledScanDoesNotReap(t *testing.T) {
	f := newFixture(t)
	aPath := filepath.Join(f.root, "a.mp4")
	writeFile(t, aPath)

	_, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, "")
	require.NoError(t, err)

	// File disappears, then a cancelled scan runs. The row must survive.
	require.NoError(t, os.Remove(aPath))

	const jobID = "scan_library_test_2"
	f.registry.OnJobSubmitted(jobID, time.Now(), nil)
	require.True(t, f.registry.RequestCancel(jobID))

	stats, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, jobID)
	require.NoError(t, err)
	assert.True(t, stats.Cancelled)

	file, err := f.media.GetByPath(context.Background(), aPath)
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.False(t, file.IsDeleted())
}

func TestScanLibrary_SiblingLibraryUntouched(t *testing.T) {
	f := newFixture(t)

	// A sibling library whose root shares the scanned root as a string
	// prefix. Its files live outside the scanned library.
	siblingRoot := f.root + "2"
	siblingFile := filepath.Join(siblingRoot, "movie.mkv")
	writeFile(t, siblingFile)
	sibling := testutil.MakeLibrary(t, f.db, "Sibling", siblingRoot)

	_, err := f.scanner.ScanLibrary(context.Background(), sibling.ID, "")
	require.NoError(t, err)

	// Scanning the empty first library must not reap the sibling's rows.
	stats, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, "")
	require.NoError(t, err)
	assert.Zero(t, stats.Deleted)

	file, err := f.media.GetByPath(context.Background(), siblingFile)
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.False(t, file.IsDeleted())
}

func TestScanLibrary_BatchedIngest(t *testing.T) {
	f := newFixture(t)
	f.scanner.WithBatchSize(2)

	names := []string{"a.mp4", "b.mkv", "e.webm", "f.m4v", "g.mov"}
	for _, name := range names {
		writeFile(t, filepath.Join(f.root, name))
	}

	// Five new files with a batch size of two: the last partial batch is
	// committed when the ingest pass ends.
	stats, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ScanStats{New: 5}, stats)

	for _, name := range names {
		file, err := f.media.GetByPath(context.Background(), filepath.Join(f.root, name))
		require.NoError(t, err)
		require.NotNil(t, file, name)
	}
}

func TestScanLibrary_CancelMidIngestCommitsPending(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "a.mp4"))
	writeFile(t, filepath.Join(f.root, "b.mkv"))

	const jobID = "scan_library_test_4"
	f.registry.OnJobSubmitted(jobID, time.Now(), nil)

	// Cancel lands after the first file is probed but before the second.
	f.prober.onProbe = func(calls int) {
		if calls == 1 {
			f.registry.RequestCancel(jobID)
		}
	}

	stats, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, jobID)
	require.NoError(t, err)
	assert.Equal(t, ScanStats{New: 1, Cancelled: true}, stats)

	// The file staged before the cancel was committed, the rest never ran.
	file, err := f.media.GetByPath(context.Background(), filepath.Join(f.root, "a.mp4"))
	require.NoError(t, err)
	require.NotNil(t, file)

	skipped, err := f.media.GetByPath(context.Background(), filepath.Join(f.root, "b.mkv"))
	require.NoError(t, err)
	assert.Nil(t, skipped)
}

func TestScanAll_Sequential(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "a.mp4"))

	result, err := f.scanner.ScanAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.LibrariesScheduled)
	assert.Equal(t, 1, result.Stats.New)
}

func TestScanAll_FansOutJobs(t *testing.T) {
	f := newFixture(t)

	sched := schedulerForTest(t)
	result, err := f.scanner.ScanAll(context.Background(), sched)
	require.NoError(t, err)
	assert.Equal(t, 1, result.LibrariesScheduled)

	infos := sched.GetJobs()
	require.Len(t, infos, 1)
	assert.Contains(t, infos[0].ID, jobs.ScanJobPrefix+f.library.ID.String())
	assert.True(t, infos[0].IsOneShot())
	assert.Equal(t, "Library Scanner: Movies", infos[0].Kwargs["job_name"])
}

func TestCleanupDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := testutil.MakeMediaFile(t, f.db, filepath.Join(f.root, "gone.mkv"), 60)
	recent := testutil.MakeMediaFile(t, f.db, filepath.Join(f.root, "fresh.mkv"), 60)

	require.NoError(t, f.media.SoftDelete(ctx, old.ID, time.Now().AddDate(0, 0, -45)))
	require.NoError(t, f.media.SoftDelete(ctx, recent.ID, time.Now().AddDate(0, 0, -5)))

	count, err := f.scanner.CleanupDeleted(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	gone, err := f.media.GetByPath(ctx, filepath.Join(f.root, "gone.mkv"))
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := f.media.GetByPath(ctx, filepath.Join(f.root, "fresh.mkv"))
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.True(t, kept.IsDeleted())
}

func TestScanLibrary_ProgressMonotonic(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a.mp4", "b.mkv", "e.webm", "f.m4v"} {
		writeFile(t, filepath.Join(f.root, name))
	}

	const jobID = "scan_library_test_3"
	f.registry.OnJobSubmitted(jobID, time.Now(), nil)

	ch, unsub := f.registry.Bus().Subscribe()
	defer unsub()

	_, err := f.scanner.ScanLibrary(context.Background(), f.library.ID, jobID)
	require.NoError(t, err)

	last := -1
	total := 0
	for {
		select {
		case ev := <-ch:
			if ev.Type != jobs.EventProgress {
				continue
			}
			state := f.registry.Get(jobID)
			require.NotNil(t, state)
			if state.Progress.FilesTotal > 0 {
				total = state.Progress.FilesTotal
			}
			assert.GreaterOrEqual(t, state.Progress.FilesProcessed, last)
			last = state.Progress.FilesProcessed
		default:
			assert.Equal(t, 4, total)
			assert.Equal(t, 4, last)
			return
		}
	}
}
