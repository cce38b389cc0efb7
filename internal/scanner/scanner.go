// Package scanner indexes library directories into media file records.
// It owns the media file lifecycle: rows are created on first sight,
// refreshed on rescan, soft-deleted when a completed pass no longer observes
// them, and purged after the configured grace period.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NicolasFerec/ferelix-server/internal/ffmpeg"
	"github.com/NicolasFerec/ferelix-server/internal/jobs"
	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/scheduler"
)

// supportedExtensions is the set of file suffixes the scanner indexes,
// matched case-insensitively.
var supportedExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".mov":  {},
	".webm": {},
	".m4v":  {},
	".flv":  {},
	".wmv":  {},
}

// defaultBatchSize is how many new rows are staged before a batch insert.
const defaultBatchSize = 10

// Prober abstracts media probing for tests.
type Prober interface {
	ProbeMedia(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
}

// ScanStats summarizes one library scan.
type ScanStats struct {
	New       int  `json:"new"`
	Updated   int  `json:"updated"`
	Deleted   int  `json:"deleted"`
	Restored  int  `json:"restored"`
	Cancelled bool `json:"cancelled"`
}

// Scanner walks library roots and reconciles the media file table with disk.
type Scanner struct {
	libraries repository.LibraryRepository
	media     repository.MediaFileRepository
	prober    Prober
	registry  *jobs.Registry
	batchSize int
	logger    *slog.Logger
}

// New creates a scanner. The registry may be nil for callers that do not
// track job state, such as tests.
func New(libraries repository.LibraryRepository, media repository.MediaFileRepository, prober Prober, registry *jobs.Registry, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		libraries: libraries,
		media:     media,
		prober:    prober,
		registry:  registry,
		batchSize: defaultBatchSize,
		logger:    logger,
	}
}

// WithBatchSize overrides the ingest batch size.
func (s *Scanner) WithBatchSize(n int) *Scanner {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// ScanLibrary reconciles one library with disk in three passes: enumerate,
// ingest, reap. The reap pass never runs after a cancelled ingest, so a
// partial scan cannot mark surviving files as deleted.
func (s *Scanner) ScanLibrary(ctx context.Context, libraryID models.ULID, jobID string) (ScanStats, error) {
	var stats ScanStats

	library, err := s.libraries.GetByID(ctx, libraryID)
	if err != nil {
		return stats, err
	}
	if library == nil {
		return stats, fmt.Errorf("%w: library %s", models.ErrNotFound, libraryID)
	}

	info, err := os.Stat(library.Path)
	if err != nil || !info.IsDir() {
		s.logger.Warn("library root missing, skipping scan",
			slog.String("library", library.Name),
			slog.String("path", library.Path),
		)
		return stats, nil
	}

	logger := s.logger.With(
		slog.String("library", library.Name),
		slog.String("job_id", jobID),
	)
	logger.Info("library scan started")

	// First pass: enumerate candidate files.
	paths, cancelled := s.enumerate(library.Path, jobID)
	if cancelled {
		s.markCancelled(jobID)
		stats.Cancelled = true
		return stats, nil
	}
	s.updateProgress(jobID, jobs.Progress{FilesTotal: len(paths)})

	// Second pass: ingest. New rows are staged and committed in batches of
	// batchSize so a large first scan does not issue one insert per file.
	observed := make(map[string]struct{}, len(paths))
	var pending []*models.MediaFile
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := s.media.CreateBatch(ctx, pending); err != nil {
			return err
		}
		stats.New += len(pending)
		pending = pending[:0]
		return nil
	}
	for i, path := range paths {
		if s.isCancelRequested(jobID) {
			// Work already probed is committed; only the reap pass is skipped.
			if err := flush(); err != nil {
				return stats, err
			}
			s.markCancelled(jobID)
			stats.Cancelled = true
			logger.Info("library scan cancelled",
				slog.Int("processed", i),
				slog.Int("total", len(paths)),
			)
			return stats, nil
		}
		s.updateProgress(jobID, jobs.Progress{
			FilesTotal:     len(paths),
			FilesProcessed: i,
			CurrentFile:    path,
		})

		staged, err := s.ingestFile(ctx, path, &stats)
		if err != nil {
			return stats, err
		}
		if staged != nil {
			pending = append(pending, staged)
			if len(pending) >= s.batchSize {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}
		observed[path] = struct{}{}
	}
	if err := flush(); err != nil {
		return stats, err
	}
	s.updateProgress(jobID, jobs.Progress{
		FilesTotal:     len(paths),
		FilesProcessed: len(paths),
	})

	// Third pass: reap rows whose files disappeared.
	active, err := s.media.ActivePathsUnder(ctx, library.Path)
	if err != nil {
		return stats, err
	}
	now := time.Now().UTC()
	for _, path := range active {
		if _, ok := observed[path]; ok {
			continue
		}
		file, err := s.media.GetByPath(ctx, path)
		if err != nil {
			return stats, err
		}
		if file == nil || file.IsDeleted() {
			continue
		}
		if err := s.media.SoftDelete(ctx, file.ID, now); err != nil {
			return stats, err
		}
		stats.Deleted++
	}

	logger.Info("library scan finished",
		slog.Int("new", stats.New),
		slog.Int("updated", stats.Updated),
		slog.Int("deleted", stats.Deleted),
		slog.Int("restored", stats.Restored),
	)
	return stats, nil
}

// enumerate walks the library root collecting supported files in walk order,
// which is lexical and therefore deterministic. Cancellation is polled per
// directory entry.
func (s *Scanner) enumerate(root, jobID string) (paths []string, cancelled bool) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if s.isCancelRequested(jobID) {
			cancelled = true
			return filepath.SkipAll
		}
		if err != nil {
			s.logger.Warn("skipping unreadable entry", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := supportedExtensions[ext]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, cancelled
}

// ingestFile restores or refreshes an existing media file row in place. Rows
// for files seen for the first time are returned for batched creation instead
// of being written here. Probe failures degrade the row's metadata to nulls
// but never abort the scan.
func (s *Scanner) ingestFile(ctx context.Context, path string, stats *ScanStats) (*models.MediaFile, error) {
	existing, err := s.media.GetByPath(ctx, path)
	if err != nil {
		return nil, err
	}

	info := s.probe(ctx, path)
	size := fileSize(path)
	now := time.Now().UTC()

	if existing == nil {
		file := &models.MediaFile{
			FilePath:      path,
			FileName:      filepath.Base(path),
			FileSize:      size,
			FileExtension: strings.ToLower(filepath.Ext(path)),
			ScannedAt:     &now,
		}
		applyMediaInfo(file, info)
		return file, nil
	}

	if existing.IsDeleted() {
		if err := s.media.Restore(ctx, existing.ID); err != nil {
			return nil, err
		}
		existing.DeletedAt = nil
		stats.Restored++
	}

	existing.FileSize = size
	existing.ScannedAt = &now
	applyMediaInfo(existing, info)
	if err := s.media.Update(ctx, existing); err != nil {
		return nil, err
	}
	if info != nil {
		if err := s.media.ReplaceTracks(ctx, existing.ID, info.VideoTracks, info.AudioTracks, info.SubtitleTracks); err != nil {
			return nil, err
		}
	}
	stats.Updated++
	return nil, nil
}

// probe runs the prober, logging and absorbing failures.
func (s *Scanner) probe(ctx context.Context, path string) *ffmpeg.MediaInfo {
	info, err := s.prober.ProbeMedia(ctx, path)
	if err != nil {
		s.logger.Warn("probe failed, indexing without metadata",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return nil
	}
	return info
}

func applyMediaInfo(file *models.MediaFile, info *ffmpeg.MediaInfo) {
	if info == nil {
		file.Duration = nil
		file.Bitrate = nil
		file.Width = nil
		file.Height = nil
		file.Codec = nil
		return
	}
	if info.Duration > 0 {
		d := info.Duration
		file.Duration = &d
	}
	if info.Bitrate > 0 {
		b := info.Bitrate
		file.Bitrate = &b
	}
	if info.Width > 0 {
		w := info.Width
		file.Width = &w
	}
	if info.Height > 0 {
		h := info.Height
		file.Height = &h
	}
	if info.Codec != "" {
		c := info.Codec
		file.Codec = &c
	}
	file.VideoTracks = info.VideoTracks
	file.AudioTracks = info.AudioTracks
	file.SubtitleTracks = info.SubtitleTracks
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// ScanAllResult reports what ScanAll did.
type ScanAllResult struct {
	LibrariesScheduled int       `json:"libraries_scheduled,omitempty"`
	Stats              ScanStats `json:"stats,omitempty"`
}

// ScanAll enumerates enabled libraries. With a scheduler, it fans out one
// one-shot scan job per library and returns immediately; without one it scans
// sequentially and returns the aggregate stats.
func (s *Scanner) ScanAll(ctx context.Context, sched *scheduler.Scheduler) (ScanAllResult, error) {
	var result ScanAllResult

	libraries, err := s.libraries.GetEnabled(ctx)
	if err != nil {
		return result, err
	}

	if sched == nil {
		for _, library := range libraries {
			stats, err := s.ScanLibrary(ctx, library.ID, "")
			if err != nil {
				s.logger.Error("library scan failed",
					slog.String("library", library.Name),
					slog.Any("error", err),
				)
				continue
			}
			result.Stats.New += stats.New
			result.Stats.Updated += stats.Updated
			result.Stats.Deleted += stats.Deleted
			result.Stats.Restored += stats.Restored
		}
		return result, nil
	}

	for _, library := range libraries {
		if _, err := s.ScheduleScan(sched, library); err != nil {
			s.logger.Error("scheduling library scan failed",
				slog.String("library", library.Name),
				slog.Any("error", err),
			)
			continue
		}
		result.LibrariesScheduled++
	}
	return result, nil
}

// ScheduleScan submits a one-shot scan job for a single library and returns
// its job id. The timestamp suffix keeps rapid retriggers distinct.
func (s *Scanner) ScheduleScan(sched *scheduler.Scheduler, library *models.Library) (string, error) {
	libID := library.ID
	jobID := fmt.Sprintf("%s%s_%d", jobs.ScanJobPrefix, libID, time.Now().Unix())
	kwargs := map[string]any{
		"library_id": libID.String(),
		"job_name":   "Library Scanner: " + library.Name,
	}
	fn := func(ctx context.Context, jobID string, _ map[string]any) error {
		_, err := s.ScanLibrary(ctx, libID, jobID)
		return err
	}
	// The fire time sits one tick ahead so the trigger is still live when
	// the scheduler validates it.
	trigger := scheduler.NewDateTrigger(time.Now().Add(time.Second))
	if err := sched.AddJob(fn, trigger, jobID, kwargs, false); err != nil {
		return "", err
	}
	return jobID, nil
}

// CleanupDeleted permanently removes media files soft-deleted longer ago than
// the grace period, cascading their tracks. Returns the number removed.
func (s *Scanner) CleanupDeleted(ctx context.Context, gracePeriodDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -gracePeriodDays)
	count, err := s.media.DeleteSoftDeletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up deleted media: %w", err)
	}
	if count > 0 {
		s.logger.Info("purged soft-deleted media files", slog.Int64("count", count))
	}
	return count, nil
}

func (s *Scanner) isCancelRequested(jobID string) bool {
	return jobID != "" && s.registry != nil && s.registry.IsCancelRequested(jobID)
}

func (s *Scanner) markCancelled(jobID string) {
	if jobID != "" && s.registry != nil {
		s.registry.MarkCancelled(jobID)
	}
}

func (s *Scanner) updateProgress(jobID string, p jobs.Progress) {
	if jobID != "" && s.registry != nil {
		s.registry.UpdateProgress(jobID, p)
	}
}
