// Package service hosts application services that sit between the HTTP
// handlers and the repositories.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NicolasFerec/ferelix-server/internal/jobs"
	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/scanner"
	"github.com/NicolasFerec/ferelix-server/internal/scheduler"
)

// LibraryScanner is the scanner surface the scheduled jobs use: fan-out
// scans plus purging of soft-deleted media past the grace period.
type LibraryScanner interface {
	ScanAll(ctx context.Context, sched *scheduler.Scheduler) (scanner.ScanAllResult, error)
	CleanupDeleted(ctx context.Context, gracePeriodDays int) (int64, error)
}

// SessionCleaner sweeps stale transcode sessions.
type SessionCleaner interface {
	CleanupTranscodeFiles(ctx context.Context) (int, error)
}

// SettingsService owns the runtime-tunable schedule settings. Updating them
// reschedules the recurring jobs in place.
type SettingsService struct {
	repo     repository.SettingsRepository
	sched    *scheduler.Scheduler
	scanner  LibraryScanner
	sessions SessionCleaner
	logger   *slog.Logger
}

// NewSettingsService creates a settings service.
func NewSettingsService(repo repository.SettingsRepository, sched *scheduler.Scheduler, scanner LibraryScanner, sessions SessionCleaner, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{
		repo:     repo,
		sched:    sched,
		scanner:  scanner,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "settings")),
	}
}

// Get returns the settings singleton, creating it with defaults if needed.
func (s *SettingsService) Get(ctx context.Context) (*models.Settings, error) {
	return s.repo.GetOrCreate(ctx)
}

// Update persists new settings and reschedules the scanner and maintenance
// jobs with the changed triggers. No restart is required.
func (s *SettingsService) Update(ctx context.Context, settings *models.Settings) (*models.Settings, error) {
	if err := validateSettings(settings); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, settings); err != nil {
		return nil, err
	}

	if s.sched != nil {
		if err := s.sched.Reschedule(jobs.JobLibraryScanner, scheduler.NewIntervalTrigger(settings.ScanInterval())); err != nil {
			s.logger.Warn("rescheduling library scanner", slog.Any("error", err))
		}
		cronTrigger, err := scheduler.NewCronTrigger(maintenanceCronExpr(settings))
		if err != nil {
			return nil, err
		}
		if err := s.sched.Reschedule(jobs.JobDatabaseMaintenance, cronTrigger); err != nil {
			s.logger.Warn("rescheduling database maintenance", slog.Any("error", err))
		}
		s.logger.Info("schedules updated",
			slog.Int("scan_interval_minutes", settings.LibraryScanIntervalMin),
			slog.Int("cleanup_hour", settings.CleanupScheduleHour),
			slog.Int("cleanup_minute", settings.CleanupScheduleMinute),
		)
	}
	return settings, nil
}

// RegisterScheduledJobs adds the recurring library_scanner and
// database_maintenance jobs using the persisted settings.
func (s *SettingsService) RegisterScheduledJobs(ctx context.Context) error {
	settings, err := s.repo.GetOrCreate(ctx)
	if err != nil {
		return err
	}

	scanJob := func(ctx context.Context, jobID string, _ map[string]any) error {
		_, err := s.scanner.ScanAll(ctx, s.sched)
		return err
	}
	kwargs := map[string]any{"job_name": "Library Scanner"}
	if err := s.sched.AddJob(scanJob, scheduler.NewIntervalTrigger(settings.ScanInterval()), jobs.JobLibraryScanner, kwargs, true); err != nil {
		return fmt.Errorf("registering library scanner job: %w", err)
	}

	maintenanceJob := func(ctx context.Context, jobID string, _ map[string]any) error {
		return s.runMaintenance(ctx)
	}
	cronTrigger, err := scheduler.NewCronTrigger(maintenanceCronExpr(settings))
	if err != nil {
		return err
	}
	kwargs = map[string]any{"job_name": "Database Maintenance"}
	if err := s.sched.AddJob(maintenanceJob, cronTrigger, jobs.JobDatabaseMaintenance, kwargs, true); err != nil {
		return fmt.Errorf("registering maintenance job: %w", err)
	}
	return nil
}

// runMaintenance purges expired soft-deleted media, then stale transcode
// sessions. A failure in the first half still lets the second half run. The
// grace period is read fresh on every run so dashboard changes take effect
// without a restart.
func (s *SettingsService) runMaintenance(ctx context.Context) error {
	settings, err := s.repo.GetOrCreate(ctx)
	if err != nil {
		return err
	}

	purged, scanErr := s.scanner.CleanupDeleted(ctx, settings.CleanupGracePeriodDays)
	swept, transErr := s.sessions.CleanupTranscodeFiles(ctx)

	s.logger.Info("maintenance finished",
		slog.Int64("media_purged", purged),
		slog.Int("sessions_swept", swept),
	)
	if scanErr != nil {
		return scanErr
	}
	return transErr
}

func maintenanceCronExpr(settings *models.Settings) string {
	return fmt.Sprintf("%d %d * * *", settings.CleanupScheduleMinute, settings.CleanupScheduleHour)
}

func validateSettings(settings *models.Settings) error {
	if settings.LibraryScanIntervalMin < 1 {
		return fmt.Errorf("%w: scan interval must be positive", models.ErrInvalidArgument)
	}
	if settings.CleanupScheduleHour < 0 || settings.CleanupScheduleHour > 23 {
		return fmt.Errorf("%w: cleanup hour out of range", models.ErrInvalidArgument)
	}
	if settings.CleanupScheduleMinute < 0 || settings.CleanupScheduleMinute > 59 {
		return fmt.Errorf("%w: cleanup minute out of range", models.ErrInvalidArgument)
	}
	if settings.CleanupGracePeriodDays < 0 {
		return fmt.Errorf("%w: grace period must be non-negative", models.ErrInvalidArgument)
	}
	return nil
}
