package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasFerec/ferelix-server/internal/jobs"
	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
	"github.com/NicolasFerec/ferelix-server/internal/scanner"
	"github.com/NicolasFerec/ferelix-server/internal/scheduler"
	"github.com/NicolasFerec/ferelix-server/internal/testutil"
)

type fakeScanner struct {
	scans         atomic.Int64
	cleanups      atomic.Int64
	lastGraceDays atomic.Int64
}

func (f *fakeScanner) ScanAll(ctx context.Context, sched *scheduler.Scheduler) (scanner.ScanAllResult, error) {
	f.scans.Add(1)
	return scanner.ScanAllResult{}, nil
}

func (f *fakeScanner) CleanupDeleted(ctx context.Context, gracePeriodDays int) (int64, error) {
	f.cleanups.Add(1)
	f.lastGraceDays.Store(int64(gracePeriodDays))
	return 2, nil
}

type fakeSessions struct {
	sweeps atomic.Int64
}

func (f *fakeSessions) CleanupTranscodeFiles(ctx context.Context) (int, error) {
	f.sweeps.Add(1)
	return 1, nil
}

func newSettingsFixture(t *testing.T) (*SettingsService, *scheduler.Scheduler, *fakeScanner, *fakeSessions) {
	t.Helper()
	db := testutil.NewTestDB(t)
	sched := scheduler.New(slog.Default())
	sc := &fakeScanner{}
	sessions := &fakeSessions{}
	svc := NewSettingsService(repository.NewSettingsRepository(db), sched, sc, sessions, nil)
	return svc, sched, sc, sessions
}

func TestGet_CreatesDefaults(t *testing.T) {
	svc, _, _, _ := newSettingsFixture(t)

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, settings.LibraryScanIntervalMin)
	assert.Equal(t, 3, settings.CleanupScheduleHour)
	assert.Equal(t, 30, settings.CleanupGracePeriodDays)
}

func TestRegisterScheduledJobs(t *testing.T) {
	svc, sched, _, _ := newSettingsFixture(t)

	require.NoError(t, svc.RegisterScheduledJobs(context.Background()))

	scan := sched.GetJob(jobs.JobLibraryScanner)
	require.NotNil(t, scan)
	assert.Equal(t, scheduler.TriggerKindInterval, scan.TriggerKind)

	maint := sched.GetJob(jobs.JobDatabaseMaintenance)
	require.NotNil(t, maint)
	assert.Equal(t, scheduler.TriggerKindCron, maint.TriggerKind)
}

func TestUpdate_Reschedules(t *testing.T) {
	svc, sched, _, _ := newSettingsFixture(t)
	require.NoError(t, svc.RegisterScheduledJobs(context.Background()))
	sched.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	}()

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	settings.LibraryScanIntervalMin = 30
	settings.CleanupScheduleHour = 5
	settings.CleanupScheduleMinute = 15

	updated, err := svc.Update(context.Background(), settings)
	require.NoError(t, err)
	assert.Equal(t, 30, updated.LibraryScanIntervalMin)

	reloaded, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, reloaded.LibraryScanIntervalMin)
	assert.Equal(t, 5, reloaded.CleanupScheduleHour)

	scan := sched.GetJob(jobs.JobLibraryScanner)
	require.NotNil(t, scan)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), scan.NextRun, time.Minute)
}

func TestUpdate_RejectsInvalid(t *testing.T) {
	svc, _, _, _ := newSettingsFixture(t)

	settings, err := svc.Get(context.Background())
	require.NoError(t, err)

	settings.CleanupScheduleHour = 24
	_, err = svc.Update(context.Background(), settings)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	settings.CleanupScheduleHour = 3
	settings.LibraryScanIntervalMin = 0
	_, err = svc.Update(context.Background(), settings)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestRunMaintenance_RunsBothHalves(t *testing.T) {
	svc, _, sc, sessions := newSettingsFixture(t)

	require.NoError(t, svc.runMaintenance(context.Background()))
	assert.Equal(t, int64(1), sc.cleanups.Load())
	assert.Equal(t, int64(1), sessions.sweeps.Load())
}

func TestRunMaintenance_UsesCurrentGracePeriod(t *testing.T) {
	svc, _, sc, _ := newSettingsFixture(t)

	require.NoError(t, svc.runMaintenance(context.Background()))
	assert.Equal(t, int64(30), sc.lastGraceDays.Load())

	// A dashboard update must reach the next run without re-registration.
	settings, err := svc.Get(context.Background())
	require.NoError(t, err)
	settings.CleanupGracePeriodDays = 7
	_, err = svc.Update(context.Background(), settings)
	require.NoError(t, err)

	require.NoError(t, svc.runMaintenance(context.Background()))
	assert.Equal(t, int64(7), sc.lastGraceDays.Load())
}

func TestMaintenanceCronExpr(t *testing.T) {
	s := &models.Settings{CleanupScheduleHour: 3, CleanupScheduleMinute: 0}
	assert.Equal(t, "0 3 * * *", maintenanceCronExpr(s))

	s = &models.Settings{CleanupScheduleHour: 23, CleanupScheduleMinute: 45}
	assert.Equal(t, "45 23 * * *", maintenanceCronExpr(s))
}
