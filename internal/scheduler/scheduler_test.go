package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// recordingListener collects lifecycle events for assertions.
type recordingListener struct {
	mu          sync.Mutex
	submitted   []string
	submittedAt []time.Time
	executed    []string
	errored     []string
	missed      []string
}

func (l *recordingListener) OnJobSubmitted(jobID string, at time.Time, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitted = append(l.submitted, jobID)
	l.submittedAt = append(l.submittedAt, at)
}

func (l *recordingListener) OnJobExecuted(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.executed = append(l.executed, jobID)
}

func (l *recordingListener) OnJobError(jobID string, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errored = append(l.errored, jobID)
}

func (l *recordingListener) OnJobMissed(jobID string, _ time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.missed = append(l.missed, jobID)
}

func (l *recordingListener) counts() (submitted, executed, errored, missed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.submitted), len(l.executed), len(l.errored), len(l.missed)
}

func noopJob(context.Context, string, map[string]any) error { return nil }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestScheduler_AddJob_Duplicate(t *testing.T) {
	s := New(nil)

	require.NoError(t, s.AddJob(noopJob, NewIntervalTrigger(time.Hour), "job", nil, false))
	err := s.AddJob(noopJob, NewIntervalTrigger(time.Hour), "job", nil, false)
	assert.ErrorIs(t, err, models.ErrConflict)

	// Replacement is allowed when requested.
	require.NoError(t, s.AddJob(noopJob, NewIntervalTrigger(time.Minute), "job", nil, true))
}

func TestScheduler_AddJob_Validation(t *testing.T) {
	s := New(nil)

	err := s.AddJob(noopJob, NewIntervalTrigger(time.Hour), "", nil, false)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	// A date trigger in the past has no fire time left.
	err = s.AddJob(noopJob, NewDateTrigger(time.Now().Add(-time.Hour)), "past", nil, false)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestScheduler_GetJobs(t *testing.T) {
	s := New(nil)

	require.NoError(t, s.AddJob(noopJob, NewIntervalTrigger(time.Hour), "a", nil, false))
	require.NoError(t, s.AddJob(noopJob, MustCronTrigger("0 3 * * *"), "b", map[string]any{"k": "v"}, false))

	jobs := s.GetJobs()
	assert.Len(t, jobs, 2)

	info := s.GetJob("b")
	require.NotNil(t, info)
	assert.Equal(t, TriggerKindCron, info.TriggerKind)
	assert.Equal(t, "v", info.Kwargs["k"])
	assert.False(t, info.Running)

	assert.Nil(t, s.GetJob("missing"))
}

func TestScheduler_RunsDueJob(t *testing.T) {
	s := New(nil).WithTick(20 * time.Millisecond)
	listener := &recordingListener{}
	s.AddListener(listener)

	var ran sync.WaitGroup
	ran.Add(1)
	var once sync.Once
	job := func(_ context.Context, jobID string, kwargs map[string]any) error {
		assert.Equal(t, "quick", jobID)
		assert.Equal(t, 42, kwargs["answer"])
		once.Do(ran.Done)
		return nil
	}

	require.NoError(t, s.AddJob(job, NewDateTrigger(time.Now().Add(30*time.Millisecond)), "quick", map[string]any{"answer": 42}, false))
	s.Start()
	defer s.Shutdown(context.Background())

	ran.Wait()
	waitFor(t, time.Second, func() bool {
		_, executed, _, _ := listener.counts()
		return executed == 1
	})

	submitted, executed, errored, _ := listener.counts()
	assert.Equal(t, 1, submitted)
	assert.Equal(t, 1, executed)
	assert.Zero(t, errored)

	// One-shot jobs leave the schedule after running.
	waitFor(t, time.Second, func() bool { return s.GetJob("quick") == nil })
}

func TestScheduler_SubmittedCarriesFireTime(t *testing.T) {
	s := New(nil).WithTick(20 * time.Millisecond)
	listener := &recordingListener{}
	s.AddListener(listener)

	fireAt := time.Now().Add(30 * time.Millisecond)
	require.NoError(t, s.AddJob(noopJob, NewDateTrigger(fireAt), "timed", nil, false))
	s.Start()
	defer s.Shutdown(context.Background())

	waitFor(t, time.Second, func() bool {
		submitted, _, _, _ := listener.counts()
		return submitted == 1
	})

	// The event carries the trigger's fire time, not the tick that
	// dispatched it.
	listener.mu.Lock()
	at := listener.submittedAt[0]
	listener.mu.Unlock()
	assert.True(t, at.Equal(fireAt), "submitted at %v, want fire time %v", at, fireAt)
}

func TestScheduler_JobError(t *testing.T) {
	s := New(nil).WithTick(20 * time.Millisecond)
	listener := &recordingListener{}
	s.AddListener(listener)

	job := func(context.Context, string, map[string]any) error {
		return errors.New("boom")
	}
	require.NoError(t, s.AddJob(job, NewDateTrigger(time.Now().Add(30*time.Millisecond)), "failing", nil, false))
	s.Start()
	defer s.Shutdown(context.Background())

	waitFor(t, time.Second, func() bool {
		_, _, errored, _ := listener.counts()
		return errored == 1
	})
}

func TestScheduler_MissedWhileRunning(t *testing.T) {
	s := New(nil).WithTick(20 * time.Millisecond)
	listener := &recordingListener{}
	s.AddListener(listener)

	release := make(chan struct{})
	job := func(context.Context, string, map[string]any) error {
		<-release
		return nil
	}

	require.NoError(t, s.AddJob(job, NewIntervalTrigger(50*time.Millisecond), "slow", nil, false))
	s.Start()

	// The first fire blocks, so subsequent fire times are missed.
	waitFor(t, 2*time.Second, func() bool {
		_, _, _, missed := listener.counts()
		return missed >= 1
	})

	close(release)
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestScheduler_ModifyJobNextRun(t *testing.T) {
	s := New(nil).WithTick(20 * time.Millisecond)
	listener := &recordingListener{}
	s.AddListener(listener)

	require.NoError(t, s.AddJob(noopJob, NewIntervalTrigger(24*time.Hour), "deferred", nil, false))

	// Scheduler must be started before jobs can be triggered manually.
	err := s.ModifyJobNextRun("deferred", time.Now())
	assert.ErrorIs(t, err, models.ErrUnavailable)

	s.Start()
	defer s.Shutdown(context.Background())

	assert.ErrorIs(t, s.ModifyJobNextRun("missing", time.Now()), models.ErrNotFound)
	require.NoError(t, s.ModifyJobNextRun("deferred", time.Now()))

	waitFor(t, time.Second, func() bool {
		_, executed, _, _ := listener.counts()
		return executed == 1
	})
}

func TestScheduler_Reschedule(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddJob(noopJob, NewIntervalTrigger(time.Hour), "job", nil, false))

	before := s.GetJob("job").NextRun
	require.NoError(t, s.Reschedule("job", NewIntervalTrigger(10*time.Hour)))
	after := s.GetJob("job").NextRun
	assert.True(t, after.After(before))

	assert.ErrorIs(t, s.Reschedule("missing", NewIntervalTrigger(time.Hour)), models.ErrNotFound)
}

func TestScheduler_ShutdownWaitsForJobs(t *testing.T) {
	s := New(nil).WithTick(10 * time.Millisecond)

	started := make(chan struct{})
	finished := make(chan struct{})
	job := func(context.Context, string, map[string]any) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(finished)
		return nil
	}

	require.NoError(t, s.AddJob(job, NewDateTrigger(time.Now().Add(20*time.Millisecond)), "slow", nil, false))
	s.Start()

	<-started
	require.NoError(t, s.Shutdown(context.Background()))

	select {
	case <-finished:
	default:
		t.Fatal("shutdown returned before the job finished")
	}
}

func TestScheduler_RemoveJob(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddJob(noopJob, NewIntervalTrigger(time.Hour), "job", nil, false))
	s.RemoveJob("job")
	assert.Nil(t, s.GetJob("job"))

	s.RemoveJob("missing")
}
