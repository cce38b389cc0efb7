// Package scheduler provides a cooperative in-process job scheduler with
// interval, cron, and one-shot date triggers. Job lifecycle events are fanned
// out to registered listeners; the job registry attaches itself as one.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// JobFunc is the signature of a schedulable job body. The job receives its
// own id so it can report progress and poll cancellation through the registry.
type JobFunc func(ctx context.Context, jobID string, kwargs map[string]any) error

// Listener receives job lifecycle events. Callbacks run on scheduler
// goroutines and must not block.
type Listener interface {
	// OnJobSubmitted fires when a job body is about to run.
	OnJobSubmitted(jobID string, scheduledAt time.Time, kwargs map[string]any)
	// OnJobExecuted fires when a job body returns without error.
	OnJobExecuted(jobID string)
	// OnJobError fires when a job body returns an error.
	OnJobError(jobID string, err error)
	// OnJobMissed fires when a fire time passes while the previous run of
	// the same job is still in flight.
	OnJobMissed(jobID string, scheduledAt time.Time)
}

// JobInfo is a read-only snapshot of a scheduled job.
type JobInfo struct {
	ID          string
	TriggerKind TriggerKind
	NextRun     time.Time
	Running     bool
	Kwargs      map[string]any
}

// IsOneShot reports whether the job uses a date trigger.
func (j JobInfo) IsOneShot() bool {
	return j.TriggerKind == TriggerKindDate
}

// scheduledJob is the scheduler's internal job record.
type scheduledJob struct {
	id      string
	fn      JobFunc
	trigger Trigger
	kwargs  map[string]any
	nextRun time.Time
	running bool
}

// Scheduler dispatches jobs at their trigger times.
type Scheduler struct {
	mu        sync.Mutex
	jobs      map[string]*scheduledJob
	listeners []Listener
	started   bool

	tick   time.Duration
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New creates a scheduler. Call Start before adding time-critical jobs.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:   make(map[string]*scheduledJob),
		tick:   time.Second,
		logger: logger,
	}
}

// WithTick overrides the dispatcher poll interval. Useful in tests.
func (s *Scheduler) WithTick(d time.Duration) *Scheduler {
	s.tick = d
	return s
}

// AddListener registers a lifecycle listener.
func (s *Scheduler) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start launches the dispatch loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.started = true

	s.wg.Add(1)
	go s.dispatchLoop()

	s.logger.Info("scheduler started", slog.Duration("tick", s.tick))
}

// Shutdown stops the dispatch loop and waits for in-flight jobs, bounded by
// the provided context.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs on shutdown: %w", ctx.Err())
	}
}

// AddJob schedules a job. With replaceExisting false, adding a duplicate id
// returns models.ErrConflict.
func (s *Scheduler) AddJob(fn JobFunc, trigger Trigger, id string, kwargs map[string]any, replaceExisting bool) error {
	if id == "" {
		return fmt.Errorf("%w: job id is required", models.ErrInvalidArgument)
	}
	next, ok := trigger.Next(time.Now())
	if !ok {
		return fmt.Errorf("%w: trigger for job %s has no fire time", models.ErrInvalidArgument, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists && !replaceExisting {
		return fmt.Errorf("%w: job %s already scheduled", models.ErrConflict, id)
	}

	s.jobs[id] = &scheduledJob{
		id:      id,
		fn:      fn,
		trigger: trigger,
		kwargs:  kwargs,
		nextRun: next,
	}

	s.logger.Debug("job scheduled",
		slog.String("job_id", id),
		slog.String("trigger", string(trigger.Kind())),
		slog.Time("next_run", next),
	)
	return nil
}

// RemoveJob unschedules a job. Removing an unknown id is a no-op.
func (s *Scheduler) RemoveJob(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// ModifyJobNextRun moves a job's next fire time, typically to now for an
// immediate trigger.
func (s *Scheduler) ModifyJobNextRun(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return fmt.Errorf("%w: scheduler not started", models.ErrUnavailable)
	}
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", models.ErrNotFound, id)
	}
	if job.running {
		return fmt.Errorf("%w: job %s is already running", models.ErrConflict, id)
	}
	job.nextRun = at
	return nil
}

// Reschedule replaces a job's trigger, keeping its body and kwargs.
func (s *Scheduler) Reschedule(id string, trigger Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", models.ErrNotFound, id)
	}
	next, nok := trigger.Next(time.Now())
	if !nok {
		return fmt.Errorf("%w: trigger for job %s has no fire time", models.ErrInvalidArgument, id)
	}
	job.trigger = trigger
	job.nextRun = next

	s.logger.Info("job rescheduled",
		slog.String("job_id", id),
		slog.Time("next_run", next),
	)
	return nil
}

// GetJob returns a snapshot of one scheduled job, or nil if unknown.
func (s *Scheduler) GetJob(id string) *JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	info := snapshot(job)
	return &info
}

// GetJobs returns snapshots of all scheduled jobs.
func (s *Scheduler) GetJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for _, job := range s.jobs {
		infos = append(infos, snapshot(job))
	}
	return infos
}

// Started reports whether the dispatch loop is running.
func (s *Scheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func snapshot(job *scheduledJob) JobInfo {
	return JobInfo{
		ID:          job.id,
		TriggerKind: job.trigger.Kind(),
		NextRun:     job.nextRun,
		Running:     job.running,
		Kwargs:      job.kwargs,
	}
}

// dispatchLoop polls for due jobs once per tick.
func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(time.Now())
		}
	}
}

// dispatchDue fires every job whose next run is at or before now. Each run
// carries the fire time the trigger computed, not the tick that noticed it.
func (s *Scheduler) dispatchDue(now time.Time) {
	type dueJob struct {
		job *scheduledJob
		at  time.Time
	}

	s.mu.Lock()
	var due []dueJob
	for _, job := range s.jobs {
		if job.nextRun.IsZero() || job.nextRun.After(now) {
			continue
		}
		scheduledAt := job.nextRun

		if job.running {
			// Previous run still in flight; this fire time is lost.
			s.notifyMissed(job.id, scheduledAt)
			if next, ok := job.trigger.Next(now); ok {
				job.nextRun = next
			} else {
				delete(s.jobs, job.id)
			}
			continue
		}

		job.running = true
		if next, ok := job.trigger.Next(now); ok {
			job.nextRun = next
		} else {
			job.nextRun = time.Time{}
		}
		due = append(due, dueJob{job: job, at: scheduledAt})
	}
	s.mu.Unlock()

	for _, d := range due {
		s.wg.Add(1)
		go s.runJob(d.job, d.at)
	}
}

// runJob executes one job body, emitting submitted and terminal events.
func (s *Scheduler) runJob(job *scheduledJob, scheduledAt time.Time) {
	defer s.wg.Done()

	s.notifySubmitted(job.id, scheduledAt, job.kwargs)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return job.fn(s.ctx, job.id, job.kwargs)
	}()

	s.mu.Lock()
	job.running = false
	if job.nextRun.IsZero() {
		// One-shot trigger exhausted; drop the job.
		delete(s.jobs, job.id)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			slog.String("job_id", job.id),
			slog.Any("error", err),
		)
		s.notifyError(job.id, err)
		return
	}
	s.notifyExecuted(job.id)
}

func (s *Scheduler) snapshotListeners() []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

func (s *Scheduler) notifySubmitted(jobID string, at time.Time, kwargs map[string]any) {
	for _, l := range s.snapshotListeners() {
		l.OnJobSubmitted(jobID, at, kwargs)
	}
}

func (s *Scheduler) notifyExecuted(jobID string) {
	for _, l := range s.snapshotListeners() {
		l.OnJobExecuted(jobID)
	}
}

func (s *Scheduler) notifyError(jobID string, err error) {
	for _, l := range s.snapshotListeners() {
		l.OnJobError(jobID, err)
	}
}

func (s *Scheduler) notifyMissed(jobID string, at time.Time) {
	// Called with s.mu held from dispatchDue; copy listeners inline.
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	go func() {
		for _, l := range listeners {
			l.OnJobMissed(jobID, at)
		}
	}()
}
