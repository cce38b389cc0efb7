// Package jobs tracks background job state and history and broadcasts
// lifecycle events. The registry observes the scheduler as a listener and is
// the single source of truth for dashboard job views.
package jobs

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/NicolasFerec/ferelix-server/internal/scheduler"
)

// Status describes the state of a tracked job.
type Status string

// Job statuses.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Well-known job ids. Library scans spawned per library use the
// ScanJobPrefix followed by the library id and a unix timestamp.
const (
	JobLibraryScanner      = "library_scanner"
	JobDatabaseMaintenance = "database_maintenance"
	ScanJobPrefix          = "scan_library_"
)

// historySize bounds the execution history ring.
const historySize = 100

// Progress carries job progress counters. Scans report file counts, encoder
// sessions report a percentage.
type Progress struct {
	FilesTotal     int     `json:"files_total,omitempty"`
	FilesProcessed int     `json:"files_processed,omitempty"`
	CurrentFile    string  `json:"current_file,omitempty"`
	Percent        float64 `json:"percent,omitempty"`
}

// JobState is a snapshot of one tracked job.
type JobState struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Status          Status     `json:"status"`
	Progress        Progress   `json:"progress"`
	CancelRequested bool       `json:"cancel_requested"`
	RunningSince    *time.Time `json:"running_since,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// ExecutionType distinguishes recurring runs from one-off runs.
type ExecutionType string

// Execution types.
const (
	ExecutionScheduled ExecutionType = "scheduled"
	ExecutionOneOff    ExecutionType = "one-off"
)

// ExecutionRecord is one entry in the job execution history.
type ExecutionRecord struct {
	JobID       string        `json:"job_id"`
	JobName     string        `json:"job_name"`
	Type        ExecutionType `json:"type"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    float64       `json:"duration_seconds,omitempty"`
	Status      Status        `json:"status"`
	Progress    Progress      `json:"progress"`
	Error       string        `json:"error,omitempty"`
}

// jobEntry is the registry's mutable record for one job.
type jobEntry struct {
	state JobState
}

// Registry tracks job state, keeps a bounded execution history, and publishes
// events. It implements scheduler.Listener.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*jobEntry
	history []*ExecutionRecord

	bus    *Bus
	logger *slog.Logger
}

// NewRegistry creates a registry publishing to the given bus.
func NewRegistry(bus *Bus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*jobEntry),
		bus:     bus,
		logger:  logger,
	}
}

// Bus returns the event bus this registry publishes to.
func (r *Registry) Bus() *Bus { return r.bus }

// Ensure registers a job id with a display name if not already tracked.
func (r *Registry) Ensure(jobID, name string) JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(jobID, name).state
}

func (r *Registry) ensureLocked(jobID, name string) *jobEntry {
	if entry, ok := r.entries[jobID]; ok {
		if name != "" {
			entry.state.Name = name
		}
		return entry
	}
	if name == "" {
		name = displayName(jobID)
	}
	entry := &jobEntry{state: JobState{ID: jobID, Name: name, Status: StatusPending}}
	r.entries[jobID] = entry
	return entry
}

// Get returns a snapshot of one job, or nil if unknown.
func (r *Registry) Get(jobID string) *JobState {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[jobID]
	if !ok {
		return nil
	}
	state := entry.state
	return &state
}

// ListScheduled returns the recurring jobs known to the scheduler merged with
// their registry state. One-shot jobs are excluded.
func (r *Registry) ListScheduled(sched *scheduler.Scheduler) []JobState {
	infos := sched.GetJobs()

	r.mu.Lock()
	defer r.mu.Unlock()

	states := make([]JobState, 0, len(infos))
	for _, info := range infos {
		if info.IsOneShot() {
			continue
		}
		entry := r.ensureLocked(info.ID, nameFromKwargs(info.ID, info.Kwargs))
		state := entry.state
		next := info.NextRun
		state.NextRunAt = &next
		states = append(states, state)
	}
	return states
}

// UpdateProgress records progress for a running job and mirrors it into the
// job's open history record.
func (r *Registry) UpdateProgress(jobID string, progress Progress) {
	r.mu.Lock()
	entry, ok := r.entries[jobID]
	if !ok || entry.state.Status != StatusRunning {
		r.mu.Unlock()
		return
	}
	entry.state.Progress = progress
	if rec := r.openRecordLocked(jobID); rec != nil {
		rec.Progress = progress
	}
	name := entry.state.Name
	r.mu.Unlock()

	r.bus.Publish(Event{
		Type:     EventProgress,
		JobID:    jobID,
		JobName:  name,
		Progress: progress.Percent,
		Message:  progress.CurrentFile,
	})
}

// RequestCancel asks a running job to stop at its next cancellation check.
// Returns false when the job is unknown or not running.
func (r *Registry) RequestCancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[jobID]
	if !ok || entry.state.Status != StatusRunning {
		return false
	}
	entry.state.CancelRequested = true
	return true
}

// IsCancelRequested reports whether cancellation was requested for a job.
// Job bodies poll this between units of work.
func (r *Registry) IsCancelRequested(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[jobID]
	return ok && entry.state.CancelRequested
}

// MarkCancelled records that a job honoured a cancellation request. The
// scheduler still delivers the executed callback afterwards; the cancelled
// outcome recorded here wins.
func (r *Registry) MarkCancelled(jobID string) {
	now := time.Now().UTC()

	r.mu.Lock()
	entry, ok := r.entries[jobID]
	if !ok {
		r.mu.Unlock()
		return
	}
	entry.state.Status = StatusCancelled
	entry.state.CancelRequested = false
	entry.state.RunningSince = nil
	entry.state.LastRunAt = &now
	entry.state.CancelledAt = &now
	name := entry.state.Name
	r.closeRecordLocked(jobID, StatusCancelled, "", now)
	r.mu.Unlock()

	r.logger.Info("job cancelled", slog.String("job_id", jobID))
	r.bus.Publish(Event{Type: EventCancelled, JobID: jobID, JobName: name})
}

// History returns the most recent execution records, newest first, capped at
// the given limit (0 means all retained records).
func (r *Registry) History(limit int) []ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]ExecutionRecord, 0, n)
	for i := len(r.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *r.history[i])
	}
	return out
}

// Reset clears all job state and history.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*jobEntry)
	r.history = nil
}

// OnJobSubmitted implements scheduler.Listener.
func (r *Registry) OnJobSubmitted(jobID string, scheduledAt time.Time, kwargs map[string]any) {
	now := time.Now().UTC()

	r.mu.Lock()
	entry := r.ensureLocked(jobID, nameFromKwargs(jobID, kwargs))
	entry.state.Status = StatusRunning
	entry.state.Progress = Progress{}
	entry.state.CancelRequested = false
	entry.state.CancelledAt = nil
	entry.state.Error = ""
	entry.state.RunningSince = &now
	name := entry.state.Name

	execType := ExecutionScheduled
	if strings.HasPrefix(jobID, ScanJobPrefix) {
		execType = ExecutionOneOff
	}
	r.history = append(r.history, &ExecutionRecord{
		JobID:     jobID,
		JobName:   name,
		Type:      execType,
		StartedAt: now,
		Status:    StatusRunning,
	})
	if len(r.history) > historySize {
		r.history = r.history[len(r.history)-historySize:]
	}
	r.mu.Unlock()

	r.logger.Info("job started",
		slog.String("job_id", jobID),
		slog.Time("scheduled_at", scheduledAt),
	)
	r.bus.Publish(Event{Type: EventSubmitted, JobID: jobID, JobName: name})
}

// OnJobExecuted implements scheduler.Listener.
func (r *Registry) OnJobExecuted(jobID string) {
	now := time.Now().UTC()

	r.mu.Lock()
	entry, ok := r.entries[jobID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if entry.state.Status == StatusCancelled {
		// MarkCancelled already closed out this run.
		r.mu.Unlock()
		return
	}
	entry.state.Status = StatusSuccess
	entry.state.Progress.Percent = 100
	entry.state.CancelRequested = false
	entry.state.RunningSince = nil
	entry.state.LastRunAt = &now
	name := entry.state.Name
	r.closeRecordLocked(jobID, StatusSuccess, "", now)
	r.mu.Unlock()

	r.logger.Info("job completed", slog.String("job_id", jobID))
	r.bus.Publish(Event{Type: EventCompleted, JobID: jobID, JobName: name})
}

// OnJobError implements scheduler.Listener.
func (r *Registry) OnJobError(jobID string, err error) {
	now := time.Now().UTC()

	r.mu.Lock()
	entry, ok := r.entries[jobID]
	if !ok {
		r.mu.Unlock()
		return
	}
	entry.state.Status = StatusFailed
	entry.state.CancelRequested = false
	entry.state.RunningSince = nil
	entry.state.LastRunAt = &now
	entry.state.Error = err.Error()
	name := entry.state.Name
	r.closeRecordLocked(jobID, StatusFailed, err.Error(), now)
	r.mu.Unlock()

	r.bus.Publish(Event{Type: EventFailed, JobID: jobID, JobName: name, Error: err.Error()})
}

// OnJobMissed implements scheduler.Listener.
func (r *Registry) OnJobMissed(jobID string, scheduledAt time.Time) {
	r.logger.Warn("job run missed",
		slog.String("job_id", jobID),
		slog.Time("scheduled_at", scheduledAt),
	)
	r.bus.Publish(Event{
		Type:    EventMissed,
		JobID:   jobID,
		Message: fmt.Sprintf("run scheduled at %s skipped", scheduledAt.UTC().Format(time.RFC3339)),
	})
}

// openRecordLocked finds the newest unfinished history record for a job.
func (r *Registry) openRecordLocked(jobID string) *ExecutionRecord {
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].JobID == jobID && r.history[i].CompletedAt == nil {
			return r.history[i]
		}
	}
	return nil
}

func (r *Registry) closeRecordLocked(jobID string, status Status, errMsg string, now time.Time) {
	rec := r.openRecordLocked(jobID)
	if rec == nil {
		return
	}
	rec.CompletedAt = &now
	rec.Duration = now.Sub(rec.StartedAt).Seconds()
	rec.Status = status
	rec.Error = errMsg
	if status == StatusSuccess {
		rec.Progress.Percent = 100
	}
}

// nameFromKwargs prefers a display name passed by the job submitter.
func nameFromKwargs(jobID string, kwargs map[string]any) string {
	if name, ok := kwargs["job_name"].(string); ok && name != "" {
		return name
	}
	return displayName(jobID)
}

// displayName synthesizes a human-readable name from a job id.
func displayName(jobID string) string {
	switch jobID {
	case JobLibraryScanner:
		return "Library Scanner"
	case JobDatabaseMaintenance:
		return "Database Maintenance"
	}
	if rest, ok := strings.CutPrefix(jobID, ScanJobPrefix); ok {
		// scan_library_{id}_{unix}: strip the trailing timestamp.
		if i := strings.LastIndex(rest, "_"); i > 0 {
			rest = rest[:i]
		}
		return "Library Scanner: " + rest
	}
	return jobID
}
