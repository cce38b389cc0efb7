package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger computes fire times for a scheduled job.
// Implementations are stateless; the scheduler tracks the next run.
type Trigger interface {
	// Next returns the first fire time strictly after the given time.
	// ok is false when the trigger has no further fire times.
	Next(after time.Time) (next time.Time, ok bool)
	// Kind returns the trigger kind for listings.
	Kind() TriggerKind
}

// TriggerKind identifies the trigger type.
type TriggerKind string

// Trigger kinds.
const (
	TriggerKindInterval TriggerKind = "interval"
	TriggerKindCron     TriggerKind = "cron"
	TriggerKindDate     TriggerKind = "date"
)

// IntervalTrigger fires repeatedly with a fixed period.
type IntervalTrigger struct {
	Every time.Duration
}

// NewIntervalTrigger creates an interval trigger.
func NewIntervalTrigger(every time.Duration) IntervalTrigger {
	return IntervalTrigger{Every: every}
}

// Next implements Trigger.
func (t IntervalTrigger) Next(after time.Time) (time.Time, bool) {
	if t.Every <= 0 {
		return time.Time{}, false
	}
	return after.Add(t.Every), true
}

// Kind implements Trigger.
func (t IntervalTrigger) Kind() TriggerKind { return TriggerKindInterval }

// cronParser uses the standard 5-field format (minute to day-of-week).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// CronTrigger fires according to a 5-field cron expression.
type CronTrigger struct {
	expr     string
	schedule cron.Schedule
}

// NewCronTrigger parses a 5-field cron expression into a trigger.
func NewCronTrigger(expr string) (CronTrigger, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return CronTrigger{}, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	return CronTrigger{expr: expr, schedule: schedule}, nil
}

// MustCronTrigger parses a cron expression and panics on error.
func MustCronTrigger(expr string) CronTrigger {
	t, err := NewCronTrigger(expr)
	if err != nil {
		panic(err)
	}
	return t
}

// Next implements Trigger.
func (t CronTrigger) Next(after time.Time) (time.Time, bool) {
	return t.schedule.Next(after), true
}

// Kind implements Trigger.
func (t CronTrigger) Kind() TriggerKind { return TriggerKindCron }

// String returns the cron expression.
func (t CronTrigger) String() string { return t.expr }

// DateTrigger fires exactly once at a fixed time.
type DateTrigger struct {
	At time.Time
}

// NewDateTrigger creates a one-shot trigger.
func NewDateTrigger(at time.Time) DateTrigger {
	return DateTrigger{At: at}
}

// Next implements Trigger.
func (t DateTrigger) Next(after time.Time) (time.Time, bool) {
	if after.Before(t.At) {
		return t.At, true
	}
	return time.Time{}, false
}

// Kind implements Trigger.
func (t DateTrigger) Kind() TriggerKind { return TriggerKindDate }
