package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is a point-in-time resource snapshot of an encoder process.
type ProcessStats struct {
	PID            int     `json:"pid"`
	Running        bool    `json:"running"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	MemoryRSSMB    float64 `json:"memory_rss_mb"`
	MemoryPercent  float64 `json:"memory_percent"`
	ThreadCount    int32   `json:"thread_count"`

	LastUpdated time.Time `json:"last_updated"`
}

// SampleProcess returns resource usage for a live process. A process that has
// exited yields Running false with zeroed counters rather than an error.
func SampleProcess(ctx context.Context, pid int) (*ProcessStats, error) {
	stats := &ProcessStats{PID: pid, LastUpdated: time.Now().UTC()}

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return stats, nil
	}
	running, err := proc.IsRunningWithContext(ctx)
	if err != nil || !running {
		return stats, nil
	}
	stats.Running = true

	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.MemoryRSSBytes = mem.RSS
		stats.MemoryRSSMB = float64(mem.RSS) / (1024 * 1024)
	}
	if pct, err := proc.MemoryPercentWithContext(ctx); err == nil {
		stats.MemoryPercent = float64(pct)
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		stats.ThreadCount = threads
	}

	return stats, nil
}

// IsProcessRunning reports whether a pid refers to a live process.
func IsProcessRunning(ctx context.Context, pid int) bool {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	running, err := proc.IsRunningWithContext(ctx)
	return err == nil && running
}

// TerminateProcess sends SIGKILL to a process if it is still alive. Used when
// purging stalled sessions left over from an unclean shutdown.
func TerminateProcess(ctx context.Context, pid int) error {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil
	}
	running, err := proc.IsRunningWithContext(ctx)
	if err != nil || !running {
		return nil
	}
	if err := proc.KillWithContext(ctx); err != nil {
		return fmt.Errorf("killing process %d: %w", pid, err)
	}
	return nil
}
