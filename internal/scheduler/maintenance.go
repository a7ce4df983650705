package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"solarscan/internal/types"
)

// ResultSweeper drops expired request records. Implemented by analysis.Store.
type ResultSweeper interface {
	Sweep() int
}

// ArchivePurger deletes archived results that expired before now.
// Implemented by db.AnalysisRepository.
type ArchivePurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// WindowPruner drops rate limit windows that have reset. Implemented by
// core.MemoryRateLimitStore.
type WindowPruner interface {
	Prune() int
}

// MaintenanceService executes the maintenance tasks. Archive and Limits are
// optional; a nil dependency turns its part of a task into a no-op.
type MaintenanceService struct {
	Results ResultSweeper
	Archive ArchivePurger
	Limits  WindowPruner
	Clock   types.Clock
	Logger  *slog.Logger
}

// Run dispatches task to its handler using the service clock as cutoff.
func (m *MaintenanceService) Run(ctx context.Context, task TaskType) (TaskReport, error) {
	return m.RunAt(ctx, task, m.now())
}

// RunAt dispatches task with now as the expiry cutoff.
func (m *MaintenanceService) RunAt(ctx context.Context, task TaskType, now time.Time) (TaskReport, error) {
	start := time.Now()

	var (
		removed int64
		err     error
	)
	switch task {
	case TaskSweepResults:
		removed = m.SweepResults()
	case TaskPurgeArchive:
		removed, err = m.PurgeArchive(ctx, now)
	default:
		return TaskReport{}, fmt.Errorf("scheduler: unknown task %q", task)
	}

	report := TaskReport{Task: task, Removed: removed, Duration: time.Since(start)}
	if err != nil {
		m.logger().ErrorContext(ctx, "maintenance task failed", "task", string(task), "error", err)
		return report, err
	}
	m.logger().InfoContext(ctx, "maintenance task completed",
		"task", string(task),
		"removed", removed,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// SweepResults removes expired records from the registry and prunes the
// rate limiter. It reports the number of request records removed.
func (m *MaintenanceService) SweepResults() int64 {
	var removed int
	if m.Results != nil {
		removed = m.Results.Sweep()
	}
	if m.Limits != nil {
		m.Limits.Prune()
	}
	return int64(removed)
}

// PurgeArchive deletes archive rows that expired before now. Passing now
// explicitly allows manual backfills from the CLI.
func (m *MaintenanceService) PurgeArchive(ctx context.Context, now time.Time) (int64, error) {
	if m.Archive == nil {
		return 0, nil
	}
	n, err := m.Archive.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("scheduler: purge archive: %w", err)
	}
	return n, nil
}

func (m *MaintenanceService) now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC()
	}
	return m.Clock.Now()
}

func (m *MaintenanceService) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
