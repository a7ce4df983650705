package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// taskTimeout bounds a single scheduled run.
const taskTimeout = 5 * time.Minute

// Schedules holds the cron specs for each task. An empty spec disables the
// task. Specs accept the standard five fields and descriptors such as
// "@every 5m" or "@daily".
type Schedules struct {
	SweepResults string
	PurgeArchive string
}

// Scheduler runs maintenance tasks on cron schedules. A run that is still
// in progress when its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	service *MaintenanceService
	logger  *slog.Logger
	entries int
}

// NewScheduler validates every schedule and registers its task.
func NewScheduler(svc *MaintenanceService, schedules Schedules, logger *slog.Logger) (*Scheduler, error) {
	if svc == nil {
		return nil, fmt.Errorf("scheduler: maintenance service must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		service: svc,
		logger:  logger,
	}

	for _, entry := range []struct {
		spec string
		task TaskType
	}{
		{schedules.SweepResults, TaskSweepResults},
		{schedules.PurgeArchive, TaskPurgeArchive},
	} {
		if entry.spec == "" {
			continue
		}
		task := entry.task
		if _, err := s.cron.AddFunc(entry.spec, func() { s.run(task) }); err != nil {
			return nil, fmt.Errorf("scheduler: invalid schedule %q for %s: %w", entry.spec, task, err)
		}
		s.entries++
	}
	return s, nil
}

// Start begins running scheduled tasks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "tasks", s.entries)
}

// Stop prevents new runs and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: stop: %w", ctx.Err())
	}
}

func (s *Scheduler) run(task TaskType) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	// Run already logs the outcome.
	_, _ = s.service.Run(ctx, task)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
