// Package main is the entrypoint for the Archiver Lambda function.
//
// EventBridge rules send a MaintenancePayload naming the task, and the handler
// runs it through scheduler.MaintenanceService against the Postgres archive.
// This lets the archive be purged on a schedule even when no API process is
// running.
//
// Only tasks that touch shared storage run here. sweep_results works on the
// in-memory registry of an API process and is rejected.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"solarscan/internal/config"
	"solarscan/internal/db"
	"solarscan/internal/scheduler"
)

// TaskRunner executes one maintenance task at a reference time. Implemented
// by scheduler.MaintenanceService.
type TaskRunner interface {
	RunAt(ctx context.Context, task scheduler.TaskType, now time.Time) (scheduler.TaskReport, error)
}

// Handler holds the dependencies for the archiver Lambda handler function.
type Handler struct {
	Runner TaskRunner
	Logger *slog.Logger
	Now    func() time.Time
}

// Handle processes a MaintenancePayload from EventBridge.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (scheduler.TaskReport, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := h.now()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	logger.InfoContext(ctx, "archiver handler invoked",
		"task", string(payload.Task),
		"reference_time", now.Format(time.RFC3339),
	)

	switch payload.Task {
	case "":
		return scheduler.TaskReport{}, fmt.Errorf("empty task type in maintenance payload")
	case scheduler.TaskSweepResults:
		return scheduler.TaskReport{}, fmt.Errorf("task %s runs inside the API process", payload.Task)
	}

	report, err := h.Runner.RunAt(ctx, payload.Task, now)
	if err != nil {
		return report, fmt.Errorf("task %s failed: %w", payload.Task, err)
	}
	return report, nil
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now()
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("Archiver Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if !cfg.Database.URL.IsSet() {
		logger.Error("DATABASE_URL is required for the archiver")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := db.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		Runner: &scheduler.MaintenanceService{
			Archive: db.NewAnalysisRepository(pool),
			Logger:  logger,
		},
		Logger: logger,
	}

	logger.Info("Archiver Lambda initialized")

	lambda.Start(handler.Handle)
}
