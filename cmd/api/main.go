// Package main is the entry point for the SolarScan API server.
//
// It loads the configuration, wires the analysis pipeline (providers, stage
// services, result store, optional Postgres archive, SQS completion events and
// CloudWatch metrics), mounts the HTTP chassis and the v1 analysis routes, and
// starts the maintenance scheduler.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solarscan/internal/api/handlers"
	"solarscan/internal/bootstrap"
	"solarscan/internal/config"
	"solarscan/internal/core"
	"solarscan/internal/db"
	"solarscan/internal/scheduler"
	"solarscan/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewFileSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("solarscan API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv, err := buildServer(startCtx, cfg, logger)
	if err != nil {
		return err
	}
	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires the pipeline into a mounted core.Server. Background
// workers are running when it returns; srv.Shutdown stops them.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, error) {
	pipeline, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pipeline.Close()
		return nil, err
	}

	limits := core.NewMemoryRateLimitStore(types.RealClock{})
	srv.RateLimitStore = limits
	if pipeline.Metrics != nil {
		srv.Metrics = pipeline.Metrics
	}

	srv.HealthProbes = append(srv.HealthProbes, pipeline.Orchestrator.HealthProbe())
	if pipeline.Pool != nil {
		srv.HealthProbes = append(srv.HealthProbes, db.Probe{DB: pipeline.Pool})
	}

	analysisHandler := handlers.NewAnalysisHandler(pipeline.Orchestrator, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, analysisHandler.RegisterRoutes)

	maintenance := &scheduler.MaintenanceService{
		Results: pipeline.Store,
		Limits:  limits,
		Logger:  logger,
	}
	if pipeline.Archive != nil {
		maintenance.Archive = pipeline.Archive
	}
	sched, err := scheduler.NewScheduler(maintenance, scheduler.Schedules{
		SweepResults: cfg.Analysis.SweepSchedule,
		PurgeArchive: cfg.Analysis.ArchivePurgeSchedule,
	}, logger)
	if err != nil {
		pipeline.Close()
		return nil, err
	}

	srv.MountRoutes()

	pipeline.Orchestrator.Start()
	sched.Start()

	// Hooks run in reverse: scheduler first, then the workers, then the pool.
	srv.ShutdownHooks = append(srv.ShutdownHooks,
		func(context.Context) error {
			pipeline.Close()
			return nil
		},
		pipeline.Orchestrator.Stop,
		sched.Stop,
	)
	return srv, nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout(cfg.Server.RequestTimeout),
		IdleTimeout:       120 * time.Second,
	}

	// Channel to capture server errors from ListenAndServe.
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with a 10-second deadline.
	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop the scheduler, drain the workers, close the pool.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// writeTimeout leaves room past the request timeout so that a compare call
// waiting on its batch can still write its response.
func writeTimeout(requestTimeout time.Duration) time.Duration {
	return max(30*time.Second, requestTimeout+5*time.Second)
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
