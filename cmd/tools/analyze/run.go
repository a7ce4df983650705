package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"solarscan/internal/analysis"
	"solarscan/internal/bootstrap"
	"solarscan/internal/config"
	"solarscan/internal/external"
	"solarscan/internal/scheduler"
	"solarscan/internal/types"
)

// waitSlack is added to the analysis budget when waiting for a result, so the
// orchestrator's own timeout always fires first.
const waitSlack = 2 * time.Second

// session is a started pipeline for the duration of one command.
type session struct {
	cfg      *config.Config
	pipeline *bootstrap.Pipeline
	logger   *slog.Logger
}

func openSession(ctx context.Context, stderr io.Writer, verbose bool) (*session, error) {
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	// Completion events are the API's concern; the CLI only logs them.
	p, err := bootstrap.Build(ctx, cfg, logger, bootstrap.WithNotifier(analysis.LogNotifier{Logger: logger}))
	if err != nil {
		return nil, err
	}
	p.Orchestrator.Start()
	return &session{cfg: cfg, pipeline: p, logger: logger}, nil
}

func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.pipeline.Orchestrator.Stop(ctx); err != nil {
		s.logger.Warn("orchestrator did not stop cleanly", "error", err)
	}
	s.pipeline.Close()
}

func (s *session) waitBudget() time.Duration {
	return s.cfg.Analysis.Budget + waitSlack
}

func runAnalyze(ctx context.Context, out, stderr io.Writer, verbose bool, address, buildingType, email string) error {
	bt := types.BuildingType(buildingType)
	if !bt.IsValid() {
		return fmt.Errorf("unknown building type %q", buildingType)
	}

	s, err := openSession(ctx, stderr, verbose)
	if err != nil {
		return err
	}
	defer s.Close()

	receipt, err := s.pipeline.Orchestrator.Submit(ctx, analysis.SubmitInput{
		Address:      address,
		BuildingType: bt,
		Email:        email,
	})
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.waitBudget())
	defer cancel()
	snap, err := s.pipeline.Store.Wait(waitCtx, receipt.RequestID)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", receipt.RequestID, err)
	}

	if err := writeJSON(out, snap); err != nil {
		return err
	}
	if snap.Status == types.StatusFailed && snap.Failure != nil {
		return fmt.Errorf("analysis failed: %s", snap.Failure.Code)
	}
	return nil
}

func runCompare(ctx context.Context, out, stderr io.Writer, verbose bool, addresses []string, buildingType string) error {
	bt := types.BuildingType(buildingType)
	if !bt.IsValid() {
		return fmt.Errorf("unknown building type %q", buildingType)
	}

	s, err := openSession(ctx, stderr, verbose)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.pipeline.Orchestrator.CompareMany(ctx, analysis.CompareInput{Addresses: addresses, BuildingType: bt})
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func runHeatmap(ctx context.Context, out, stderr io.Writer, verbose bool, region, metric string) error {
	s, err := openSession(ctx, stderr, verbose)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.pipeline.Orchestrator.Heatmap(ctx, region, types.HeatmapMetric(metric))
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func runSeedClimate(ctx context.Context, out, stderr io.Writer, verbose, force bool) error {
	s, err := openSession(ctx, stderr, verbose)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.pipeline.Climate == nil {
		return errors.New("seed-climate requires DATABASE_URL")
	}

	src := external.NewStaticClimateStore(time.Now().UTC())
	territory := s.cfg.Analysis.CoverageTerritory
	var n int
	if force {
		n, err = bootstrap.SeedClimate(ctx, s.pipeline.Climate, src, territory)
	} else {
		n, err = bootstrap.SeedClimateIfEmpty(ctx, s.pipeline.Climate, src, territory)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "seeded %d climate series under %s\n", n, territory)
	return err
}

func runMaintenance(ctx context.Context, out, stderr io.Writer, verbose bool, task string) error {
	if !isTask(task) {
		return fmt.Errorf("unknown task %q (valid: %v)", task, taskNames())
	}

	s, err := openSession(ctx, stderr, verbose)
	if err != nil {
		return err
	}
	defer s.Close()

	svc := &scheduler.MaintenanceService{Results: s.pipeline.Store, Logger: s.logger}
	if s.pipeline.Archive != nil {
		svc.Archive = s.pipeline.Archive
	}
	report, err := svc.Run(ctx, scheduler.TaskType(task))
	if err != nil {
		return err
	}
	return writeJSON(out, report)
}

func taskNames() []string {
	tasks := scheduler.Tasks()
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = string(t)
	}
	return names
}

func isTask(name string) bool {
	for _, t := range scheduler.Tasks() {
		if string(t) == name {
			return true
		}
	}
	return false
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
