// Package analysis owns the request lifecycle: deduplicating submissions,
// running the staged pipeline on a bounded worker pool, enforcing the per
// request budget, and classifying failures.
//
// A request moves pending -> processing -> {completed, failed}. Every
// transition goes through Store, so exactly one outcome wins even when the
// budget timer and the pipeline race.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"solarscan/internal/economics"
	"solarscan/internal/environment"
	"solarscan/internal/types"
)

// internalFaultMessage replaces the detail of every internal failure before it
// reaches a caller.
const internalFaultMessage = "internal computation fault"

// notifyTimeout bounds archive writes and notifications after a transition.
const notifyTimeout = 5 * time.Second

// Config tunes the worker pool and request budget.
type Config struct {
	Workers          int
	QueueSize        int
	Budget           time.Duration
	EstimatedSeconds int
	Retry            RetryConfig
	// Territory is the region tag of the covered service area, used to
	// resolve heatmap region names.
	Territory string
}

// DefaultConfig returns a four worker pool with a 30 second budget over
// Gyeonggi-do.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		QueueSize:        64,
		Budget:           30 * time.Second,
		EstimatedSeconds: 30,
		Retry:            DefaultRetryConfig(),
		Territory:        "경기도",
	}
}

// Deps are the collaborators of an Orchestrator. Geocoder, Roof, Climate,
// Yield and Rates are required.
type Deps struct {
	Geocoder Geocoder
	Roof     RoofEstimator
	Climate  ClimateResolver
	Yield    YieldPredictor
	Rates    economics.RateSource

	Store    *Store
	Archive  Archive
	Notifier Notifier
	Metrics  Metrics
	Clock    types.Clock
	Logger   *slog.Logger
}

// SubmitInput is a new analysis request.
type SubmitInput struct {
	Address      string
	BuildingType types.BuildingType
	Email        string
}

// SubmitReceipt acknowledges a submission. Deduplicated is set when an
// existing live request absorbed it.
type SubmitReceipt struct {
	RequestID        string               `json:"request_id"`
	Status           types.AnalysisStatus `json:"status"`
	EstimatedSeconds int                  `json:"estimated_seconds"`
	Deduplicated     bool                 `json:"-"`
}

type job struct {
	id          string
	fingerprint string
	address     string
	bt          types.BuildingType
	deadline    time.Time
}

type outcome struct {
	result *types.AnalysisResult
	err    error
}

// Orchestrator schedules analyses on a fixed pool of workers.
type Orchestrator struct {
	cfg Config

	geocoder Geocoder
	roof     RoofEstimator
	climate  ClimateResolver
	yield    YieldPredictor
	rates    economics.RateSource

	store    *Store
	archive  Archive
	notifier Notifier
	metrics  Metrics
	clock    types.Clock
	logger   *slog.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	jobs    chan job
	timers  sync.Map // request id -> *time.Timer

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates deps and builds an Orchestrator. Call Start before Submit.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Geocoder == nil:
		return nil, errors.New("analysis: geocoder is required")
	case deps.Roof == nil:
		return nil, errors.New("analysis: roof estimator is required")
	case deps.Climate == nil:
		return nil, errors.New("analysis: climate resolver is required")
	case deps.Yield == nil:
		return nil, errors.New("analysis: yield predictor is required")
	case deps.Rates == nil:
		return nil, errors.New("analysis: rate source is required")
	}
	if cfg.Budget <= 0 {
		return nil, fmt.Errorf("analysis: budget must be positive, got %s", cfg.Budget)
	}
	cfg.Workers = max(cfg.Workers, 1)
	cfg.QueueSize = max(cfg.QueueSize, 1)
	if cfg.Territory == "" {
		cfg.Territory = DefaultConfig().Territory
	}

	clock := deps.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := deps.Store
	if store == nil {
		store = NewStore(clock, 24*time.Hour, time.Hour)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		geocoder: deps.Geocoder,
		roof:     deps.Roof,
		climate:  deps.Climate,
		yield:    deps.Yield,
		rates:    deps.Rates,
		store:    store,
		archive:  deps.Archive,
		notifier: deps.Notifier,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
		jobs:     make(chan job, cfg.QueueSize),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}, nil
}

// Store exposes the request registry for maintenance tasks.
func (o *Orchestrator) Store() *Store { return o.store }

// Start launches the worker pool. Calling it twice is a no-op.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.stopped {
		return
	}
	o.started = true
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	o.logger.Info("analysis workers started", "workers", o.cfg.Workers, "queue_size", o.cfg.QueueSize)
}

// Stop refuses new submissions and lets the workers drain the queue. When ctx
// ends first, in-flight pipelines are cancelled and the remaining jobs fail.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	close(o.jobs)
	o.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-drained
		return fmt.Errorf("analysis: drain interrupted: %w", ctx.Err())
	}
}

// Submit validates the input and either returns the live request for its
// fingerprint or enqueues a new one. An empty building type means house.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (SubmitReceipt, error) {
	address := strings.TrimSpace(in.Address)
	if address == "" {
		return SubmitReceipt{}, types.NewAppError(types.ErrCodeValidationEmptyAddress, "address is required", nil)
	}
	if in.BuildingType == "" {
		in.BuildingType = types.BuildingHouse
	}
	if !in.BuildingType.IsValid() {
		return SubmitReceipt{}, types.NewAppErrorWithDetails(types.ErrCodeValidationBuildingType,
			"building_type must be one of: house, apartment", nil,
			map[string]any{"building_type": string(in.BuildingType)})
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.stopped || !o.started {
		return SubmitReceipt{}, types.NewAppError(types.ErrCodeInternalUnexpected, "analysis service is not accepting requests", nil)
	}

	fp := Fingerprint(address, in.BuildingType)
	o.restoreArchived(ctx, fp)
	snap, created, joined := o.store.Register(fp, Registration{
		Address:      address,
		BuildingType: in.BuildingType,
		Email:        in.Email,
	})
	if !created {
		o.metrics.RecordCacheHit(ctx)
		o.logger.InfoContext(ctx, "submission deduplicated",
			"request_id", snap.ID, "fingerprint", fp, "status", string(snap.Status))
		if joined && snap.Status == types.StatusCompleted {
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
			o.notify(bg, snap, in.Email)
			cancel()
		}
		return o.receipt(snap, true), nil
	}

	j := job{
		id:          snap.ID,
		fingerprint: fp,
		address:     address,
		bt:          in.BuildingType,
		deadline:    time.Now().Add(o.cfg.Budget),
	}
	timer := time.AfterFunc(o.cfg.Budget, func() { o.expire(j.id) })
	o.timers.Store(j.id, timer)

	select {
	case o.jobs <- j:
	default:
		timer.Stop()
		o.timers.Delete(j.id)
		o.store.Abort(j.id)
		o.metrics.RecordQueueRejected(ctx)
		o.logger.WarnContext(ctx, "analysis queue full", "fingerprint", fp, "queue_size", o.cfg.QueueSize)
		return SubmitReceipt{}, types.NewAppError(types.ErrCodeLimitQueueFull, "analysis queue is full, retry later", nil)
	}

	o.logger.InfoContext(ctx, "analysis submitted",
		"request_id", j.id, "fingerprint", fp, "building_type", string(j.bt))
	return o.receipt(snap, false), nil
}

// restoreArchived loads an unexpired archived result for fp into the store
// when memory holds none, so a restart does not recompute it. Archive errors
// only cost the cache hit.
func (o *Orchestrator) restoreArchived(ctx context.Context, fp string) {
	if o.archive == nil || o.store.HasLive(fp) {
		return
	}
	req, err := o.archive.FindCompleted(ctx, fp, o.clock.Now())
	if err != nil {
		o.logger.WarnContext(ctx, "archive lookup failed", "fingerprint", fp, "error", err)
		return
	}
	if req != nil {
		o.store.Restore(*req)
	}
}

func (o *Orchestrator) receipt(snap types.AnalysisRequest, dedup bool) SubmitReceipt {
	return SubmitReceipt{
		RequestID:        snap.ID,
		Status:           snap.Status,
		EstimatedSeconds: o.cfg.EstimatedSeconds,
		Deduplicated:     dedup,
	}
}

// GetResult returns the current snapshot of a request, consulting the archive
// when the id is no longer held in memory.
func (o *Orchestrator) GetResult(ctx context.Context, id string) (types.AnalysisRequest, error) {
	if snap, ok := o.store.Get(id); ok {
		return snap, nil
	}
	if o.archive != nil {
		req, err := o.archive.Get(ctx, id)
		if err != nil {
			return types.AnalysisRequest{}, types.NewAppError(types.ErrCodeInternalDB, "failed to load analysis", err)
		}
		if req != nil && (req.ExpiresAt == nil || o.clock.Now().Before(*req.ExpiresAt)) {
			return *req, nil
		}
	}
	return types.AnalysisRequest{}, notFound(id)
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for j := range o.jobs {
		o.process(j)
	}
}

func (o *Orchestrator) process(j job) {
	ctx, cancel := context.WithDeadline(o.baseCtx, j.deadline)
	defer cancel()
	logger := o.logger.With("request_id", j.id, "fingerprint", j.fingerprint)
	ctx = types.WithRequestID(ctx, j.id)
	ctx = types.WithLogger(ctx, logger)

	if err := o.store.MarkProcessing(j.id); err != nil {
		// The budget timer already failed the request while it was queued.
		logger.DebugContext(ctx, "skipping job", "error", err)
		return
	}

	start := time.Now()
	out := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- outcome{err: fmt.Errorf("pipeline panic: %v", r)}
			}
		}()
		res, err := o.pipeline(ctx, j)
		out <- outcome{result: res, err: err}
	}()

	var oc outcome
	select {
	case oc = <-out:
	case <-ctx.Done():
		oc = outcome{err: ctx.Err()}
	}

	if oc.err != nil {
		f := o.classify(ctx, oc.err)
		if f.Class == types.FailureInternal {
			logger.ErrorContext(ctx, "analysis internal fault", "code", string(f.Code), "error", oc.err)
		} else {
			logger.InfoContext(ctx, "analysis failed", "code", string(f.Code), "error", oc.err)
		}
		o.finish(ctx, j.id, nil, &f)
		return
	}
	logger.InfoContext(ctx, "analysis completed",
		"annual_kwh", oc.result.Yield.AnnualKWh, "duration_ms", time.Since(start).Milliseconds())
	o.finish(ctx, j.id, oc.result, nil)
}

// expire fails a request whose budget elapsed, whether queued or running.
func (o *Orchestrator) expire(id string) {
	f := types.Failure{
		Code:    types.ErrCodeTimeout,
		Message: "analysis exceeded its time budget",
		Class:   types.FailurePipeline,
	}
	o.finish(types.WithRequestID(context.Background(), id), id, nil, &f)
}

// finish applies the terminal transition. Only the first caller for an id
// succeeds; later outcomes are discarded.
func (o *Orchestrator) finish(ctx context.Context, id string, result *types.AnalysisResult, failure *types.Failure) {
	var (
		snap types.AnalysisRequest
		err  error
	)
	if failure != nil {
		snap, err = o.store.Fail(id, *failure)
	} else {
		snap, err = o.store.Complete(id, result)
	}
	if err != nil {
		o.logger.DebugContext(ctx, "late outcome discarded", "request_id", id, "error", err)
		return
	}
	if t, ok := o.timers.LoadAndDelete(id); ok {
		t.(*time.Timer).Stop()
	}

	var code types.ErrorCode
	if failure != nil {
		code = failure.Code
		if failure.Class == types.FailureInternal {
			o.metrics.RecordInternalFault(ctx, code)
		}
	}
	o.metrics.RecordOutcome(ctx, snap.Status, code, snap.CompletedAt.Sub(snap.CreatedAt))

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if o.archive != nil {
		if err := o.archive.Save(bg, snap); err != nil {
			o.logger.WarnContext(ctx, "failed to archive analysis", "request_id", id, "error", err)
		}
	}
	for _, email := range snap.Recipients {
		o.notify(bg, snap, email)
	}
}

// notify publishes the completion event for one recipient of snap.
func (o *Orchestrator) notify(ctx context.Context, snap types.AnalysisRequest, email string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifyCompletion(ctx, newCompletionEvent(snap, email)); err != nil {
		o.logger.WarnContext(ctx, "failed to publish completion event", "request_id", snap.ID, "error", err)
	}
}

// pipeline runs the stages for one request. Stage outputs are only read after
// the producing stage returns.
func (o *Orchestrator) pipeline(ctx context.Context, j job) (*types.AnalysisResult, error) {
	flags := []types.ConfidenceFlag{}
	var candidates []types.Candidate

	start := time.Now()
	loc, err := withRetry(ctx, o.cfg.Retry, "geocoder", o.retryHook(ctx, "geocoder"),
		func(c context.Context) (types.Location, error) { return o.geocoder.Resolve(c, j.address) })
	o.metrics.RecordStage(ctx, "geocode", time.Since(start))
	var ambiguous *types.AmbiguousAddressError
	switch {
	case errors.As(err, &ambiguous):
		loc = ambiguous.Best
		candidates = ambiguous.Candidates
		flags = append(flags, types.FlagAmbiguousAddress)
	case err != nil:
		return nil, err
	}

	var (
		roof   types.RoofProfile
		series *types.ClimateSeries
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		defer func() { o.metrics.RecordStage(ctx, "roof", time.Since(start)) }()
		var err error
		roof, err = o.roof.Estimate(gctx, loc, j.bt)
		return err
	})
	g.Go(func() error {
		start := time.Now()
		defer func() { o.metrics.RecordStage(ctx, "climate", time.Since(start)) }()
		var err error
		series, err = withRetry(gctx, o.cfg.Retry, "climate", o.retryHook(ctx, "climate"),
			func(c context.Context) (*types.ClimateSeries, error) { return o.climate.Resolve(c, loc) })
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if roof.Source == types.RoofSourceFallback {
		flags = append(flags, types.FlagRoofFallback)
	}
	if series.Stale {
		flags = append(flags, types.FlagStaleClimate)
	}

	start = time.Now()
	est, err := o.yield.Predict(roof, series, j.bt)
	o.metrics.RecordStage(ctx, "yield", time.Since(start))
	if err != nil {
		return nil, err
	}

	var (
		econ types.EconomicProfile
		env  types.EnvironmentalProfile
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		rates, err := o.rates.Rates(gctx, j.bt, loc.Region)
		if err != nil {
			return err
		}
		econ, err = economics.Evaluate(est, rates)
		return err
	})
	g.Go(func() error {
		var err error
		env, err = environment.Evaluate(est.AnnualKWh)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &types.AnalysisResult{
		RequestID:    j.id,
		Fingerprint:  j.fingerprint,
		BuildingType: j.bt,
		Location:     loc,
		Roof:         roof,
		Yield:        est,
		Economics:    econ,
		Environment:  env,
		Confidence: types.Confidence{
			Score:      confidenceScore(flags),
			Flags:      flags,
			Candidates: candidates,
		},
		GeneratedAt: o.clock.Now(),
	}, nil
}

func (o *Orchestrator) retryHook(ctx context.Context, provider string) func(int, error) {
	return func(attempt int, err error) {
		o.metrics.RecordRetry(ctx, provider)
		types.LoggerFromContext(ctx, o.logger).WarnContext(ctx, "retrying provider call",
			"provider", provider, "attempt", attempt, "code", string(types.CodeOf(err)), "error", err)
	}
}

// classify maps a pipeline error onto the failure taxonomy. Only this method
// decides between pipeline and internal failures.
func (o *Orchestrator) classify(ctx context.Context, err error) types.Failure {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return types.Failure{Code: types.ErrCodeTimeout, Message: "analysis exceeded its time budget", Class: types.FailurePipeline}
		}
		return types.Failure{Code: types.ErrCodeInternalUnexpected, Message: internalFaultMessage, Class: types.FailureInternal}
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeUnresolvableAddress,
			types.ErrCodeNoClimateData,
			types.ErrCodeInsufficientRoof,
			types.ErrCodeProviderExhausted,
			types.ErrCodeTimeout:
			return types.Failure{Code: appErr.Code, Message: appErr.Message, Class: types.FailurePipeline}
		case types.ErrCodeUpstreamGeocoder,
			types.ErrCodeUpstreamImagery,
			types.ErrCodeUpstreamUnavailable,
			types.ErrCodeUpstreamRateLimited,
			types.ErrCodeUpstreamTimeout:
			return types.Failure{Code: types.ErrCodeProviderExhausted, Message: "external provider rejected the request", Class: types.FailurePipeline}
		case types.ErrCodeInternalInvariant:
			return types.Failure{Code: types.ErrCodeInternalInvariant, Message: internalFaultMessage, Class: types.FailureInternal}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.Failure{Code: types.ErrCodeTimeout, Message: "analysis exceeded its time budget", Class: types.FailurePipeline}
	}
	return types.Failure{Code: types.ErrCodeInternalUnexpected, Message: internalFaultMessage, Class: types.FailureInternal}
}

// confidenceScore starts from the imagery baseline and discounts each
// absorbed degradation.
func confidenceScore(flags []types.ConfidenceFlag) float64 {
	score := 0.95
	for _, f := range flags {
		switch f {
		case types.FlagRoofFallback:
			score *= 0.8
		case types.FlagAmbiguousAddress, types.FlagStaleClimate:
			score *= 0.9
		}
	}
	return math.Round(score*100) / 100
}

// QueueProbe reports the worker pool as a health dependency.
type QueueProbe struct {
	o *Orchestrator
}

// HealthProbe returns a probe for the worker pool.
func (o *Orchestrator) HealthProbe() QueueProbe { return QueueProbe{o: o} }

// Name implements core.HealthProbe.
func (p QueueProbe) Name() string { return "analysis_queue" }

// Check fails once the pool is stopped or before it starts.
func (p QueueProbe) Check(ctx context.Context) error {
	p.o.mu.RLock()
	defer p.o.mu.RUnlock()
	switch {
	case p.o.stopped:
		return errors.New("analysis workers stopped")
	case !p.o.started:
		return errors.New("analysis workers not started")
	}
	if depth := len(p.o.jobs); depth >= cap(p.o.jobs) {
		return fmt.Errorf("analysis queue saturated (%d jobs)", depth)
	}
	return nil
}
