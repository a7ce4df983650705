package analysis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarscan/internal/climate"
	"solarscan/internal/economics"
	"solarscan/internal/external"
	"solarscan/internal/geocode"
	"solarscan/internal/roof"
	"solarscan/internal/types"
	"solarscan/internal/yield"
)

const (
	gwanggyoAddr = "경기도 수원시 영통구 광교로 156"
	pangyoAddr   = "경기도 성남시 분당구 판교역로 235"
	busanAddr    = "부산광역시 해운대구 우동 1"
	nowhereAddr  = "존재하지 않는 주소 999"
)

// --- Fakes ---

// countingPredictor wraps the real predictor, counting calls and optionally
// blocking until released.
type countingPredictor struct {
	inner   YieldPredictor
	calls   atomic.Int32
	delay   time.Duration
	entered chan struct{}
	release chan struct{}
	err     error
}

func (p *countingPredictor) Predict(r types.RoofProfile, cs *types.ClimateSeries, bt types.BuildingType) (types.YieldEstimate, error) {
	p.calls.Add(1)
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return types.YieldEstimate{}, p.err
	}
	return p.inner.Predict(r, cs, bt)
}

type scriptedGeocoder struct {
	calls atomic.Int32
	fn    func(call int32) (types.Location, error)
}

func (g *scriptedGeocoder) Resolve(ctx context.Context, address string) (types.Location, error) {
	return g.fn(g.calls.Add(1))
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []CompletionEvent
}

func (n *recordingNotifier) NotifyCompletion(ctx context.Context, ev CompletionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) Events() []CompletionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]CompletionEvent(nil), n.events...)
}

type memArchive struct {
	mu   sync.Mutex
	rows map[string]types.AnalysisRequest
}

func newMemArchive() *memArchive {
	return &memArchive{rows: map[string]types.AnalysisRequest{}}
}

func (a *memArchive) Save(ctx context.Context, req types.AnalysisRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows[req.ID] = req
	return nil
}

func (a *memArchive) Get(ctx context.Context, id string) (*types.AnalysisRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	req, ok := a.rows[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (a *memArchive) FindCompleted(ctx context.Context, fingerprint string, now time.Time) (*types.AnalysisRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var best *types.AnalysisRequest
	for _, req := range a.rows {
		if req.Fingerprint != fingerprint || req.Status != types.StatusCompleted {
			continue
		}
		if req.ExpiresAt != nil && !now.Before(*req.ExpiresAt) {
			continue
		}
		if best == nil || req.CompletedAt.After(*best.CompletedAt) {
			r := req
			best = &r
		}
	}
	return best, nil
}

func (a *memArchive) has(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.rows[id]
	return ok
}

type recordingMetrics struct {
	NoopMetrics
	retries        atomic.Int32
	internalFaults atomic.Int32
	cacheHits      atomic.Int32
	rejected       atomic.Int32
}

func (m *recordingMetrics) RecordRetry(context.Context, string)                  { m.retries.Add(1) }
func (m *recordingMetrics) RecordInternalFault(context.Context, types.ErrorCode) { m.internalFaults.Add(1) }
func (m *recordingMetrics) RecordCacheHit(context.Context)                       { m.cacheHits.Add(1) }
func (m *recordingMetrics) RecordQueueRejected(context.Context)                  { m.rejected.Add(1) }

// --- Fixture ---

type fixture struct {
	orch      *Orchestrator
	predictor *countingPredictor
	notifier  *recordingNotifier
	archive   *memArchive
	metrics   *recordingMetrics
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stubClimate(refreshedAt time.Time, logger *slog.Logger) *climate.Resolver {
	return climate.NewResolver(external.NewStaticClimateStore(refreshedAt), climate.Config{
		Territory: "경기도",
		Boundary:  climate.GyeonggiTerritory(),
		Validity:  365 * 24 * time.Hour,
		CacheTTL:  time.Hour,
	}, nil, logger)
}

// newFixture wires the orchestrator to the deterministic stub providers and
// the real stage implementations. mutate may replace any dependency.
func newFixture(t *testing.T, mutate func(*Config, *Deps)) *fixture {
	t.Helper()
	logger := discardLogger()

	f := &fixture{
		predictor: &countingPredictor{
			inner: yield.NewPredictor(yield.LinearScorer{Coefficient: yield.DefaultPerformanceCoefficient}, yield.DefaultConfig()),
		},
		notifier: &recordingNotifier{},
		archive:  newMemArchive(),
		metrics:  &recordingMetrics{},
	}

	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.QueueSize = 8
	cfg.Budget = 5 * time.Second
	cfg.Retry = fastRetry(3)

	deps := Deps{
		Geocoder: geocode.New(external.NewStubGeocoder(logger), geocode.DefaultConfig(), logger),
		Roof:     roof.NewEstimator(external.NewStubImagery(logger), roof.DefaultConfig(), logger),
		Climate:  stubClimate(time.Now(), logger),
		Yield:    f.predictor,
		Rates:    economics.NewRateBook(),
		Archive:  f.archive,
		Notifier: f.notifier,
		Metrics:  f.metrics,
		Logger:   logger,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	o, err := New(cfg, deps)
	require.NoError(t, err)
	o.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Stop(ctx)
	})
	f.orch = o
	return f
}

func (f *fixture) submit(t *testing.T, addr string, bt types.BuildingType) SubmitReceipt {
	t.Helper()
	receipt, err := f.orch.Submit(context.Background(), SubmitInput{Address: addr, BuildingType: bt})
	require.NoError(t, err)
	return receipt
}

func (f *fixture) wait(t *testing.T, id string) types.AnalysisRequest {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := f.orch.Store().Wait(ctx, id)
	require.NoError(t, err)
	return snap
}

// --- Tests ---

func TestSubmit_ScenarioA_CoveredHouseCompletes(t *testing.T) {
	f := newFixture(t, nil)

	receipt := f.submit(t, gwanggyoAddr, types.BuildingHouse)
	assert.Equal(t, types.StatusPending, receipt.Status)
	assert.Equal(t, 30, receipt.EstimatedSeconds)
	assert.False(t, receipt.Deduplicated)

	snap := f.wait(t, receipt.RequestID)
	require.Equal(t, types.StatusCompleted, snap.Status)
	require.NotNil(t, snap.Result)
	assert.Nil(t, snap.Failure)

	res := snap.Result
	assert.Equal(t, receipt.RequestID, res.RequestID)
	assert.Equal(t, types.RoofSourceImagery, res.Roof.Source)
	assert.InDelta(t, 135.0, res.Roof.UsableAreaM2, 0.01)
	assert.Equal(t, types.OrientationS, res.Roof.Orientation)
	assert.InDelta(t, 18.0, res.Yield.CapacityKW, 0.01)
	assert.InDelta(t, 3650.0, res.Yield.AnnualKWh, 3650*0.05)
	assert.Positive(t, res.Economics.AnnualSavings)
	assert.Positive(t, res.Environment.CO2ReductionTons)
	assert.Equal(t, "경기도 수원시 영통구", res.Location.Region)
	assert.Empty(t, res.Confidence.Flags)
	assert.InDelta(t, 0.95, res.Confidence.Score, 1e-9)
}

func TestSubmit_ScenarioB_OutsideCoverageFails(t *testing.T) {
	f := newFixture(t, nil)

	snap := f.wait(t, f.submit(t, busanAddr, types.BuildingHouse).RequestID)

	require.Equal(t, types.StatusFailed, snap.Status)
	assert.Nil(t, snap.Result, "no zero-valued result on failure")
	require.NotNil(t, snap.Failure)
	assert.Equal(t, types.ErrCodeNoClimateData, snap.Failure.Code)
	assert.Equal(t, types.FailurePipeline, snap.Failure.Class)
	assert.Equal(t, int32(0), f.predictor.calls.Load())
}

func TestSubmit_UnresolvableAddressFails(t *testing.T) {
	f := newFixture(t, nil)

	snap := f.wait(t, f.submit(t, nowhereAddr, types.BuildingHouse).RequestID)

	require.Equal(t, types.StatusFailed, snap.Status)
	assert.Equal(t, types.ErrCodeUnresolvableAddress, snap.Failure.Code)
}

func TestSubmit_RejectsInvalidInputSynchronously(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		in   SubmitInput
		code types.ErrorCode
	}{
		{"empty address", SubmitInput{Address: "   ", BuildingType: types.BuildingHouse}, types.ErrCodeValidationEmptyAddress},
		{"unknown building type", SubmitInput{Address: gwanggyoAddr, BuildingType: "castle"}, types.ErrCodeValidationBuildingType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orch.Submit(context.Background(), tc.in)
			requireCode(t, err, tc.code)
		})
	}
	assert.Equal(t, 0, f.orch.Store().Len(), "no record is created for rejected input")
}

func TestSubmit_BuildingTypeDefaultsToHouse(t *testing.T) {
	f := newFixture(t, nil)

	receipt, err := f.orch.Submit(context.Background(), SubmitInput{Address: gwanggyoAddr})
	require.NoError(t, err)
	snap := f.wait(t, receipt.RequestID)
	assert.Equal(t, types.BuildingHouse, snap.BuildingType)

	again := f.submit(t, gwanggyoAddr, types.BuildingHouse)
	assert.Equal(t, receipt.RequestID, again.RequestID, "the default shares the house fingerprint")
}

func TestSubmit_ScenarioD_DuplicateSubmissionsComputeOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.predictor.delay = 100 * time.Millisecond

	const n = 20
	var (
		wg  sync.WaitGroup
		ids = make([]string, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := gwanggyoAddr
			if i%2 == 1 {
				addr = "  " + gwanggyoAddr + " "
			}
			receipt, err := f.orch.Submit(context.Background(), SubmitInput{Address: addr, BuildingType: types.BuildingHouse})
			assert.NoError(t, err)
			ids[i] = receipt.RequestID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	first := f.wait(t, ids[0])
	require.Equal(t, types.StatusCompleted, first.Status)
	assert.Equal(t, int32(1), f.predictor.calls.Load())
	assert.Equal(t, int32(n-1), f.metrics.cacheHits.Load())
}

func TestSubmit_CachedResultIsByteIdentical(t *testing.T) {
	f := newFixture(t, nil)

	id := f.submit(t, gwanggyoAddr, types.BuildingHouse).RequestID
	f.wait(t, id)

	before, err := f.orch.GetResult(context.Background(), id)
	require.NoError(t, err)

	again := f.submit(t, gwanggyoAddr, types.BuildingHouse)
	assert.True(t, again.Deduplicated)
	assert.Equal(t, id, again.RequestID)
	assert.Equal(t, types.StatusCompleted, again.Status)

	after, err := f.orch.GetResult(context.Background(), again.RequestID)
	require.NoError(t, err)

	b1, err := json.Marshal(before)
	require.NoError(t, err)
	b2, err := json.Marshal(after)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
	assert.Equal(t, int32(1), f.predictor.calls.Load())
}

func TestSubmit_FailedRequestIsRecomputed(t *testing.T) {
	f := newFixture(t, nil)

	first := f.submit(t, nowhereAddr, types.BuildingHouse).RequestID
	require.Equal(t, types.StatusFailed, f.wait(t, first).Status)

	second := f.submit(t, nowhereAddr, types.BuildingHouse)
	assert.False(t, second.Deduplicated)
	assert.NotEqual(t, first, second.RequestID)
}

func TestSubmit_BudgetElapsesWhileProcessing(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(cfg *Config, _ *Deps) { cfg.Budget = 100 * time.Millisecond })
	f.predictor.release = release

	start := time.Now()
	id := f.submit(t, gwanggyoAddr, types.BuildingHouse).RequestID
	snap := f.wait(t, id)

	assert.Less(t, time.Since(start), time.Second)
	require.Equal(t, types.StatusFailed, snap.Status)
	assert.Equal(t, types.ErrCodeTimeout, snap.Failure.Code)

	close(release)
	time.Sleep(50 * time.Millisecond)
	got, err := f.orch.GetResult(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status, "late result is discarded")
	assert.Nil(t, got.Result)
}

func TestSubmit_QueueFullRollsBack(t *testing.T) {
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	f := newFixture(t, func(cfg *Config, _ *Deps) {
		cfg.Workers = 1
		cfg.QueueSize = 1
	})
	f.predictor.entered = entered
	f.predictor.release = release
	defer close(release)

	f.submit(t, gwanggyoAddr, types.BuildingHouse)
	<-entered
	f.submit(t, pangyoAddr, types.BuildingHouse)

	_, err := f.orch.Submit(context.Background(), SubmitInput{Address: "경기도 용인시 수지구 1", BuildingType: types.BuildingHouse})
	requireCode(t, err, types.ErrCodeLimitQueueFull)
	assert.Equal(t, 2, f.orch.Store().Len())
	assert.Equal(t, int32(1), f.metrics.rejected.Load())
}

func TestSubmit_ConfidenceFlags(t *testing.T) {
	t.Run("ambiguous address", func(t *testing.T) {
		f := newFixture(t, nil)
		snap := f.wait(t, f.submit(t, "중앙로 100", types.BuildingHouse).RequestID)

		require.Equal(t, types.StatusCompleted, snap.Status)
		c := snap.Result.Confidence
		assert.True(t, c.HasFlag(types.FlagAmbiguousAddress))
		assert.GreaterOrEqual(t, len(c.Candidates), 2)
		assert.Less(t, c.Score, 0.95)
		assert.Equal(t, "경기도 수원시 팔달구", snap.Result.Location.Region, "best candidate is used")
	})

	t.Run("roof fallback", func(t *testing.T) {
		f := newFixture(t, func(_ *Config, d *Deps) {
			d.Roof = roof.NewEstimator(nil, roof.DefaultConfig(), discardLogger())
		})
		snap := f.wait(t, f.submit(t, gwanggyoAddr, types.BuildingHouse).RequestID)

		require.Equal(t, types.StatusCompleted, snap.Status)
		assert.Equal(t, []types.ConfidenceFlag{types.FlagRoofFallback}, snap.Result.Confidence.Flags)
		assert.InDelta(t, 0.76, snap.Result.Confidence.Score, 1e-9)
	})

	t.Run("stale climate", func(t *testing.T) {
		f := newFixture(t, func(_ *Config, d *Deps) {
			d.Climate = stubClimate(time.Now().AddDate(-2, 0, 0), discardLogger())
		})
		snap := f.wait(t, f.submit(t, gwanggyoAddr, types.BuildingHouse).RequestID)

		require.Equal(t, types.StatusCompleted, snap.Status)
		assert.Equal(t, []types.ConfidenceFlag{types.FlagStaleClimate}, snap.Result.Confidence.Flags)
	})
}

func TestSubmit_TransientGeocoderErrors(t *testing.T) {
	loc := types.Location{Address: gwanggyoAddr, Latitude: 37.2858, Longitude: 127.0444, Region: "경기도 수원시 영통구"}

	t.Run("recovers", func(t *testing.T) {
		g := &scriptedGeocoder{fn: func(call int32) (types.Location, error) {
			if call == 1 {
				return types.Location{}, errUnavailable
			}
			return loc, nil
		}}
		f := newFixture(t, func(_ *Config, d *Deps) { d.Geocoder = g })
		snap := f.wait(t, f.submit(t, gwanggyoAddr, types.BuildingHouse).RequestID)

		assert.Equal(t, types.StatusCompleted, snap.Status)
		assert.Equal(t, int32(2), g.calls.Load())
		assert.Equal(t, int32(1), f.metrics.retries.Load())
	})

	t.Run("exhausted", func(t *testing.T) {
		g := &scriptedGeocoder{fn: func(int32) (types.Location, error) { return types.Location{}, errUnavailable }}
		f := newFixture(t, func(_ *Config, d *Deps) { d.Geocoder = g })
		snap := f.wait(t, f.submit(t, gwanggyoAddr, types.BuildingHouse).RequestID)

		require.Equal(t, types.StatusFailed, snap.Status)
		assert.Equal(t, types.ErrCodeProviderExhausted, snap.Failure.Code)
		assert.Equal(t, int32(3), g.calls.Load())
	})

	t.Run("rejection is not retried", func(t *testing.T) {
		g := &scriptedGeocoder{fn: func(int32) (types.Location, error) {
			return types.Location{}, types.NewAppError(types.ErrCodeUpstreamGeocoder, "403", nil)
		}}
		f := newFixture(t, func(_ *Config, d *Deps) { d.Geocoder = g })
		snap := f.wait(t, f.submit(t, gwanggyoAddr, types.BuildingHouse).RequestID)

		require.Equal(t, types.StatusFailed, snap.Status)
		assert.Equal(t, types.ErrCodeProviderExhausted, snap.Failure.Code)
		assert.Equal(t, int32(1), g.calls.Load())
	})
}

func TestSubmit_InternalFaultIsSanitized(t *testing.T) {
	f := newFixture(t, nil)
	f.predictor.err = types.NewInvariantError("scorer produced NaN for month %d", 3)

	snap := f.wait(t, f.submit(t, gwanggyoAddr, types.BuildingHouse).RequestID)

	require.Equal(t, types.StatusFailed, snap.Status)
	assert.Equal(t, types.ErrCodeInternalInvariant, snap.Failure.Code)
	assert.Equal(t, types.FailureInternal, snap.Failure.Class)
	assert.Equal(t, "internal computation fault", snap.Failure.Message)
	assert.Equal(t, int32(1), f.metrics.internalFaults.Load())
}

func TestSubmit_CompletionNotification(t *testing.T) {
	f := newFixture(t, nil)

	withEmail, err := f.orch.Submit(context.Background(), SubmitInput{
		Address: gwanggyoAddr, BuildingType: types.BuildingHouse, Email: "owner@example.com",
	})
	require.NoError(t, err)
	f.wait(t, withEmail.RequestID)

	withoutEmail := f.submit(t, pangyoAddr, types.BuildingHouse).RequestID
	f.wait(t, withoutEmail)

	require.Eventually(t, func() bool { return len(f.notifier.Events()) == 1 }, time.Second, 5*time.Millisecond)
	ev := f.notifier.Events()[0]
	assert.Equal(t, EventAnalysisCompleted, ev.Type)
	assert.Equal(t, withEmail.RequestID, ev.RequestID)
	assert.Equal(t, "owner@example.com", ev.Email)
	assert.Equal(t, types.StatusCompleted, ev.Status)
	require.NotNil(t, ev.AnnualKWh)
	assert.Positive(t, *ev.AnnualKWh)
	assert.NotEmpty(t, ev.EventID)
}

func TestSubmit_DeduplicatedSubmittersAreAllNotified(t *testing.T) {
	f := newFixture(t, nil)
	f.predictor.entered = make(chan struct{}, 1)
	f.predictor.release = make(chan struct{})

	submit := func(email string) SubmitReceipt {
		receipt, err := f.orch.Submit(context.Background(), SubmitInput{
			Address: gwanggyoAddr, BuildingType: types.BuildingHouse, Email: email,
		})
		require.NoError(t, err)
		return receipt
	}

	first := submit("a@example.com")
	<-f.predictor.entered

	var wg sync.WaitGroup
	for _, email := range []string{"b@example.com", "a@example.com", ""} {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			receipt, err := f.orch.Submit(context.Background(), SubmitInput{
				Address: gwanggyoAddr, BuildingType: types.BuildingHouse, Email: email,
			})
			assert.NoError(t, err)
			assert.Equal(t, first.RequestID, receipt.RequestID)
		}(email)
	}
	wg.Wait()
	close(f.predictor.release)
	f.wait(t, first.RequestID)

	recipients := func() []string {
		var out []string
		for _, ev := range f.notifier.Events() {
			assert.Equal(t, first.RequestID, ev.RequestID)
			out = append(out, ev.Email)
		}
		return out
	}
	require.Eventually(t, func() bool { return len(f.notifier.Events()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, recipients())

	late := submit("c@example.com")
	assert.True(t, late.Deduplicated)
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, sortedCopy(recipients()))

	submit("b@example.com")
	assert.Len(t, f.notifier.Events(), 3, "a recipient is notified once")
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}

func TestGetResult(t *testing.T) {
	f := newFixture(t, nil)

	id := f.submit(t, gwanggyoAddr, types.BuildingHouse).RequestID
	f.wait(t, id)
	require.Eventually(t, func() bool { return f.archive.has(id) }, time.Second, 5*time.Millisecond)

	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)
	_ = f.archive.Save(context.Background(), types.AnalysisRequest{ID: "archived", Status: types.StatusCompleted, ExpiresAt: &future})
	_ = f.archive.Save(context.Background(), types.AnalysisRequest{ID: "expired", Status: types.StatusCompleted, ExpiresAt: &past})

	got, err := f.orch.GetResult(context.Background(), "archived")
	require.NoError(t, err)
	assert.Equal(t, "archived", got.ID)

	_, err = f.orch.GetResult(context.Background(), "expired")
	requireCode(t, err, types.ErrCodeNotFoundAnalysis)

	_, err = f.orch.GetResult(context.Background(), "unknown")
	requireCode(t, err, types.ErrCodeNotFoundAnalysis)
}

func TestSubmit_RestoresArchivedResultAfterRestart(t *testing.T) {
	archive := newMemArchive()
	first := newFixture(t, func(_ *Config, d *Deps) { d.Archive = archive })
	id := first.submit(t, gwanggyoAddr, types.BuildingHouse).RequestID
	first.wait(t, id)
	require.Eventually(t, func() bool { return archive.has(id) }, time.Second, 5*time.Millisecond)

	restarted := newFixture(t, func(_ *Config, d *Deps) { d.Archive = archive })
	receipt, err := restarted.orch.Submit(context.Background(), SubmitInput{
		Address: gwanggyoAddr, BuildingType: types.BuildingHouse, Email: "late@example.com",
	})
	require.NoError(t, err)
	assert.True(t, receipt.Deduplicated)
	assert.Equal(t, id, receipt.RequestID)
	assert.Equal(t, types.StatusCompleted, receipt.Status)
	assert.Zero(t, restarted.predictor.calls.Load())

	events := restarted.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "late@example.com", events[0].Email)

	snap, err := restarted.orch.GetResult(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, snap.Result)
	assert.Equal(t, id, snap.Result.RequestID)
}

func TestSubmit_ExpiredArchiveIsRecomputed(t *testing.T) {
	archive := newMemArchive()
	completed := time.Now().Add(-48 * time.Hour)
	expired := completed.Add(24 * time.Hour)
	_ = archive.Save(context.Background(), types.AnalysisRequest{
		ID:          "old",
		Fingerprint: Fingerprint(gwanggyoAddr, types.BuildingHouse),
		Status:      types.StatusCompleted,
		CompletedAt: &completed,
		ExpiresAt:   &expired,
		Result:      &types.AnalysisResult{RequestID: "old"},
	})

	f := newFixture(t, func(_ *Config, d *Deps) { d.Archive = archive })
	receipt := f.submit(t, gwanggyoAddr, types.BuildingHouse)
	assert.False(t, receipt.Deduplicated)
	assert.NotEqual(t, "old", receipt.RequestID)
}

func TestStop_RejectsNewSubmissions(t *testing.T) {
	f := newFixture(t, nil)
	probe := f.orch.HealthProbe()
	require.NoError(t, probe.Check(context.Background()))

	require.NoError(t, f.orch.Stop(context.Background()))

	_, err := f.orch.Submit(context.Background(), SubmitInput{Address: gwanggyoAddr, BuildingType: types.BuildingHouse})
	requireCode(t, err, types.ErrCodeInternalUnexpected)
	assert.Error(t, probe.Check(context.Background()))
}

func TestNew_RequiresStages(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	o := &Orchestrator{}
	live := context.Background()
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	tests := []struct {
		name  string
		ctx   context.Context
		err   error
		code  types.ErrorCode
		class types.FailureClass
	}{
		{"budget elapsed", expired, errUnavailable, types.ErrCodeTimeout, types.FailurePipeline},
		{"pipeline code kept", live, types.NewAppError(types.ErrCodeInsufficientRoof, "too small", nil), types.ErrCodeInsufficientRoof, types.FailurePipeline},
		{"imagery rejection", live, types.NewAppError(types.ErrCodeUpstreamImagery, "401", nil), types.ErrCodeProviderExhausted, types.FailurePipeline},
		{"invariant", live, types.NewInvariantError("bad"), types.ErrCodeInternalInvariant, types.FailureInternal},
		{"plain error", live, io.ErrUnexpectedEOF, types.ErrCodeInternalUnexpected, types.FailureInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := o.classify(tc.ctx, tc.err)
			assert.Equal(t, tc.code, f.Code)
			assert.Equal(t, tc.class, f.Class)
			if tc.class == types.FailureInternal {
				assert.Equal(t, internalFaultMessage, f.Message)
			}
		})
	}
}

func TestConfidenceScore(t *testing.T) {
	assert.InDelta(t, 0.95, confidenceScore(nil), 1e-9)
	assert.InDelta(t, 0.76, confidenceScore([]types.ConfidenceFlag{types.FlagRoofFallback}), 1e-9)
	all := []types.ConfidenceFlag{types.FlagAmbiguousAddress, types.FlagRoofFallback, types.FlagStaleClimate}
	assert.InDelta(t, 0.62, confidenceScore(all), 1e-9)
}
