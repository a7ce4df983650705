package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarscan/internal/analysis"
	"solarscan/internal/config"
	"solarscan/internal/external"
	"solarscan/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stubConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		IsTestMode:  true,
		Providers: config.ProvidersConfig{
			Timeout:     time.Second,
			MaxInFlight: 4,
			UserAgent:   "SolarScan/test",
		},
		Analysis: config.AnalysisConfig{
			Workers:                   2,
			QueueSize:                 8,
			Budget:                    5 * time.Second,
			EstimatedSeconds:          5,
			ResultTTL:                 time.Hour,
			FailedTTL:                 time.Minute,
			RetryAttempts:             2,
			RetryBaseDelay:            time.Millisecond,
			RetryMaxDelay:             5 * time.Millisecond,
			GeocodeCacheSize:          16,
			AmbiguityMargin:           0.1,
			MaxCandidates:             5,
			CoverageTerritory:         "경기도",
			ClimateValidity:           9600 * time.Hour,
			ClimateCacheTTL:           time.Hour,
			SegmentationMinConfidence: 0.6,
			ObstructionMargin:         0.1,
			DefaultSlopeHouse:         25,
			DefaultSlopeApartment:     10,
			OptimalSlope:              30,
		},
	}
}

type captureNotifier struct {
	mu     sync.Mutex
	events []analysis.CompletionEvent
}

func (n *captureNotifier) NotifyCompletion(ctx context.Context, ev analysis.CompletionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func TestBuild_StubPipelineCompletesAnalysis(t *testing.T) {
	notifier := &captureNotifier{}
	p, err := Build(context.Background(), stubConfig(), discardLogger(), WithNotifier(notifier))
	require.NoError(t, err)
	defer p.Close()

	assert.Nil(t, p.Pool)
	assert.Nil(t, p.Archive)
	assert.Nil(t, p.Metrics)
	assert.True(t, p.Registry.Stubbed)

	p.Orchestrator.Start()
	defer func() { _ = p.Orchestrator.Stop(context.Background()) }()

	receipt, err := p.Orchestrator.Submit(context.Background(), analysis.SubmitInput{
		Address:      "경기도 수원시 영통구 광교로 156",
		BuildingType: types.BuildingHouse,
		Email:        "owner@example.com",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := p.Store.Wait(ctx, receipt.RequestID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, snap.Status)
	require.NotNil(t, snap.Result)
	assert.Positive(t, snap.Result.Yield.AnnualKWh)

	assert.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestBuild_RejectsMissingConfig(t *testing.T) {
	_, err := Build(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestBuild_ProductionModeNeedsProviderURLs(t *testing.T) {
	cfg := stubConfig()
	cfg.Environment = "prod"
	cfg.IsTestMode = false

	_, err := Build(context.Background(), cfg, discardLogger())
	assert.ErrorContains(t, err, "provider base URLs")
}

func TestBuild_LoadsRateTableFile(t *testing.T) {
	cfg := stubConfig()
	cfg.Analysis.RateTableFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(context.Background(), cfg, discardLogger())
	assert.Error(t, err, "a configured but unreadable rate table must fail startup")
}

func TestOrchestratorConfig_MapsEnvironment(t *testing.T) {
	ac := stubConfig().Analysis
	got := OrchestratorConfig(ac)

	assert.Equal(t, 2, got.Workers)
	assert.Equal(t, 8, got.QueueSize)
	assert.Equal(t, 5*time.Second, got.Budget)
	assert.Equal(t, "경기도", got.Territory)
	assert.Equal(t, 2, got.Retry.Attempts)
	assert.Equal(t, time.Millisecond, got.Retry.BaseDelay)
	assert.Equal(t, analysis.DefaultRetryConfig().AttemptTimeout, got.Retry.AttemptTimeout)
}

type memClimate struct {
	series  map[string]types.ClimateSeries
	failOn  string
	upserts int
}

func (m *memClimate) FetchSeries(ctx context.Context, region string) (*types.ClimateSeries, error) {
	cs, ok := m.series[region]
	if !ok {
		return nil, nil
	}
	return &cs, nil
}

func (m *memClimate) ListSeries(ctx context.Context, prefix string) ([]types.ClimateSeries, error) {
	var out []types.ClimateSeries
	for region, cs := range m.series {
		if strings.HasPrefix(region, prefix) {
			out = append(out, cs)
		}
	}
	return out, nil
}

func (m *memClimate) Upsert(ctx context.Context, cs types.ClimateSeries) error {
	if cs.Region == m.failOn {
		return errors.New("write failed")
	}
	if m.series == nil {
		m.series = map[string]types.ClimateSeries{}
	}
	m.series[cs.Region] = cs
	m.upserts++
	return nil
}

func TestSeedClimate_CopiesTerritory(t *testing.T) {
	src := external.NewStaticClimateStore(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	want, err := src.ListSeries(context.Background(), "경기도")
	require.NoError(t, err)

	dst := &memClimate{}
	n, err := SeedClimate(context.Background(), dst, src, "경기도")
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	assert.Len(t, dst.series, len(want))
}

func TestSeedClimate_ReportsPartialWrites(t *testing.T) {
	src := external.NewStaticClimateStore(time.Now())
	dst := &memClimate{failOn: "경기도 수원시"}

	_, err := SeedClimate(context.Background(), dst, src, "경기도")
	assert.ErrorContains(t, err, "경기도 수원시")
}

func TestSeedClimateIfEmpty_SkipsPopulatedStore(t *testing.T) {
	dst := &memClimate{series: map[string]types.ClimateSeries{
		"경기도": {Region: "경기도"},
	}}
	n, err := SeedClimateIfEmpty(context.Background(), dst, external.NewStaticClimateStore(time.Now()), "경기도")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, dst.upserts)
}
