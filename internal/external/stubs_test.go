package external

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"solarscan/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubGeocoder(t *testing.T) {
	g := NewStubGeocoder(nil)
	ctx := context.Background()

	m, err := g.Geocode(ctx, "  경기도  수원시 영통구 광교로 156 ")
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Equal(t, "경기도 수원시 영통구", m[0].Region)

	m, err = g.Geocode(ctx, "중앙로 100")
	require.NoError(t, err)
	assert.Len(t, m, 3)
	assert.Greater(t, m[0].Score, m[1].Score)

	m1, _ := g.Geocode(ctx, "경기도 용인시 기흥구 어딘가 1")
	m2, _ := g.Geocode(ctx, "경기도 용인시 기흥구 어딘가 1")
	require.Len(t, m1, 1)
	assert.Equal(t, m1, m2, "stub answers are deterministic")
	assert.Equal(t, "경기도 용인시", m1[0].Region)

	m, err = g.Geocode(ctx, "atlantis")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestStubImageryFixture(t *testing.T) {
	tile, err := NewStubImagery(nil).FetchSegmentation(context.Background(), 37.2858, 127.0444)
	require.NoError(t, err)
	cells, err := DecodeMask(tile)
	require.NoError(t, err)

	roof := 0
	for _, c := range cells {
		if c == MaskRoof {
			roof++
		}
	}
	assert.Equal(t, 600, roof)
	require.NotNil(t, tile.SlopeDeg)
	assert.Equal(t, 25.0, *tile.SlopeDeg)
}

func TestStubImageryOutsideCoverage(t *testing.T) {
	_, err := NewStubImagery(nil).FetchSegmentation(context.Background(), 35.1796, 129.0756)
	assert.True(t, errors.Is(err, ErrImageryUnavailable))
}

func TestStaticClimateStore(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStaticClimateStore(at)
	ctx := context.Background()

	cs, err := s.FetchSeries(ctx, "경기도")
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.Equal(t, GyeonggiMonthlyIrradiance, cs.Monthly)
	assert.Equal(t, at, cs.RefreshedAt)

	cs, err = s.FetchSeries(ctx, "경기도 수원시 영통구")
	require.NoError(t, err)
	assert.Nil(t, cs, "only exact regions are stored")

	all, err := s.ListSeries(ctx, "경기도 ")
	require.NoError(t, err)
	assert.Len(t, all, len(gyeonggiRegionalFactors)-1)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Region, all[i].Region)
	}
}

type countingGeocoder struct {
	inFlight, peak atomic.Int32
}

func (c *countingGeocoder) Geocode(ctx context.Context, _ string) ([]GeocodeMatch, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return nil, nil
}

func TestGateBoundsConcurrency(t *testing.T) {
	inner := &countingGeocoder{}
	g := GateGeocoder(inner, NewGate(2))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Geocode(context.Background(), "x")
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.peak.Load(), int32(2))
}

func TestGateHonoursContext(t *testing.T) {
	gate := NewGate(1)
	hold := make(chan struct{})
	go gate.Do(context.Background(), func(context.Context) error { <-hold; return nil })
	defer close(hold)

	time.Sleep(5 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := gate.Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClientRegistry(t *testing.T) {
	t.Run("stub mode", func(t *testing.T) {
		cfg := &config.Config{Environment: "local", Providers: config.ProvidersConfig{MaxInFlight: 4}}
		reg, err := NewClientRegistry(cfg, nil)
		require.NoError(t, err)
		assert.True(t, reg.Stubbed)

		m, err := reg.Geocoder.Geocode(context.Background(), "경기도 수원시 영통구 광교로 156")
		require.NoError(t, err)
		assert.Len(t, m, 1)
		cs, err := reg.Climate.FetchSeries(context.Background(), "경기도")
		require.NoError(t, err)
		assert.NotNil(t, cs)
	})

	t.Run("production requires provider URLs", func(t *testing.T) {
		cfg := &config.Config{Environment: "prod", Providers: config.ProvidersConfig{MaxInFlight: 4}}
		_, err := NewClientRegistry(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("production with custom climate source", func(t *testing.T) {
		cfg := &config.Config{Environment: "prod", Providers: config.ProvidersConfig{
			GeocoderURL: "http://geo.internal", ImageryURL: "http://img.internal",
			MaxInFlight: 4, Timeout: time.Second,
		}}
		src := NewStaticClimateStore(time.Time{})
		reg, err := NewClientRegistry(cfg, nil, WithClimateSource(src))
		require.NoError(t, err)
		assert.False(t, reg.Stubbed)
		assert.NotNil(t, reg.Geocoder)
		assert.NotNil(t, reg.Imagery)
	})
}
