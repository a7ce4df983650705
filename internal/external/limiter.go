package external

import (
	"context"
	"fmt"

	"solarscan/internal/types"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of provider calls in flight across the process.
// Every provider handed to the pipeline is wrapped by the same Gate.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a Gate admitting at most n concurrent calls.
func NewGate(n int64) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(n)}
}

// Do runs fn while holding a slot. Waiting for a slot honours ctx.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("provider gate: %w", err)
	}
	defer g.sem.Release(1)
	return fn(ctx)
}

type gatedGeocoder struct {
	next GeocodingProvider
	gate *Gate
}

// GateGeocoder wraps p so each call holds a Gate slot.
func GateGeocoder(p GeocodingProvider, g *Gate) GeocodingProvider {
	return &gatedGeocoder{next: p, gate: g}
}

func (p *gatedGeocoder) Geocode(ctx context.Context, address string) (out []GeocodeMatch, err error) {
	err = p.gate.Do(ctx, func(ctx context.Context) error {
		out, err = p.next.Geocode(ctx, address)
		return err
	})
	return out, err
}

type gatedImagery struct {
	next ImageryProvider
	gate *Gate
}

// GateImagery wraps p so each call holds a Gate slot.
func GateImagery(p ImageryProvider, g *Gate) ImageryProvider {
	return &gatedImagery{next: p, gate: g}
}

func (p *gatedImagery) FetchSegmentation(ctx context.Context, lat, lon float64) (out *SegmentationTile, err error) {
	err = p.gate.Do(ctx, func(ctx context.Context) error {
		out, err = p.next.FetchSegmentation(ctx, lat, lon)
		return err
	})
	return out, err
}

type gatedClimate struct {
	next ClimateSource
	gate *Gate
}

// GateClimate wraps src so each call holds a Gate slot.
func GateClimate(src ClimateSource, g *Gate) ClimateSource {
	return &gatedClimate{next: src, gate: g}
}

func (p *gatedClimate) FetchSeries(ctx context.Context, region string) (out *types.ClimateSeries, err error) {
	err = p.gate.Do(ctx, func(ctx context.Context) error {
		out, err = p.next.FetchSeries(ctx, region)
		return err
	})
	return out, err
}

func (p *gatedClimate) ListSeries(ctx context.Context, prefix string) (out []types.ClimateSeries, err error) {
	err = p.gate.Do(ctx, func(ctx context.Context) error {
		out, err = p.next.ListSeries(ctx, prefix)
		return err
	})
	return out, err
}
