package bootstrap

import (
	"context"
	"fmt"

	"solarscan/internal/external"
	"solarscan/internal/types"
)

// ClimateWriter persists climate series.
type ClimateWriter interface {
	Upsert(ctx context.Context, cs types.ClimateSeries) error
}

// ClimateStore is a climate source that can also be written to.
type ClimateStore interface {
	external.ClimateSource
	ClimateWriter
}

// SeedClimate copies every series under territory from src into dst and
// returns how many were written.
func SeedClimate(ctx context.Context, dst ClimateWriter, src external.ClimateSource, territory string) (int, error) {
	series, err := src.ListSeries(ctx, territory)
	if err != nil {
		return 0, fmt.Errorf("seed climate: list source: %w", err)
	}
	for i, cs := range series {
		if err := dst.Upsert(ctx, cs); err != nil {
			return i, fmt.Errorf("seed climate: %s: %w", cs.Region, err)
		}
	}
	return len(series), nil
}

// SeedClimateIfEmpty seeds dst only when it holds no series for territory.
func SeedClimateIfEmpty(ctx context.Context, dst ClimateStore, src external.ClimateSource, territory string) (int, error) {
	existing, err := dst.ListSeries(ctx, territory)
	if err != nil {
		return 0, fmt.Errorf("seed climate: list target: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	return SeedClimate(ctx, dst, src, territory)
}
