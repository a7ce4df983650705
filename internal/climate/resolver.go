// Package climate resolves the monthly irradiance series for a location,
// enforcing the coverage boundary and walking the region hierarchy.
package climate

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"solarscan/internal/external"
	"solarscan/internal/types"
)

// Config tunes the resolver.
type Config struct {
	// Territory is the region tag prefix the service covers, e.g. "경기도".
	Territory string
	// Boundary is tested when a location carries no region tag.
	Boundary Territory
	// Validity is the age after which a series is flagged stale.
	Validity time.Duration
	// CacheTTL bounds how long a fetched series is reused.
	CacheTTL time.Duration
}

type cacheEntry struct {
	series  *types.ClimateSeries // nil records a miss
	expires time.Time
}

// Resolver implements climate lookups over an external.ClimateSource.
type Resolver struct {
	store  external.ClimateSource
	cfg    Config
	clock  types.Clock
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewResolver creates a Resolver. A nil clock uses the wall clock.
func NewResolver(store external.ClimateSource, cfg Config, clock types.Clock, logger *slog.Logger) *Resolver {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, cfg: cfg, clock: clock, logger: logger, cache: make(map[string]cacheEntry)}
}

// Covers reports whether loc is inside the service territory.
func (r *Resolver) Covers(loc types.Location) bool {
	if loc.Region != "" {
		return loc.Region == r.cfg.Territory || strings.HasPrefix(loc.Region, r.cfg.Territory+" ")
	}
	return r.cfg.Boundary.Contains(loc.Latitude, loc.Longitude)
}

// Resolve returns the most specific series available for loc. The returned
// value is a copy and may be modified by the caller.
func (r *Resolver) Resolve(ctx context.Context, loc types.Location) (*types.ClimateSeries, error) {
	if !r.Covers(loc) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeNoClimateData,
			"location is outside the covered territory", nil,
			map[string]any{"region": loc.Region, "territory": r.cfg.Territory})
	}

	for _, key := range r.lookupKeys(loc.Region) {
		cs, err := r.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		if cs == nil {
			continue
		}
		out := *cs
		if r.cfg.Validity > 0 && r.clock.Now().Sub(out.RefreshedAt) > r.cfg.Validity {
			out.Stale = true
		}
		if key != loc.Region {
			r.logger.DebugContext(ctx, "climate resolved at coarser region",
				"stage", "climate",
				"region", loc.Region,
				"matched", key,
			)
		}
		return &out, nil
	}

	return nil, types.NewAppErrorWithDetails(types.ErrCodeNoClimateData,
		"no climate series for region", nil,
		map[string]any{"region": loc.Region})
}

// SubRegions lists every series under prefix, validated. Used by the
// heatmap; no staleness flagging is applied.
func (r *Resolver) SubRegions(ctx context.Context, prefix string) ([]types.ClimateSeries, error) {
	all, err := r.store.ListSeries(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if err := Validate(&all[i]); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// lookupKeys returns the region tag followed by each shorter prefix, ending
// at the territory.
func (r *Resolver) lookupKeys(region string) []string {
	if region == "" {
		return []string{r.cfg.Territory}
	}
	parts := strings.Fields(region)
	floor := len(strings.Fields(r.cfg.Territory))
	keys := make([]string, 0, len(parts))
	for n := len(parts); n >= floor && n > 0; n-- {
		keys = append(keys, strings.Join(parts[:n], " "))
	}
	return keys
}

func (r *Resolver) fetch(ctx context.Context, key string) (*types.ClimateSeries, error) {
	now := r.clock.Now()
	r.mu.Lock()
	e, ok := r.cache[key]
	r.mu.Unlock()
	if ok && now.Before(e.expires) {
		return e.series, nil
	}

	cs, err := r.store.FetchSeries(ctx, key)
	if err != nil {
		return nil, err
	}
	if cs != nil {
		if err := Validate(cs); err != nil {
			return nil, err
		}
	}

	if r.cfg.CacheTTL > 0 {
		r.mu.Lock()
		r.cache[key] = cacheEntry{series: cs, expires: now.Add(r.cfg.CacheTTL)}
		r.mu.Unlock()
	}
	return cs, nil
}

// Validate checks a series holds only finite, non-negative values.
func Validate(cs *types.ClimateSeries) error {
	for i, v := range cs.Monthly {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return types.NewInvariantError("climate series %q month %d has invalid irradiance %v", cs.Region, i+1, v)
		}
	}
	if cs.Region == "" {
		return types.NewInvariantError("climate series has no region")
	}
	return nil
}

