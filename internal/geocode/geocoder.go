// Package geocode resolves free-form addresses to a single Location, detecting
// ambiguous input and memoizing answers.
package geocode

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"solarscan/internal/external"
	"solarscan/internal/types"

	"golang.org/x/sync/singleflight"
)

// Config tunes ambiguity detection and the memo cache.
type Config struct {
	CacheSize int
	// Margin is the minimum score lead the best match needs over the runner-up
	// to be accepted outright.
	Margin float64
	// MaxCandidates caps the shortlist attached to an ambiguous outcome.
	MaxCandidates int
	// HighConfidence is the score a runner-up needs before it can make the
	// outcome ambiguous.
	HighConfidence float64
	// LookupTimeout bounds one shared provider call. The call outlives any
	// single caller, so it cannot inherit a caller's deadline.
	LookupTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{CacheSize: 1024, Margin: 0.1, MaxCandidates: 5, HighConfidence: 0.7, LookupTimeout: 10 * time.Second}
}

// outcome is what the cache stores: either a location or an ambiguity.
type outcome struct {
	loc       types.Location
	ambiguous *types.AmbiguousAddressError
}

func (o outcome) result() (types.Location, error) {
	if o.ambiguous != nil {
		return o.ambiguous.Best, o.ambiguous
	}
	return o.loc, nil
}

// Geocoder resolves addresses through a GeocodingProvider.
type Geocoder struct {
	provider external.GeocodingProvider
	cfg      Config
	cache    *lru[outcome]
	group    singleflight.Group
	logger   *slog.Logger
}

// New creates a Geocoder. Zero config fields fall back to DefaultConfig.
func New(provider external.GeocodingProvider, cfg Config, logger *slog.Logger) *Geocoder {
	def := DefaultConfig()
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.HighConfidence <= 0 {
		cfg.HighConfidence = def.HighConfidence
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = def.LookupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Geocoder{
		provider: provider,
		cfg:      cfg,
		cache:    newLRU[outcome](cfg.CacheSize),
		logger:   logger,
	}
}

// Resolve returns the best Location for address.
//
// An *types.AmbiguousAddressError is returned together with the best location
// when several candidates score within the margin; callers may proceed with
// the location and surface the candidates. Any other error is fatal for the
// address.
func (g *Geocoder) Resolve(ctx context.Context, address string) (types.Location, error) {
	key := types.NormalizeAddress(address)
	if key == "" {
		return types.Location{}, types.NewAppError(types.ErrCodeValidationEmptyAddress, "address must not be empty", nil)
	}
	if o, ok := g.cache.Get(key); ok {
		return o.result()
	}

	ch := g.group.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.LookupTimeout)
		defer cancel()
		matches, err := g.provider.Geocode(flightCtx, address)
		if err != nil {
			return nil, err
		}
		o, err := g.decide(address, matches)
		if err != nil {
			return nil, err
		}
		g.cache.Add(key, o)
		return o, nil
	})

	select {
	case <-ctx.Done():
		return types.Location{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return types.Location{}, res.Err
		}
		if res.Shared {
			g.logger.DebugContext(ctx, "geocode lookup collapsed", "address", key)
		}
		return res.Val.(outcome).result()
	}
}

func (g *Geocoder) decide(address string, matches []external.GeocodeMatch) (outcome, error) {
	if len(matches) == 0 {
		return outcome{}, types.NewAppErrorWithDetails(types.ErrCodeUnresolvableAddress,
			"address could not be resolved to a location", nil,
			map[string]any{"address": address})
	}

	ranked := append([]external.GeocodeMatch(nil), matches...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	best := ranked[0].Location()
	if len(ranked) == 1 {
		return outcome{loc: best}, nil
	}
	second := ranked[1]
	if ranked[0].Score-second.Score >= g.cfg.Margin || second.Score < g.cfg.HighConfidence {
		return outcome{loc: best}, nil
	}

	n := min(len(ranked), g.cfg.MaxCandidates)
	candidates := make([]types.Candidate, n)
	for i := 0; i < n; i++ {
		candidates[i] = types.Candidate{Location: ranked[i].Location(), Score: ranked[i].Score}
	}
	return outcome{ambiguous: &types.AmbiguousAddressError{Best: best, Candidates: candidates}}, nil
}

// CacheLen reports how many addresses are memoized.
func (g *Geocoder) CacheLen() int {
	return g.cache.Len()
}
