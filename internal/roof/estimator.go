// Package roof estimates the usable rooftop of a building from a segmentation
// raster, falling back to building-type defaults when imagery cannot be used.
package roof

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"solarscan/internal/external"
	"solarscan/internal/geo"
	"solarscan/internal/types"
)

// Config tunes the estimator.
type Config struct {
	MinConfidence     float64
	ObstructionMargin float64
	// DefaultSlope is used when the provider has no elevation data.
	DefaultSlope map[types.BuildingType]float64
	// FallbackArea is the assumed footprint in m² when imagery is unusable.
	FallbackArea       map[types.BuildingType]float64
	FallbackConfidence float64
	// MinElongation is the major/minor moment ratio below which a footprint
	// has no usable orientation.
	MinElongation float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence:     0.6,
		ObstructionMargin: 0.1,
		DefaultSlope: map[types.BuildingType]float64{
			types.BuildingHouse:     25,
			types.BuildingApartment: 10,
		},
		FallbackArea: map[types.BuildingType]float64{
			types.BuildingHouse:     150,
			types.BuildingApartment: 400,
		},
		FallbackConfidence: 0.4,
		MinElongation:      1.15,
	}
}

// Estimator produces RoofProfiles.
type Estimator struct {
	imagery external.ImageryProvider
	cfg     Config
	logger  *slog.Logger
}

// NewEstimator creates an Estimator. A nil imagery provider makes every
// estimate a fallback.
func NewEstimator(imagery external.ImageryProvider, cfg Config, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{imagery: imagery, cfg: cfg, logger: logger}
}

// Estimate returns the roof profile at loc. Imagery problems never fail the
// estimate; the fallback profile is returned with Source set to fallback.
// Errors are limited to a done context and invariant violations.
func (e *Estimator) Estimate(ctx context.Context, loc types.Location, bt types.BuildingType) (types.RoofProfile, error) {
	logger := types.LoggerFromContext(ctx, e.logger).With("stage", "roof")

	if e.imagery == nil {
		return e.fallback(bt)
	}
	tile, err := e.imagery.FetchSegmentation(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.RoofProfile{}, ctxErr
		}
		if errors.Is(err, external.ErrImageryUnavailable) {
			logger.InfoContext(ctx, "no imagery for location, using defaults")
		} else {
			logger.WarnContext(ctx, "imagery fetch failed, using defaults", "error", err)
		}
		return e.fallback(bt)
	}
	if tile.Confidence < e.cfg.MinConfidence {
		logger.InfoContext(ctx, "segmentation confidence too low, using defaults",
			"confidence", tile.Confidence,
			"min_confidence", e.cfg.MinConfidence,
		)
		return e.fallback(bt)
	}

	cells, err := external.DecodeMask(tile)
	if err != nil {
		logger.WarnContext(ctx, "segmentation mask unreadable, using defaults", "error", err)
		return e.fallback(bt)
	}
	fp, ok := extractFootprint(&geo.Grid{Width: tile.Width, Height: tile.Height, Cells: cells})
	if !ok {
		logger.InfoContext(ctx, "no building footprint in raster, using defaults")
		return e.fallback(bt)
	}

	pixelArea := tile.MetersPerPixel * tile.MetersPerPixel
	total := float64(len(fp.cells)) * pixelArea
	obstruction := float64(fp.obstruction) * pixelArea

	slope := e.cfg.DefaultSlope[bt]
	if tile.SlopeDeg != nil {
		slope = *tile.SlopeDeg
	}

	profile := types.RoofProfile{
		TotalAreaM2:       round2(total),
		UsableAreaM2:      round2(math.Max(0, total*(1-e.cfg.ObstructionMargin)-obstruction)),
		ObstructionAreaM2: round2(obstruction),
		Orientation:       e.orientation(fp.cells),
		SlopeDeg:          slope,
		Source:            types.RoofSourceImagery,
		Confidence:        tile.Confidence,
	}
	if err := checkInvariants(profile); err != nil {
		return types.RoofProfile{}, err
	}

	logger.DebugContext(ctx, "roof estimated from imagery",
		"total_area_m2", profile.TotalAreaM2,
		"usable_area_m2", profile.UsableAreaM2,
		"orientation", profile.Orientation,
	)
	return profile, nil
}

func (e *Estimator) orientation(cells []geo.Point) types.Orientation {
	axis, ok := geo.PrincipalAxis(cells)
	if !ok || axis.Elongation < e.cfg.MinElongation {
		return types.OrientationUnknown
	}
	return types.CompassSectors[geo.SectorIndex(geo.SouthFacingNormal(axis.Bearing))]
}

func (e *Estimator) fallback(bt types.BuildingType) (types.RoofProfile, error) {
	area := e.cfg.FallbackArea[bt]
	p := types.RoofProfile{
		TotalAreaM2:  area,
		UsableAreaM2: round2(area * (1 - e.cfg.ObstructionMargin)),
		Orientation:  types.OrientationUnknown,
		SlopeDeg:     e.cfg.DefaultSlope[bt],
		Source:       types.RoofSourceFallback,
		Confidence:   e.cfg.FallbackConfidence,
	}
	if err := checkInvariants(p); err != nil {
		return types.RoofProfile{}, err
	}
	return p, nil
}

func checkInvariants(p types.RoofProfile) error {
	switch {
	case p.TotalAreaM2 < 0 || p.UsableAreaM2 < 0 || p.ObstructionAreaM2 < 0:
		return types.NewInvariantError("negative roof area: total=%.2f usable=%.2f obstruction=%.2f",
			p.TotalAreaM2, p.UsableAreaM2, p.ObstructionAreaM2)
	case p.UsableAreaM2 > p.TotalAreaM2:
		return types.NewInvariantError("usable area %.2f exceeds total %.2f", p.UsableAreaM2, p.TotalAreaM2)
	case math.IsNaN(p.SlopeDeg) || p.SlopeDeg < 0 || p.SlopeDeg > 90:
		return types.NewInvariantError("roof slope %.2f outside [0, 90]", p.SlopeDeg)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
