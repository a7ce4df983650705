// Package yield predicts the monthly and annual generation of the installation
// a roof can host.
package yield

import (
	"math"
	"time"

	"solarscan/internal/types"
)

const (
	// AreaPerKW is the roof area one kW of panels occupies, in m².
	AreaPerKW = 7.5
	// PanelKW is the nameplate rating of one panel.
	PanelKW = 0.3
)

// orientationFactors derate a face by how far it points from south.
var orientationFactors = map[types.Orientation]float64{
	types.OrientationS:       1.00,
	types.OrientationSE:      0.95,
	types.OrientationSW:      0.95,
	types.OrientationE:       0.85,
	types.OrientationW:       0.85,
	types.OrientationUnknown: 0.85,
	types.OrientationNE:      0.72,
	types.OrientationNW:      0.72,
	types.OrientationN:       0.65,
}

// OrientationFactor returns the derating for o. Unrecognized values are
// treated like unknown.
func OrientationFactor(o types.Orientation) float64 {
	if f, ok := orientationFactors[o]; ok {
		return f
	}
	return orientationFactors[types.OrientationUnknown]
}

// Config tunes the predictor.
type Config struct {
	MaxCapacityKW map[types.BuildingType]float64
	OptimalSlope  float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxCapacityKW: map[types.BuildingType]float64{
			types.BuildingHouse:     30,
			types.BuildingApartment: 100,
		},
		OptimalSlope: 30,
	}
}

// Predictor turns a roof and climate series into a YieldEstimate.
type Predictor struct {
	scorer Scorer
	cfg    Config
}

// NewPredictor creates a Predictor. A nil scorer uses the LinearScorer.
func NewPredictor(scorer Scorer, cfg Config) *Predictor {
	if scorer == nil {
		scorer = LinearScorer{Coefficient: DefaultPerformanceCoefficient}
	}
	return &Predictor{scorer: scorer, cfg: cfg}
}

// SlopeFactor derates a tilt quadratically away from the optimum, never below
// one half. With the default 30° optimum the curve stays above 0.56 on [0,90];
// the floor binds only for optima near the ends of the range.
func (p *Predictor) SlopeFactor(slope float64) float64 {
	d := slope - p.cfg.OptimalSlope
	return math.Max(0.5, 1-0.00012*d*d)
}

// Capacity returns the installable capacity in kW for the usable area.
func (p *Predictor) Capacity(usableM2 float64, bt types.BuildingType) float64 {
	c := usableM2 / AreaPerKW
	if ceiling, ok := p.cfg.MaxCapacityKW[bt]; ok && c > ceiling {
		c = ceiling
	}
	return c
}

// Predict computes the yield estimate.
func (p *Predictor) Predict(roof types.RoofProfile, cs *types.ClimateSeries, bt types.BuildingType) (types.YieldEstimate, error) {
	if cs == nil {
		return types.YieldEstimate{}, types.NewInvariantError("yield prediction without climate series")
	}
	capacity := p.Capacity(roof.UsableAreaM2, bt)
	if capacity <= 0 || math.IsNaN(capacity) {
		return types.YieldEstimate{}, types.NewAppErrorWithDetails(types.ErrCodeInsufficientRoof,
			"roof has no usable area for panels", nil,
			map[string]any{"usable_area_m2": roof.UsableAreaM2})
	}

	of := OrientationFactor(roof.Orientation)
	sf := p.SlopeFactor(roof.SlopeDeg)

	est := types.YieldEstimate{
		CapacityKW:        round(capacity, 1),
		PanelCount:        int(math.Floor(capacity/PanelKW + 1e-9)),
		OrientationFactor: of,
		SlopeFactor:       round(sf, 4),
	}
	var annual float64
	for i := 0; i < types.MonthsPerYear; i++ {
		m := time.Month(i + 1)
		specific := p.scorer.SpecificYield(Features{
			Month:             m,
			Irradiance:        cs.Monthly[i],
			Days:              daysIn(m),
			OrientationFactor: of,
			SlopeFactor:       sf,
		})
		if math.IsNaN(specific) || math.IsInf(specific, 0) || specific < 0 {
			return types.YieldEstimate{}, types.NewInvariantError("scorer returned %v for %s", specific, m)
		}
		est.MonthlyKWh[i] = round(capacity*specific, 1)
		annual += est.MonthlyKWh[i]
	}
	// Annual is the sum of the rounded months, not the rounded exact total.
	est.AnnualKWh = round(annual, 1)
	est.DailyAverageKWh = round(est.AnnualKWh/365, 1)
	return est, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
