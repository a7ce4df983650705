package yield

import "time"

// Features is the per-month input handed to a Scorer.
type Features struct {
	Month             time.Month
	Irradiance        float64 // kWh/m²/day
	Days              int
	OrientationFactor float64
	SlopeFactor       float64
}

// Scorer predicts the energy one kW of installed capacity yields in a month.
// It is the contract a trained model implements; the pipeline treats it as
// opaque.
type Scorer interface {
	SpecificYield(f Features) float64
}

// DefaultPerformanceCoefficient folds panel efficiency, inverter losses and
// soiling into a single factor, in kWh per kW per kWh/m² of irradiance.
const DefaultPerformanceCoefficient = 0.14

// LinearScorer is the physical baseline: irradiance × days × coefficient,
// derated by orientation and slope.
type LinearScorer struct {
	Coefficient float64
}

func (s LinearScorer) SpecificYield(f Features) float64 {
	return f.Irradiance * float64(f.Days) * s.Coefficient * f.OrientationFactor * f.SlopeFactor
}

// daysIn returns the days in month m of a non-leap year.
func daysIn(m time.Month) int {
	return time.Date(2023, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
