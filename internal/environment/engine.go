// Package environment converts generated energy into avoided emissions.
package environment

import (
	"math"

	"solarscan/internal/types"
)

const (
	// GridEmissionFactor is the CO₂ the Korean grid emits per kWh, in kg.
	GridEmissionFactor = 0.424
	// TreeAbsorptionKg is the CO₂ one mature pine absorbs per year.
	TreeAbsorptionKg = 6.6
	// OilLitersPerKWh is the fuel oil a thermal plant burns per kWh.
	OilLitersPerKWh = 0.22
)

// Evaluate returns the environmental profile of annualKWh of generation.
func Evaluate(annualKWh float64) (types.EnvironmentalProfile, error) {
	if annualKWh < 0 || math.IsNaN(annualKWh) || math.IsInf(annualKWh, 0) {
		return types.EnvironmentalProfile{}, types.NewInvariantError("annual generation %v is not a non-negative number", annualKWh)
	}
	co2Kg := annualKWh * GridEmissionFactor
	return types.EnvironmentalProfile{
		CO2ReductionTons: math.Round(co2Kg/1000*100) / 100,
		TreeEquivalent:   int(math.Floor(co2Kg / TreeAbsorptionKg)),
		OilSavingsLiters: math.Round(annualKWh*OilLitersPerKWh*10) / 10,
	}, nil
}
