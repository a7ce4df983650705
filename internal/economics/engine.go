// Package economics prices an installation and projects its savings.
package economics

import (
	"solarscan/internal/types"

	"github.com/shopspring/decimal"
)

var monthsPerYear = decimal.NewFromInt(types.MonthsPerYear)

// Evaluate computes the economic profile of est under rates.
func Evaluate(est types.YieldEstimate, rates RateTable) (types.EconomicProfile, error) {
	if err := rates.Validate(); err != nil {
		return types.EconomicProfile{}, err
	}
	if est.CapacityKW < 0 || est.AnnualKWh < 0 {
		return types.EconomicProfile{}, types.NewInvariantError("negative yield: capacity=%.2f annual=%.2f",
			est.CapacityKW, est.AnnualKWh)
	}

	installation := decimal.NewFromFloat(est.CapacityKW).Mul(rates.CostPerKW).Round(0)
	subsidy := decimal.Min(installation.Mul(rates.SubsidyRate).Round(0), rates.SubsidyCap.Round(0))
	net := installation.Sub(subsidy)
	annual := decimal.NewFromFloat(est.AnnualKWh).Mul(rates.TariffPerKWh).Round(0)
	lifetime := annual.Mul(decimal.NewFromInt(int64(rates.LifetimeYears))).Sub(net)

	p := types.EconomicProfile{
		Currency:           rates.Currency,
		InstallationCost:   installation.IntPart(),
		SubsidyAmount:      subsidy.IntPart(),
		NetCost:            net.IntPart(),
		ElectricityRate:    rates.TariffPerKWh.Round(0).IntPart(),
		AnnualSavings:      annual.IntPart(),
		MonthlySavings:     annual.Div(monthsPerYear).Round(0).IntPart(),
		LifetimeYears:      rates.LifetimeYears,
		LifetimeNetBenefit: lifetime.IntPart(),
		PaybackStatus:      types.PaybackNotRecoverable,
	}
	if annual.IsPositive() {
		years, _ := net.Div(annual).Round(1).Float64()
		p.PaybackYears = &years
		p.PaybackStatus = types.PaybackRecoverable
	}

	if p.NetCost < 0 || p.SubsidyAmount > p.InstallationCost {
		return types.EconomicProfile{}, types.NewInvariantError("net cost %d below zero", p.NetCost)
	}
	return p, nil
}
