package types

import "time"

// MonthsPerYear is the length of every monthly series in the pipeline.
const MonthsPerYear = 12

// Location is a resolved geographic point with the administrative region tag
// used for climate and rate lookups. Immutable once resolved.
type Location struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Region    string  `json:"region"`
}

// Candidate is one ranked geocoding match offered when an address is ambiguous.
type Candidate struct {
	Location Location `json:"location"`
	Score    float64  `json:"score"`
}

// RoofProfile describes the usable rooftop of a building.
type RoofProfile struct {
	TotalAreaM2       float64     `json:"total_area_m2"`
	UsableAreaM2      float64     `json:"usable_area_m2"`
	ObstructionAreaM2 float64     `json:"obstruction_area_m2"`
	Orientation       Orientation `json:"orientation"`
	SlopeDeg          float64     `json:"slope_deg"`
	Source            RoofSource  `json:"source"`
	Confidence        float64     `json:"confidence"`
}

// ClimateSeries is the monthly average daily irradiance for a region in
// kWh/m²/day, January first.
type ClimateSeries struct {
	Region      string                 `json:"region"`
	Monthly     [MonthsPerYear]float64 `json:"monthly_irradiance"`
	RefreshedAt time.Time              `json:"refreshed_at"`
	Stale       bool                   `json:"stale"`
}

// AnnualAverage returns the mean daily irradiance over the year.
func (c ClimateSeries) AnnualAverage() float64 {
	var sum float64
	for _, v := range c.Monthly {
		sum += v
	}
	return sum / MonthsPerYear
}

// YieldEstimate is the predicted generation of the recommended installation.
// AnnualKWh always equals the sum of MonthlyKWh.
type YieldEstimate struct {
	CapacityKW        float64                `json:"capacity_kw"`
	PanelCount        int                    `json:"panel_count"`
	MonthlyKWh        [MonthsPerYear]float64 `json:"monthly_kwh"`
	AnnualKWh         float64                `json:"annual_kwh"`
	DailyAverageKWh   float64                `json:"daily_average_kwh"`
	OrientationFactor float64                `json:"orientation_factor"`
	SlopeFactor       float64                `json:"slope_factor"`
}

// EconomicProfile holds installation cost and savings. Money values are in the
// smallest unit of Currency.
type EconomicProfile struct {
	Currency           string        `json:"currency"`
	InstallationCost   int64         `json:"installation_cost"`
	SubsidyAmount      int64         `json:"subsidy_amount"`
	NetCost            int64         `json:"net_cost"`
	ElectricityRate    int64         `json:"electricity_rate"`
	AnnualSavings      int64         `json:"annual_savings"`
	MonthlySavings     int64         `json:"monthly_savings"`
	LifetimeYears      int           `json:"lifetime_years"`
	LifetimeNetBenefit int64         `json:"lifetime_net_benefit"`
	PaybackYears       *float64      `json:"payback_period_years"`
	PaybackStatus      PaybackStatus `json:"payback_status"`
}

// EnvironmentalProfile expresses annual generation as avoided emissions.
type EnvironmentalProfile struct {
	CO2ReductionTons float64 `json:"co2_reduction_tons"`
	TreeEquivalent   int     `json:"tree_equivalent"`
	OilSavingsLiters float64 `json:"oil_savings_liters"`
}

// Confidence aggregates the recoverable degradations absorbed by a result.
type Confidence struct {
	Score      float64          `json:"score"`
	Flags      []ConfidenceFlag `json:"flags"`
	Candidates []Candidate      `json:"candidates,omitempty"`
}

// HasFlag reports whether f was raised.
func (c Confidence) HasFlag(f ConfidenceFlag) bool {
	for _, v := range c.Flags {
		if v == f {
			return true
		}
	}
	return false
}

// AnalysisResult is the assembled, immutable outcome of a completed request.
// It is shared by reference between every request record with the same
// fingerprint and must never be mutated after assembly. RequestID names the
// request that computed it.
type AnalysisResult struct {
	RequestID    string               `json:"request_id"`
	Fingerprint  string               `json:"fingerprint"`
	BuildingType BuildingType         `json:"building_type"`
	Location     Location             `json:"location"`
	Roof         RoofProfile          `json:"roof_analysis"`
	Yield        YieldEstimate        `json:"solar_prediction"`
	Economics    EconomicProfile      `json:"economic_analysis"`
	Environment  EnvironmentalProfile `json:"environmental_impact"`
	Confidence   Confidence           `json:"confidence"`
	GeneratedAt  time.Time            `json:"generated_at"`
}

// Failure is the classified reason a request ended in the failed state.
type Failure struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Class   FailureClass `json:"-"`
}

// AnalysisRequest is a point-in-time snapshot of a request record.
type AnalysisRequest struct {
	ID           string          `json:"request_id"`
	Fingerprint  string          `json:"-"`
	BuildingType BuildingType    `json:"building_type"`
	Address      string          `json:"address"`
	Email        string          `json:"-"`
	Recipients   []string        `json:"-"`
	Status       AnalysisStatus  `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ExpiresAt    *time.Time      `json:"-"`
	Result       *AnalysisResult `json:"result,omitempty"`
	Failure      *Failure        `json:"error,omitempty"`
}
