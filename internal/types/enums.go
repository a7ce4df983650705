package types

// BuildingType classifies the structure being analysed. It selects roof
// fallback defaults, capacity ceilings, and rate tables.
type BuildingType string

const (
	BuildingHouse     BuildingType = "house"
	BuildingApartment BuildingType = "apartment"
)

// BuildingTypes lists all supported building types.
var BuildingTypes = []BuildingType{BuildingHouse, BuildingApartment}

// IsValid reports whether b is a supported building type.
func (b BuildingType) IsValid() bool {
	for _, t := range BuildingTypes {
		if t == b {
			return true
		}
	}
	return false
}

// AnalysisStatus is the lifecycle state of an analysis request.
// pending -> processing -> {completed, failed}. Terminal states are final.
type AnalysisStatus string

const (
	StatusPending    AnalysisStatus = "pending"
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s AnalysisStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Orientation is the compass sector a roof face points toward.
type Orientation string

const (
	OrientationN       Orientation = "N"
	OrientationNE      Orientation = "NE"
	OrientationE       Orientation = "E"
	OrientationSE      Orientation = "SE"
	OrientationS       Orientation = "S"
	OrientationSW      Orientation = "SW"
	OrientationW       Orientation = "W"
	OrientationNW      Orientation = "NW"
	OrientationUnknown Orientation = "unknown"
)

// CompassSectors lists the eight sectors clockwise from north. The index of a
// sector times 45 degrees is its centre bearing.
var CompassSectors = []Orientation{
	OrientationN, OrientationNE, OrientationE, OrientationSE,
	OrientationS, OrientationSW, OrientationW, OrientationNW,
}

// RoofSource records which estimation path produced a roof profile.
type RoofSource string

const (
	RoofSourceImagery  RoofSource = "imagery"
	RoofSourceFallback RoofSource = "fallback"
)

// ConfidenceFlag marks a recoverable degradation that was absorbed while
// producing a result.
type ConfidenceFlag string

const (
	FlagAmbiguousAddress ConfidenceFlag = "ambiguous_address"
	FlagRoofFallback     ConfidenceFlag = "roof_fallback"
	FlagStaleClimate     ConfidenceFlag = "stale_climate_data"
)

// PaybackStatus reports whether the net installation cost is ever recovered.
type PaybackStatus string

const (
	PaybackRecoverable    PaybackStatus = "recoverable"
	PaybackNotRecoverable PaybackStatus = "not_recoverable"
)

// FailureClass separates user-facing pipeline failures from internal faults so
// the two can be monitored independently.
type FailureClass string

const (
	FailurePipeline FailureClass = "pipeline"
	FailureInternal FailureClass = "internal"
)

// HeatmapMetric selects the value plotted per sub-region.
type HeatmapMetric string

const (
	HeatmapSolarRadiation   HeatmapMetric = "solar_radiation"
	HeatmapAnnualGeneration HeatmapMetric = "annual_generation"
	HeatmapCostSavings      HeatmapMetric = "cost_savings"
	HeatmapROI              HeatmapMetric = "roi"
	HeatmapPayback          HeatmapMetric = "payback"
)

// HeatmapMetrics lists all supported heatmap metrics.
var HeatmapMetrics = []HeatmapMetric{
	HeatmapSolarRadiation, HeatmapAnnualGeneration, HeatmapCostSavings, HeatmapROI, HeatmapPayback,
}

// IsValid reports whether m is a supported heatmap metric.
func (m HeatmapMetric) IsValid() bool {
	for _, v := range HeatmapMetrics {
		if v == m {
			return true
		}
	}
	return false
}
