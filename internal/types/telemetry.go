package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAPILatency       = "APILatency"
	MetricAPIRequestCount  = "APIRequestCount"
	MetricAnalysisOutcome  = "AnalysisOutcome"
	MetricAnalysisDuration = "AnalysisDuration"
	MetricStageDuration    = "StageDuration"
	MetricInternalFault    = "InternalFault"
	MetricCacheHit         = "ResultCacheHit"
	MetricExternalAPIRetry = "ExternalAPIRetry"
	MetricQueueRejected    = "QueueRejected"

	// Dimension Keys
	DimEndpoint = "Endpoint"
	DimMethod   = "Method"
	DimStatus   = "Status"
	DimStage    = "Stage"
	DimCode     = "Code"
	DimOutcome  = "Outcome"
	DimProvider = "Provider"

	// Metric Namespace
	MetricNamespace = "SolarScan"
)
