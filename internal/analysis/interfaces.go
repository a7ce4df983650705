package analysis

import (
	"context"
	"time"

	"solarscan/internal/types"
)

// Stage dependencies. The concrete implementations live in the geocode, roof,
// climate and yield packages; tests substitute counting fakes.

type Geocoder interface {
	Resolve(ctx context.Context, address string) (types.Location, error)
}

type RoofEstimator interface {
	Estimate(ctx context.Context, loc types.Location, bt types.BuildingType) (types.RoofProfile, error)
}

type ClimateResolver interface {
	Resolve(ctx context.Context, loc types.Location) (*types.ClimateSeries, error)
	SubRegions(ctx context.Context, prefix string) ([]types.ClimateSeries, error)
}

type YieldPredictor interface {
	Predict(roof types.RoofProfile, cs *types.ClimateSeries, bt types.BuildingType) (types.YieldEstimate, error)
}

// Archive persists terminal snapshots so results survive a restart. Get
// returns nil, nil for an unknown id. FindCompleted returns the newest
// unexpired completed snapshot for a fingerprint, or nil, nil.
type Archive interface {
	Save(ctx context.Context, req types.AnalysisRequest) error
	Get(ctx context.Context, id string) (*types.AnalysisRequest, error)
	FindCompleted(ctx context.Context, fingerprint string, now time.Time) (*types.AnalysisRequest, error)
}

// CompletionEvent is published when a request that carried an email reaches a
// terminal state.
type CompletionEvent struct {
	EventID       string               `json:"event_id"`
	Type          string               `json:"type"`
	RequestID     string               `json:"request_id"`
	Email         string               `json:"email"`
	Address       string               `json:"address"`
	Status        types.AnalysisStatus `json:"status"`
	AnnualKWh     *float64             `json:"annual_kwh,omitempty"`
	AnnualSavings *int64               `json:"annual_savings,omitempty"`
	PaybackYears  *float64             `json:"payback_period_years,omitempty"`
	FailureCode   types.ErrorCode      `json:"failure_code,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// EventAnalysisCompleted is the CompletionEvent type.
const EventAnalysisCompleted = "analysis.completed"

// Notifier delivers completion events.
type Notifier interface {
	NotifyCompletion(ctx context.Context, ev CompletionEvent) error
}

// Metrics receives pipeline telemetry.
type Metrics interface {
	RecordOutcome(ctx context.Context, status types.AnalysisStatus, code types.ErrorCode, elapsed time.Duration)
	RecordStage(ctx context.Context, stage string, elapsed time.Duration)
	RecordInternalFault(ctx context.Context, code types.ErrorCode)
	RecordCacheHit(ctx context.Context)
	RecordRetry(ctx context.Context, provider string)
	RecordQueueRejected(ctx context.Context)
}

// NoopMetrics discards all telemetry.
type NoopMetrics struct{}

func (NoopMetrics) RecordOutcome(context.Context, types.AnalysisStatus, types.ErrorCode, time.Duration) {}
func (NoopMetrics) RecordStage(context.Context, string, time.Duration)                                  {}
func (NoopMetrics) RecordInternalFault(context.Context, types.ErrorCode)                                {}
func (NoopMetrics) RecordCacheHit(context.Context)                                                      {}
func (NoopMetrics) RecordRetry(context.Context, string)                                                 {}
func (NoopMetrics) RecordQueueRejected(context.Context)                                                 {}
