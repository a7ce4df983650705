// Package telemetry publishes pipeline and API metrics to AWS CloudWatch.
//
// Metrics emitted:
//   - AnalysisOutcome: Dims {Outcome, Code}, on every terminal transition
//   - AnalysisDuration: Dims {Outcome}, submission to terminal state
//   - StageDuration: Dims {Stage}
//   - InternalFault: Dims {Code}, internal faults only
//   - ResultCacheHit, QueueRejected: no dims
//   - ExternalAPIRetry: Dims {Provider}
//   - APILatency, APIRequestCount: Dims {Method, Endpoint, Status}
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"solarscan/internal/analysis"
	"solarscan/internal/core"
	"solarscan/internal/types"
)

// putTimeout bounds a single PutMetricData call. Metrics are fire-and-forget
// and must never hold up a request.
const putTimeout = 2 * time.Second

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var (
	_ analysis.Metrics      = (*CloudWatchMetrics)(nil)
	_ core.MetricsCollector = (*CloudWatchMetrics)(nil)
)

// CloudWatchMetrics implements analysis.Metrics and core.MetricsCollector.
// Publishing errors are logged and swallowed.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a publisher for namespace, falling back to
// types.MetricNamespace when it is empty.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordOutcome emits the outcome count and the end-to-end duration.
func (m *CloudWatchMetrics) RecordOutcome(ctx context.Context, status types.AnalysisStatus, code types.ErrorCode, elapsed time.Duration) {
	outcome := dim(types.DimOutcome, string(status))
	if code == "" {
		code = "none"
	}
	m.put(ctx,
		count(types.MetricAnalysisOutcome, outcome, dim(types.DimCode, string(code))),
		millis(types.MetricAnalysisDuration, elapsed, outcome),
	)
}

func (m *CloudWatchMetrics) RecordStage(ctx context.Context, stage string, elapsed time.Duration) {
	m.put(ctx, millis(types.MetricStageDuration, elapsed, dim(types.DimStage, stage)))
}

func (m *CloudWatchMetrics) RecordInternalFault(ctx context.Context, code types.ErrorCode) {
	m.put(ctx, count(types.MetricInternalFault, dim(types.DimCode, string(code))))
}

func (m *CloudWatchMetrics) RecordCacheHit(ctx context.Context) {
	m.put(ctx, count(types.MetricCacheHit))
}

func (m *CloudWatchMetrics) RecordRetry(ctx context.Context, provider string) {
	m.put(ctx, count(types.MetricExternalAPIRetry, dim(types.DimProvider, provider)))
}

func (m *CloudWatchMetrics) RecordQueueRejected(ctx context.Context) {
	m.put(ctx, count(types.MetricQueueRejected))
}

// RecordRequest emits API latency and count. endpoint should be the route
// pattern, not the raw path, to keep dimension cardinality bounded.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dim(types.DimMethod, method),
		dim(types.DimEndpoint, endpoint),
		dim(types.DimStatus, status),
	}
	m.put(context.Background(),
		millis(types.MetricAPILatency, duration, dims...),
		count(types.MetricAPIRequestCount, dims...),
	)
}

// put sends data in one call. The caller's context may already be past its
// deadline when an analysis finishes, so only its values are kept.
func (m *CloudWatchMetrics) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), putTimeout)
	defer cancel()

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to publish metrics",
			"error", err.Error(),
			"metric", aws.ToString(data[0].MetricName),
			"count", len(data),
		)
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func count(name string, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}

func millis(name string, d time.Duration, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: dims,
	}
}
