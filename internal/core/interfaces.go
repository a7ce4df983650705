package core

import (
	"context"
	"time"
)

// MetricsCollector records API telemetry. Implementations publish request
// latency and count to CloudWatch or an equivalent backend.
type MetricsCollector interface {
	// RecordRequest records one request. endpoint is the matched route
	// pattern so that dimension cardinality stays bounded.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RateLimitStore abstracts the backing store for rate limiting.
type RateLimitStore interface {
	// IncrementAndCheck atomically increments the counter for key and reports
	// whether the limit has been exceeded within the current window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}
