package analysis

import (
	"context"
	"math/rand"
	"time"

	"solarscan/internal/types"
)

// RetryConfig bounds the retries of transient provider failures.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// AttemptTimeout caps a single call. Zero leaves only the request budget.
	AttemptTimeout time.Duration
}

// DefaultRetryConfig returns three attempts starting at 200ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:       3,
		BaseDelay:      200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	d := c.BaseDelay << (attempt - 1)
	if c.MaxDelay > 0 && (d > c.MaxDelay || d <= 0) {
		d = c.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	// Equal jitter keeps at least half of the exponential step.
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half+1)))
}

// withRetry runs fn until it succeeds, fails with a non-transient error, or the
// attempts run out. Exhaustion is reported as provider_exhausted wrapping the
// last error. Non-transient errors are returned unchanged together with the
// value fn produced, which lets recoverable errors carry a usable result.
func withRetry[T any](ctx context.Context, cfg RetryConfig, provider string, onRetry func(attempt int, err error), fn func(context.Context) (T, error)) (T, error) {
	attempts := max(cfg.Attempts, 1)
	var zero T
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		}
		v, err := fn(attemptCtx)
		cancel()

		if err == nil || !types.IsTransient(ctx, err) {
			return v, err
		}
		if attempt >= attempts {
			return zero, types.NewAppErrorWithDetails(types.ErrCodeProviderExhausted,
				provider+" unavailable after retries", err,
				map[string]any{"provider": provider, "attempts": attempts, "last_code": string(types.CodeOf(err))})
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(cfg.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
