package analysis

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"solarscan/internal/types"
)

// LogNotifier writes completion events to the log. It stands in for the SQS
// publisher when no queue is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// NotifyCompletion implements Notifier.
func (n LogNotifier) NotifyCompletion(ctx context.Context, ev CompletionEvent) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "completion notification",
		"event_id", ev.EventID,
		"request_id", ev.RequestID,
		"status", string(ev.Status),
		"failure_code", string(ev.FailureCode),
	)
	return nil
}

// newCompletionEvent builds the event sent to email for a terminal snapshot.
func newCompletionEvent(req types.AnalysisRequest, email string) CompletionEvent {
	ev := CompletionEvent{
		EventID:   uuid.NewString(),
		Type:      EventAnalysisCompleted,
		RequestID: req.ID,
		Email:     email,
		Address:   req.Address,
		Status:    req.Status,
	}
	if req.CompletedAt != nil {
		ev.OccurredAt = *req.CompletedAt
	}
	if res := req.Result; res != nil {
		kwh := res.Yield.AnnualKWh
		savings := res.Economics.AnnualSavings
		ev.AnnualKWh = &kwh
		ev.AnnualSavings = &savings
		ev.PaybackYears = res.Economics.PaybackYears
	}
	if req.Failure != nil {
		ev.FailureCode = req.Failure.Code
	}
	return ev
}
