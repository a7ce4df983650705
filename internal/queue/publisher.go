// Package queue publishes analysis completion events to SQS for the
// notification worker that emails result links.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"solarscan/internal/analysis"
	"solarscan/internal/config"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// CompletionPublisher implements analysis.Notifier on an SQS queue. The event
// type and status travel as message attributes so subscribers can filter
// without decoding the body.
type CompletionPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewCompletionPublisher creates a publisher for awsCfg.AnalysisEventsQueue.
func NewCompletionPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *CompletionPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionPublisher{
		client:   client,
		queueURL: awsCfg.AnalysisEventsQueue,
		logger:   logger,
	}
}

// NotifyCompletion serializes ev and sends it. The event id doubles as the
// deduplication key for FIFO queues.
func (p *CompletionPublisher) NotifyCompletion(ctx context.Context, ev analysis.CompletionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal completion event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.Type),
			},
			"status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(ev.Status)),
			},
		},
	}
	if isFIFO(p.queueURL) {
		input.MessageGroupId = aws.String(ev.RequestID)
		input.MessageDeduplicationId = aws.String(ev.EventID)
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send completion event to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "completion event sent",
		"queue_url", p.queueURL,
		"event_id", ev.EventID,
		"request_id", ev.RequestID,
		"status", string(ev.Status),
	)
	return nil
}

func isFIFO(url string) bool {
	const suffix = ".fifo"
	return len(url) > len(suffix) && url[len(url)-len(suffix):] == suffix
}

var _ analysis.Notifier = (*CompletionPublisher)(nil)
