// Package sqs delivers dead-letter messages to an Amazon SQS queue.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"asset-index-sync/application/ports"
	pkgerrors "asset-index-sync/pkg/errors"
)

const (
	attrMessageType   = "MessageType"
	attrFailureReason = "FailureReason"
	attrEventName     = "EventName"

	// maxReasonLength keeps one attribute from eating the 256 KiB message budget.
	maxReasonLength = 1024
)

// SQSAPI is the subset of the SQS client used by the queue.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
}

// BreakerConfig guards the queue against a dead endpoint so a degraded batch
// does not wait on every send.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the queue guard defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      5,
	}
}

// DeadLetterQueue implements ports.DeadLetterQueue.
type DeadLetterQueue struct {
	client   SQSAPI
	queueURL string
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewDeadLetterQueue creates a queue sender for queueURL.
func NewDeadLetterQueue(client SQSAPI, queueURL string, config BreakerConfig, logger *zap.Logger) *DeadLetterQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("dlq")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dead-letter-queue",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("queue breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Rejections of a single message say nothing about queue health.
		IsSuccessful: func(err error) bool {
			return err == nil || !pkgerrors.IsRetryable(err)
		},
	})

	return &DeadLetterQueue{
		client:   client,
		queueURL: queueURL,
		breaker:  breaker,
		logger:   logger,
	}
}

// Send delivers one message.
func (q *DeadLetterQueue) Send(ctx context.Context, msg ports.DeadLetterMessage) error {
	input := &awssqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(msg.Body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			attrMessageType:   stringAttribute(msg.MessageType),
			attrFailureReason: stringAttribute(truncate(msg.FailureReason, maxReasonLength)),
			attrEventName:     stringAttribute(msg.EventName),
		},
	}

	out, err := q.breaker.Execute(func() (interface{}, error) {
		out, err := q.client.SendMessage(ctx, input)
		if err != nil {
			return nil, pkgerrors.FromAWSError("sqs", err)
		}
		return out, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return pkgerrors.NewUnavailableError("dead-letter queue").WithCause(err)
		}
		return fmt.Errorf("send dead-letter message: %w", err)
	}

	if res, ok := out.(*awssqs.SendMessageOutput); ok && res != nil {
		q.logger.Debug("dead-letter message sent",
			zap.String("message_id", aws.ToString(res.MessageId)),
			zap.String("event_name", msg.EventName),
		)
	}
	return nil
}

// State exposes the queue guard state for health reporting.
func (q *DeadLetterQueue) State() string {
	return q.breaker.State().String()
}

func stringAttribute(value string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(value),
	}
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
