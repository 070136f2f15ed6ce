package services

import (
	"context"

	"go.uber.org/zap"

	"asset-index-sync/application/ports"
	"asset-index-sync/domain/changes"
	"asset-index-sync/pkg/observability"
)

// Dead-letter message type labels.
const (
	MessageTypeInsert  = "Insert the Index"
	MessageTypeModify  = "Modify the Index"
	MessageTypeRemove  = "Delete the Index"
	MessageTypeUnknown = "Unknown Event"
)

// MessageTypeFor returns the dead-letter label for an event kind.
func MessageTypeFor(kind changes.EventKind) string {
	switch kind {
	case changes.EventInsert:
		return MessageTypeInsert
	case changes.EventModify:
		return MessageTypeModify
	case changes.EventRemove:
		return MessageTypeRemove
	default:
		return MessageTypeUnknown
	}
}

// DeadLetterRouter sends failure reports to the dead-letter queue, one
// message per record.
type DeadLetterRouter struct {
	queue   ports.DeadLetterQueue
	metrics ports.MetricsRecorder
	logger  *zap.Logger
}

// NewDeadLetterRouter creates a router. A nil queue only logs the reports.
func NewDeadLetterRouter(queue ports.DeadLetterQueue, metrics ports.MetricsRecorder, logger *zap.Logger) *DeadLetterRouter {
	return &DeadLetterRouter{
		queue:   queue,
		metrics: metrics,
		logger:  logger.Named("dead_letter_router"),
	}
}

// Send delivers every report and returns how many were accepted by the queue.
// Delivery failures are logged and never abort the batch.
func (r *DeadLetterRouter) Send(ctx context.Context, reports []changes.FailureReport) int {
	if len(reports) == 0 {
		return 0
	}
	// Dead-lettering must still happen when the invocation is being torn down.
	ctx = context.WithoutCancel(ctx)

	sent := 0
	for _, report := range reports {
		fields := []zap.Field{
			zap.String("event_name", string(report.EventKind)),
			zap.String("document_id", report.DocumentID),
			zap.String("reason", report.Reason),
		}

		if r.queue == nil {
			r.logger.Error("no dead-letter queue configured, dropping failed record", fields...)
			continue
		}

		body, err := report.Body()
		if err != nil {
			r.logger.Error("failed to serialize dead-letter body", append(fields, zap.Error(err))...)
			continue
		}

		reason := report.Reason
		if reason == "" {
			reason = "unknown failure"
		}
		eventName := string(report.EventKind)
		if eventName == "" {
			eventName = "UNKNOWN"
		}

		msg := ports.DeadLetterMessage{
			Body:          string(body),
			MessageType:   MessageTypeFor(report.EventKind),
			FailureReason: reason,
			EventName:     eventName,
		}
		if err := r.queue.Send(ctx, msg); err != nil {
			r.logger.Error("failed to send record to dead-letter queue", append(fields, zap.Error(err))...)
			continue
		}

		sent++
		r.logger.Info("record sent to dead-letter queue", fields...)
	}

	r.metrics.Add(observability.MetricDLQMessagesSent, float64(sent))
	return sent
}
