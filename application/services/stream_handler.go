package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"asset-index-sync/application/ports"
	"asset-index-sync/domain/bulk"
	"asset-index-sync/domain/changes"
	"asset-index-sync/pkg/observability"
)

// Summary is the invocation result returned to the Lambda runtime.
type Summary struct {
	StatusCode   int    `json:"status_code"`
	BatchID      string `json:"batch_id,omitempty"`
	TotalRecords int    `json:"total_records"`
	Success      int    `json:"success"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	Message      string `json:"message,omitempty"`
}

// StreamHandlerConfig bounds bulk requests.
type StreamHandlerConfig struct {
	MaxBulkCount int
	MaxBulkBytes int
	// Source names the producer in published batch events.
	Source string
}

// StreamHandler processes one stream batch end to end: normalize, chunk,
// execute with retries, dead-letter whatever failed.
type StreamHandler struct {
	config      StreamHandlerConfig
	normalizer  *changes.Normalizer
	pipeline    indexPipeline
	deadLetters *DeadLetterRouter
	metrics     ports.MetricsRecorder
	publisher   ports.EventPublisher
	tracer      *observability.Tracer
	logger      *zap.Logger
}

// NewStreamHandler creates a stream handler. publisher may be nil.
func NewStreamHandler(
	config StreamHandlerConfig,
	normalizer *changes.Normalizer,
	executor ports.ChunkExecutor,
	deadLetters *DeadLetterRouter,
	metrics ports.MetricsRecorder,
	publisher ports.EventPublisher,
	tracer *observability.Tracer,
	logger *zap.Logger,
) *StreamHandler {
	return &StreamHandler{
		config:      config,
		normalizer:  normalizer,
		pipeline: indexPipeline{
			maxCount:    config.MaxBulkCount,
			maxBytes:    config.MaxBulkBytes,
			executor:    executor,
			deadLetters: deadLetters,
		},
		deadLetters: deadLetters,
		metrics:     metrics,
		publisher:   publisher,
		tracer:      tracer,
		logger:      logger.Named("stream_handler"),
	}
}

// Handle processes a raw stream event. Partial failures still produce a 200
// summary. An error is returned only when the batch as a whole could not be
// processed; the raw batch is dead-lettered first so the redelivery that
// follows is not the only copy.
func (h *StreamHandler) Handle(ctx context.Context, payload json.RawMessage) (summary Summary, err error) {
	batchID := uuid.NewString()
	logger := h.logger.With(zap.String("batch_id", batchID))

	ctx, span := h.tracer.Start(ctx, "HandleStreamBatch", attribute.String("batch_id", batchID))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while processing batch: %v", rec)
			summary = h.failBatch(ctx, logger, batchID, payload, err)
		}
		if err != nil {
			h.tracer.RecordError(ctx, err)
		}
		h.metrics.Flush(ctx)
	}()

	summary, err = h.process(ctx, logger, batchID, payload)
	if err != nil {
		summary = h.failBatch(ctx, logger, batchID, payload, err)
		return summary, err
	}

	span.SetAttributes(
		attribute.Int("records.total", summary.TotalRecords),
		attribute.Int("records.success", summary.Success),
		attribute.Int("records.failed", summary.Failed),
		attribute.Int("records.skipped", summary.Skipped),
	)
	return summary, nil
}

func (h *StreamHandler) process(ctx context.Context, logger *zap.Logger, batchID string, payload json.RawMessage) (Summary, error) {
	rawRecords, err := changes.DecodeBatch(payload)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		StatusCode:   http.StatusOK,
		BatchID:      batchID,
		TotalRecords: len(rawRecords),
	}
	logger.Info("processing stream batch", zap.Int("records", len(rawRecords)))

	actions, conversionFailures, skipped := h.normalize(logger, rawRecords)
	summary.Skipped = skipped
	summary.Failed += len(conversionFailures)
	h.deadLetters.Send(ctx, conversionFailures)

	if len(actions) == 0 {
		summary.Message = "no actions to process"
		h.finish(ctx, logger, summary)
		return summary, nil
	}

	success, failed := h.pipeline.apply(ctx, logger, actions)
	summary.Success += success
	summary.Failed += failed

	summary.Message = fmt.Sprintf("processed %d records: %d succeeded, %d failed, %d skipped",
		summary.TotalRecords, summary.Success, summary.Failed, summary.Skipped)
	h.finish(ctx, logger, summary)
	return summary, nil
}

// normalize decodes and normalizes each record independently.
func (h *StreamHandler) normalize(logger *zap.Logger, rawRecords []json.RawMessage) ([]bulk.Action, []changes.FailureReport, int) {
	var (
		actions  []bulk.Action
		failures []changes.FailureReport
		skipped  int
	)
	for i, raw := range rawRecords {
		record, err := changes.DecodeRecord(raw)
		var action bulk.Action
		if err == nil {
			action, err = h.normalizer.Normalize(record)
		}

		switch {
		case err == nil:
			actions = append(actions, action)
		case errors.Is(err, changes.ErrMalformedRecord):
			skipped++
			logger.Warn("skipping malformed record",
				zap.Int("index", i),
				zap.String("event_id", record.EventID),
				zap.String("event_name", string(record.EventKind)),
				zap.Error(err),
			)
		default:
			failures = append(failures, changes.ReportForRecord(record, err.Error()))
			logger.Error("failed to convert record",
				zap.Int("index", i),
				zap.String("event_id", record.EventID),
				zap.String("event_name", string(record.EventKind)),
				zap.Error(err),
			)
		}
	}
	return actions, failures, skipped
}

func (h *StreamHandler) finish(ctx context.Context, logger *zap.Logger, summary Summary) {
	h.metrics.Add(observability.MetricRecordsProcessedSuccess, float64(summary.Success))
	h.metrics.Add(observability.MetricRecordsProcessedFailed, float64(summary.Failed))

	logger.Info("stream batch processed",
		zap.Int("total", summary.TotalRecords),
		zap.Int("success", summary.Success),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)

	if summary.Failed > 0 {
		h.publish(ctx, logger, summary)
	}
}

// failBatch dead-letters the whole batch after an unrecoverable error. Each
// record is sent on its own when the envelope still decodes; otherwise the
// payload goes out as a single message.
func (h *StreamHandler) failBatch(ctx context.Context, logger *zap.Logger, batchID string, payload json.RawMessage, cause error) Summary {
	logger.Error("stream batch failed", zap.Error(cause))

	var reports []changes.FailureReport
	if rawRecords, err := changes.DecodeBatch(payload); err == nil && len(rawRecords) > 0 {
		for _, raw := range rawRecords {
			record, _ := changes.DecodeRecord(raw)
			record.Raw = raw
			reports = append(reports, changes.ReportForRecord(record, cause.Error()))
		}
	} else {
		reports = append(reports, changes.FailureReport{Raw: payload, Reason: cause.Error()})
	}
	h.deadLetters.Send(ctx, reports)

	summary := Summary{
		StatusCode:   http.StatusInternalServerError,
		BatchID:      batchID,
		TotalRecords: len(reports),
		Failed:       len(reports),
		Message:      cause.Error(),
	}
	h.metrics.Add(observability.MetricRecordsProcessedFailed, float64(summary.Failed))
	h.publish(ctx, logger, summary)
	return summary
}

func (h *StreamHandler) publish(ctx context.Context, logger *zap.Logger, summary Summary) {
	if h.publisher == nil {
		return
	}
	event := ports.BatchSummaryEvent{
		BatchID:      summary.BatchID,
		Source:       h.config.Source,
		TotalRecords: summary.TotalRecords,
		Success:      summary.Success,
		Failed:       summary.Failed,
		Skipped:      summary.Skipped,
		StatusCode:   summary.StatusCode,
		ProcessedAt:  time.Now().UTC(),
	}
	if err := h.publisher.PublishBatchSummary(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("failed to publish batch summary", zap.Error(err))
	}
}
