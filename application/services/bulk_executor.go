package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"asset-index-sync/application/ports"
	"asset-index-sync/domain/bulk"
	pkgerrors "asset-index-sync/pkg/errors"
	"asset-index-sync/pkg/observability"
)

// BulkExecutor submits one chunk as one bulk request and classifies the
// per-item outcome.
type BulkExecutor struct {
	client  ports.BulkIndexClient
	metrics ports.MetricsRecorder
	logger  *zap.Logger
}

// NewBulkExecutor creates a new bulk executor
func NewBulkExecutor(client ports.BulkIndexClient, metrics ports.MetricsRecorder, logger *zap.Logger) *BulkExecutor {
	return &BulkExecutor{
		client:  client,
		metrics: metrics,
		logger:  logger.Named("bulk_executor"),
	}
}

// Execute applies chunk to the index.
//
// If any item was rejected with 429 the whole chunk is reported as a
// RATE_LIMIT error so the caller resubmits all of it, including items that
// already succeeded. Bulk operations are idempotent per document id, so this
// costs throughput only. Other item failures are terminal and returned in
// ChunkResult.Failed.
func (e *BulkExecutor) Execute(ctx context.Context, chunk []bulk.Action) (bulk.ChunkResult, error) {
	if len(chunk) == 0 {
		return bulk.ChunkResult{}, nil
	}

	results, err := e.client.Bulk(ctx, chunk)
	if err != nil {
		return bulk.ChunkResult{}, err
	}
	if len(results) != len(chunk) {
		return bulk.ChunkResult{}, pkgerrors.NewExternalError("search",
			fmt.Errorf("bulk response has %d items for %d actions", len(results), len(chunk)))
	}

	var (
		result      bulk.ChunkResult
		rateLimited int
	)
	for i, item := range results {
		switch {
		case item.Succeeded():
			result.Succeeded++
		case item.RateLimited():
			rateLimited++
		default:
			result.Failed = append(result.Failed, bulk.FailedItem{Action: chunk[i], Result: item})
		}
	}

	if rateLimited > 0 {
		e.logger.Warn("bulk request rate limited",
			zap.Int("rate_limited", rateLimited),
			zap.Int("chunk_size", len(chunk)),
		)
		return bulk.ChunkResult{}, pkgerrors.NewRateLimitError(
			fmt.Sprintf("%d of %d bulk items rejected with 429", rateLimited, len(chunk)),
		).WithDetails(map[string]interface{}{"rate_limited": rateLimited})
	}

	for _, failed := range result.Failed {
		e.logger.Error("bulk item failed",
			zap.String("operation", string(failed.Action.Operation)),
			zap.String("document_id", failed.Action.DocumentID),
			zap.Int("status", failed.Result.Status),
			zap.String("reason", failed.Result.Reason()),
		)
	}

	e.metrics.Add(observability.MetricBulkOperationSuccess, float64(result.Succeeded))
	e.metrics.Add(observability.MetricBulkOperationFailed, float64(len(result.Failed)))

	return result, nil
}
