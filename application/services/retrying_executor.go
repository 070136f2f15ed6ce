package services

import (
	"context"

	"asset-index-sync/application/ports"
	"asset-index-sync/domain/bulk"
	"asset-index-sync/pkg/resilience"
)

// RetryingExecutor runs another ChunkExecutor under the retry policy and the
// shared circuit breaker.
type RetryingExecutor struct {
	inner   ports.ChunkExecutor
	retrier *resilience.Retrier
}

// NewRetryingExecutor wraps inner.
func NewRetryingExecutor(inner ports.ChunkExecutor, retrier *resilience.Retrier) *RetryingExecutor {
	return &RetryingExecutor{inner: inner, retrier: retrier}
}

// Execute returns the result of the first successful attempt, or an error
// wrapping the last failure once the retry budget is spent.
func (e *RetryingExecutor) Execute(ctx context.Context, chunk []bulk.Action) (bulk.ChunkResult, error) {
	var result bulk.ChunkResult
	err := e.retrier.Do(ctx, "bulk_chunk", func(ctx context.Context) error {
		r, err := e.inner.Execute(ctx, chunk)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return bulk.ChunkResult{}, err
	}
	return result, nil
}
