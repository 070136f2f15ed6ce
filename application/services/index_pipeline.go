package services

import (
	"context"

	"go.uber.org/zap"

	"asset-index-sync/application/ports"
	"asset-index-sync/domain/bulk"
	"asset-index-sync/domain/changes"
)

// indexPipeline chunks actions, runs every chunk through the executor in
// order and dead-letters whatever did not make it into the index.
type indexPipeline struct {
	maxCount    int
	maxBytes    int
	executor    ports.ChunkExecutor
	deadLetters *DeadLetterRouter
}

// apply returns how many actions succeeded and how many were dead-lettered.
// A chunk that exhausts its retries is dead-lettered as a whole and the next
// chunk is still attempted.
func (p indexPipeline) apply(ctx context.Context, logger *zap.Logger, actions []bulk.Action) (success, failed int) {
	chunks := bulk.Chunk(actions, p.maxCount, p.maxBytes)
	logger.Info("submitting bulk chunks",
		zap.Int("actions", len(actions)),
		zap.Int("chunks", len(chunks)),
	)

	for i, chunk := range chunks {
		result, err := p.executor.Execute(ctx, chunk)
		if err != nil {
			logger.Error("bulk chunk failed after retries, dead-lettering chunk",
				zap.Int("chunk", i),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			reports := make([]changes.FailureReport, 0, len(chunk))
			for _, action := range chunk {
				reports = append(reports, changes.ReportForAction(action, err.Error()))
			}
			p.deadLetters.Send(ctx, reports)
			failed += len(chunk)
			continue
		}

		success += result.Succeeded
		if len(result.Failed) > 0 {
			reports := make([]changes.FailureReport, 0, len(result.Failed))
			for _, item := range result.Failed {
				reports = append(reports, changes.ReportForAction(item.Action, item.Result.Reason()))
			}
			p.deadLetters.Send(ctx, reports)
			failed += len(result.Failed)
		}
	}
	return success, failed
}
