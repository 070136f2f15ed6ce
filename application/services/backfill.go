package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"asset-index-sync/application/ports"
	"asset-index-sync/domain/bulk"
	"asset-index-sync/domain/changes"
	"asset-index-sync/pkg/observability"
)

// BackfillConfig tunes a full re-index.
type BackfillConfig struct {
	MaxBulkCount int
	MaxBulkBytes int
	// PagesPerSecond throttles the scan so a re-index does not starve the
	// live stream of index capacity. Zero means unthrottled.
	PagesPerSecond float64
}

// BackfillService re-indexes every item of the source table through the same
// chunk, retry and dead-letter pipeline as the stream handler.
type BackfillService struct {
	scanner    ports.SourceScanner
	normalizer *changes.Normalizer
	pipeline   indexPipeline
	metrics    ports.MetricsRecorder
	limiter    *rate.Limiter
	logger     *zap.Logger

	locker       ports.RunLocker
	lockResource string
	lease        time.Duration
}

// NewBackfillService creates a new backfill service
func NewBackfillService(
	config BackfillConfig,
	scanner ports.SourceScanner,
	normalizer *changes.Normalizer,
	executor ports.ChunkExecutor,
	deadLetters *DeadLetterRouter,
	metrics ports.MetricsRecorder,
	logger *zap.Logger,
) *BackfillService {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.PagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.PagesPerSecond), 1)
	}
	return &BackfillService{
		scanner:    scanner,
		normalizer: normalizer,
		pipeline: indexPipeline{
			maxCount:    config.MaxBulkCount,
			maxBytes:    config.MaxBulkBytes,
			executor:    executor,
			deadLetters: deadLetters,
		},
		metrics: metrics,
		limiter: limiter,
		logger:  logger.Named("backfill"),
	}
}

// SetRunLock makes Run hold a lock on resource for the duration of the scan,
// so two backfills into the same index cannot interleave.
func (s *BackfillService) SetRunLock(locker ports.RunLocker, resource string, lease time.Duration) {
	s.locker = locker
	s.lockResource = resource
	s.lease = lease
}

// Run scans the whole table. The summary covers every page processed before
// an error, if any.
func (s *BackfillService) Run(ctx context.Context) (Summary, error) {
	runID := uuid.NewString()
	logger := s.logger.With(zap.String("batch_id", runID))
	summary := Summary{StatusCode: http.StatusOK, BatchID: runID}

	if s.locker != nil {
		held, err := s.locker.Acquire(ctx, s.lockResource, runID, s.lease)
		if err != nil {
			summary.StatusCode = http.StatusConflict
			summary.Message = fmt.Sprintf("backfill lock on %s not acquired", s.lockResource)
			return summary, fmt.Errorf("acquire backfill lock: %w", err)
		}
		defer func() {
			if err := held.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release backfill lock", zap.Error(err))
			}
		}()
		logger.Info("backfill lock acquired",
			zap.String("resource", s.lockResource),
			zap.Time("expires_at", held.ExpiresAt()),
		)
	}
	defer s.metrics.Flush(ctx)

	page := 0
	err := s.scanner.Scan(ctx, func(ctx context.Context, scanned ports.ScanPage) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("backfill throttle: %w", err)
		}
		page++

		actions, failures, skipped := s.normalize(logger, scanned)
		summary.TotalRecords += len(scanned.Docs) + len(scanned.Failures)
		summary.Skipped += skipped
		summary.Failed += len(failures)
		s.pipeline.deadLetters.Send(ctx, failures)

		var success, failed int
		if len(actions) > 0 {
			success, failed = s.pipeline.apply(ctx, logger, actions)
		}
		summary.Success += success
		summary.Failed += failed

		s.metrics.Add(observability.MetricRecordsProcessedSuccess, float64(success))
		s.metrics.Add(observability.MetricRecordsProcessedFailed, float64(failed+len(failures)))
		logger.Info("backfill page processed",
			zap.Int("page", page),
			zap.Int("items", len(scanned.Docs)+len(scanned.Failures)),
			zap.Int("success", success),
			zap.Int("failed", failed+len(failures)),
		)
		return nil
	})

	summary.Message = fmt.Sprintf("backfilled %d items over %d pages: %d succeeded, %d failed, %d skipped",
		summary.TotalRecords, page, summary.Success, summary.Failed, summary.Skipped)
	if err != nil {
		summary.StatusCode = http.StatusInternalServerError
		logger.Error("backfill aborted", zap.Error(err), zap.Int("pages", page))
		return summary, fmt.Errorf("backfill aborted after %d pages: %w", page, err)
	}

	logger.Info("backfill complete", zap.String("summary", summary.Message))
	return summary, nil
}

func (s *BackfillService) normalize(logger *zap.Logger, scanned ports.ScanPage) ([]bulk.Action, []changes.FailureReport, int) {
	var (
		actions  []bulk.Action
		failures []changes.FailureReport
		skipped  int
	)
	for _, f := range scanned.Failures {
		failures = append(failures, changes.FailureReport{
			EventKind:  changes.EventInsert,
			DocumentID: f.DocumentID,
			Document:   f.Key,
			Reason:     f.Reason,
		})
	}
	for _, doc := range scanned.Docs {
		action, err := s.normalizer.NormalizeDocument(doc)
		switch {
		case err == nil:
			actions = append(actions, action)
		case errors.Is(err, changes.ErrMalformedRecord):
			skipped++
			logger.Warn("skipping item without identifier", zap.Error(err))
		default:
			failures = append(failures, changes.FailureReport{
				EventKind: changes.EventInsert,
				Document:  doc,
				Reason:    err.Error(),
			})
		}
	}
	return actions, failures, skipped
}
