package ports

import (
	"context"
	"time"

	"asset-index-sync/domain/bulk"
)

// BulkIndexClient sends one bulk request to the search index.
// This is a port in hexagonal architecture - the application doesn't know about the implementation
type BulkIndexClient interface {
	// Bulk submits actions as a single request and returns one result per
	// action, in request order. Item-level failures are not errors.
	Bulk(ctx context.Context, actions []bulk.Action) ([]bulk.ItemResult, error)
}

// ChunkExecutor applies one chunk of actions to the index.
type ChunkExecutor interface {
	Execute(ctx context.Context, chunk []bulk.Action) (bulk.ChunkResult, error)
}

// DeadLetterMessage is one message for the dead-letter queue.
type DeadLetterMessage struct {
	Body          string
	MessageType   string
	FailureReason string
	EventName     string
}

// DeadLetterQueue delivers dead-letter messages.
type DeadLetterQueue interface {
	Send(ctx context.Context, msg DeadLetterMessage) error
}

// MetricsRecorder accumulates counters for the current invocation.
type MetricsRecorder interface {
	// Add increments the named counter.
	Add(name string, value float64)

	// Flush publishes everything accumulated since the last flush.
	Flush(ctx context.Context)
}

// BatchSummaryEvent describes a processed stream batch.
type BatchSummaryEvent struct {
	BatchID      string    `json:"batch_id"`
	Source       string    `json:"source"`
	TotalRecords int       `json:"total_records"`
	Success      int       `json:"success"`
	Failed       int       `json:"failed"`
	Skipped      int       `json:"skipped"`
	StatusCode   int       `json:"status_code"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// EventPublisher announces batch outcomes to other systems.
type EventPublisher interface {
	PublishBatchSummary(ctx context.Context, event BatchSummaryEvent) error
}

// ScanPage is one page of the source table.
type ScanPage struct {
	Docs []map[string]any
	// Failures are items of the page that could not be decoded.
	Failures []ScanFailure
}

// ScanFailure describes a scanned item that could not be decoded.
type ScanFailure struct {
	DocumentID string
	// Key holds the identifier attribute when it alone could be decoded.
	Key    map[string]any
	Reason string
}

// SourceScanner pages through every item of the source table.
type SourceScanner interface {
	// Scan calls fn once per non-empty page. Returning an error from fn
	// stops the scan.
	Scan(ctx context.Context, fn func(ctx context.Context, page ScanPage) error) error
}

// Lease is a held run lock.
type Lease interface {
	Release(ctx context.Context) error
	ExpiresAt() time.Time
}

// RunLocker keeps two long-running jobs on the same resource from
// overlapping.
type RunLocker interface {
	Acquire(ctx context.Context, resource, owner string, lease time.Duration) (Lease, error)
}
