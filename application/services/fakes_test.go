package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"asset-index-sync/application/ports"
	"asset-index-sync/domain/bulk"
	"asset-index-sync/domain/changes"
	"asset-index-sync/pkg/observability"
	"asset-index-sync/pkg/resilience"
)

// scriptedBulkClient records every bulk call and answers through respond.
type scriptedBulkClient struct {
	mu      sync.Mutex
	calls   [][]bulk.Action
	respond func(call int, actions []bulk.Action) ([]bulk.ItemResult, error)
}

func (c *scriptedBulkClient) Bulk(_ context.Context, actions []bulk.Action) ([]bulk.ItemResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, actions)
	call := len(c.calls)
	c.mu.Unlock()

	if c.respond == nil {
		return okResults(actions), nil
	}
	return c.respond(call, actions)
}

func (c *scriptedBulkClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func okResults(actions []bulk.Action) []bulk.ItemResult {
	results := make([]bulk.ItemResult, len(actions))
	for i, a := range actions {
		status := http.StatusOK
		if a.Operation == bulk.OpIndex {
			status = http.StatusCreated
		}
		results[i] = bulk.ItemResult{Operation: a.Operation, DocumentID: a.DocumentID, Status: status}
	}
	return results
}

func resultsWithStatus(actions []bulk.Action, status map[string]int) []bulk.ItemResult {
	results := okResults(actions)
	for i := range results {
		if s, ok := status[results[i].DocumentID]; ok {
			results[i].Status = s
			if s >= 300 {
				results[i].ErrorType = "test_exception"
				results[i].ErrorReason = fmt.Sprintf("status %d", s)
			}
		}
	}
	return results
}

// recordingQueue captures dead-letter messages.
type recordingQueue struct {
	mu       sync.Mutex
	messages []ports.DeadLetterMessage
	err      error
}

func (q *recordingQueue) Send(_ context.Context, msg ports.DeadLetterMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *recordingQueue) sent() []ports.DeadLetterMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]ports.DeadLetterMessage(nil), q.messages...)
}

// fakeMetrics keeps running totals across flushes.
type fakeMetrics struct {
	mu      sync.Mutex
	totals  map[string]float64
	flushes int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{totals: make(map[string]float64)}
}

func (m *fakeMetrics) Add(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[name] += value
}

func (m *fakeMetrics) Flush(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
}

func (m *fakeMetrics) total(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[name]
}

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) PublishBatchSummary(ctx context.Context, event ports.BatchSummaryEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// panickingExecutor simulates a bug deep in the pipeline.
type panickingExecutor struct{}

func (panickingExecutor) Execute(context.Context, []bulk.Action) (bulk.ChunkResult, error) {
	panic("index client exploded")
}

type testPipeline struct {
	client    *scriptedBulkClient
	queue     *recordingQueue
	metrics   *fakeMetrics
	breaker   *resilience.CircuitBreaker
	sleeps    []time.Duration
	executor  ports.ChunkExecutor
	router    *DeadLetterRouter
	handler   *StreamHandler
	publisher ports.EventPublisher
}

type pipelineOptions struct {
	maxRetries int
	maxCount   int
	publisher  ports.EventPublisher
	executor   ports.ChunkExecutor
}

func newTestPipeline(client *scriptedBulkClient, opts pipelineOptions) *testPipeline {
	logger := zap.NewNop()
	p := &testPipeline{
		client:    client,
		queue:     &recordingQueue{},
		metrics:   newFakeMetrics(),
		publisher: opts.publisher,
	}
	p.breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig(), logger)

	retryConfig := resilience.DefaultRetryConfig()
	if opts.maxRetries > 0 {
		retryConfig.MaxRetries = opts.maxRetries
	}
	retrier := resilience.NewRetrier(retryConfig, p.breaker, logger,
		resilience.WithSleep(func(_ context.Context, d time.Duration) error {
			p.sleeps = append(p.sleeps, d)
			return nil
		}),
	)

	p.executor = opts.executor
	if p.executor == nil {
		p.executor = NewRetryingExecutor(NewBulkExecutor(client, p.metrics, logger), retrier)
	}
	p.router = NewDeadLetterRouter(p.queue, p.metrics, logger)
	p.handler = NewStreamHandler(
		StreamHandlerConfig{MaxBulkCount: opts.maxCount, MaxBulkBytes: bulk.DefaultMaxBytes, Source: "test"},
		changes.NewNormalizer("InventoryID"),
		p.executor,
		p.router,
		p.metrics,
		opts.publisher,
		observability.NewTracer("test"),
		logger,
	)
	return p
}

func imageJSON(id string, extra ...string) string {
	attrs := []string{fmt.Sprintf(`"InventoryID":{"S":%q}`, id), `"Title":{"S":"asset"}`}
	attrs = append(attrs, extra...)
	return "{" + strings.Join(attrs, ",") + "}"
}

func streamRecord(eventName, id string, extra ...string) string {
	image := "NewImage"
	if eventName == "REMOVE" {
		image = "OldImage"
	}
	return fmt.Sprintf(`{"eventID":"evt-%s","eventName":%q,"dynamodb":{"Keys":{"InventoryID":{"S":%q}},%q:%s}}`,
		id, eventName, id, image, imageJSON(id, extra...))
}

func streamEvent(records ...string) json.RawMessage {
	return json.RawMessage(`{"Records":[` + strings.Join(records, ",") + `]}`)
}
