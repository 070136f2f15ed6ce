package observability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metric names published to CloudWatch.
const (
	MetricRecordsProcessedSuccess = "RecordsProcessedSuccess"
	MetricRecordsProcessedFailed  = "RecordsProcessedFailed"
	MetricDLQMessagesSent         = "DLQMessagesSent"
	MetricBulkOperationSuccess    = "BulkOperationSuccess"
	MetricBulkOperationFailed     = "BulkOperationFailed"
)

// CloudWatchAPI is the subset of the CloudWatch client used for metrics.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics accumulates counters during an invocation and publishes them to
// CloudWatch in one call on Flush. Every increment is mirrored to the
// Prometheus collector immediately.
type Metrics struct {
	namespace string
	client    CloudWatchAPI
	collector *Collector
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[string]float64
}

// NewMetrics creates a new metrics instance. A nil client disables CloudWatch
// publishing; a nil collector disables Prometheus mirroring.
func NewMetrics(namespace string, client CloudWatchAPI, collector *Collector, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{
		namespace: namespace,
		client:    client,
		collector: collector,
		logger:    logger,
		pending:   make(map[string]float64),
	}
}

// Add increments the named counter.
func (m *Metrics) Add(name string, value float64) {
	if value == 0 {
		return
	}
	if m.collector != nil {
		m.collector.IncrementCounterBy(name, value)
	}

	m.mu.Lock()
	m.pending[name] += value
	m.mu.Unlock()
}

// Pending returns a copy of the counters not yet flushed.
func (m *Metrics) Pending() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.pending))
	for k, v := range m.pending {
		out[k] = v
	}
	return out
}

// Flush publishes the accumulated counters. Failures are logged, never
// returned, so metrics can't fail a batch.
func (m *Metrics) Flush(ctx context.Context) {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[string]float64)
	m.mu.Unlock()

	if m.client == nil || len(pending) == 0 {
		return // Skip if no client configured
	}

	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now()
	metricData := make([]types.MetricDatum, 0, len(names))
	for _, name := range names {
		metricData = append(metricData, types.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(pending[name]),
			Unit:       types.StandardUnitCount,
			Timestamp:  aws.Time(now),
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: metricData,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("failed to publish metrics",
			zap.String("namespace", m.namespace),
			zap.Int("metric_count", len(metricData)),
			zap.Error(err),
		)
	}
}
