package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Indexing metrics
	RecordsProcessed *prometheus.CounterVec
	BulkOperations   *prometheus.CounterVec
	DLQMessages      prometheus.Counter
	CircuitState     prometheus.Gauge

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector with its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	recordsProcessed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Stream records processed, by outcome",
		},
		[]string{"outcome"},
	)

	bulkOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_operations_total",
			Help:      "Bulk item operations applied to the search index, by outcome",
		},
		[]string{"outcome"},
	)

	dlqMessages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlq_messages_total",
			Help:      "Messages sent to the dead-letter queue",
		},
	)

	circuitState := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Search index circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
	)

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		recordsProcessed,
		bulkOperations,
		dlqMessages,
		circuitState,
		httpRequests,
		httpDuration,
	)

	return &Collector{
		registry:         registry,
		RecordsProcessed: recordsProcessed,
		BulkOperations:   bulkOperations,
		DLQMessages:      dlqMessages,
		CircuitState:     circuitState,
		HTTPRequests:     httpRequests,
		HTTPDuration:     httpDuration,
	}
}

// IncrementCounterBy routes a named indexing metric to its Prometheus counter.
// Unknown names are ignored.
func (c *Collector) IncrementCounterBy(name string, value float64) {
	switch name {
	case MetricRecordsProcessedSuccess:
		c.RecordsProcessed.WithLabelValues("success").Add(value)
	case MetricRecordsProcessedFailed:
		c.RecordsProcessed.WithLabelValues("failed").Add(value)
	case MetricBulkOperationSuccess:
		c.BulkOperations.WithLabelValues("success").Add(value)
	case MetricBulkOperationFailed:
		c.BulkOperations.WithLabelValues("failed").Add(value)
	case MetricDLQMessagesSent:
		c.DLQMessages.Add(value)
	}
}

// SetCircuitState records the breaker state as a gauge value.
func (c *Collector) SetCircuitState(state int) {
	c.CircuitState.Set(float64(state))
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}
