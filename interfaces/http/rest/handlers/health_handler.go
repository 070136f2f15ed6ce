package handlers

import (
	"encoding/json"
	"net/http"

	"asset-index-sync/pkg/resilience"
)

// BreakerReporter exposes circuit breaker state.
type BreakerReporter interface {
	Snapshot() resilience.CircuitSnapshot
}

// QueueReporter exposes the dead-letter queue guard state
// ("closed", "half-open" or "open").
type QueueReporter interface {
	State() string
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string                     `json:"status"`
	Circuit         resilience.CircuitSnapshot `json:"circuit"`
	DeadLetterQueue string                     `json:"dead_letter_queue"`
}

// Health reports "degraded" with 503 while the search breaker or the
// dead-letter queue guard is open. A nil queue is reported as "disabled".
func Health(breaker BreakerReporter, queue QueueReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snapshot := breaker.Snapshot()
		resp := HealthResponse{Status: "healthy", Circuit: snapshot, DeadLetterQueue: "disabled"}
		if queue != nil {
			resp.DeadLetterQueue = queue.State()
		}

		status := http.StatusOK
		if snapshot.State == resilience.StateOpen || resp.DeadLetterQueue == "open" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
