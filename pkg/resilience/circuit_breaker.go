// Package resilience provides the circuit breaker and retry loop used to
// protect calls to the search index.
package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitBreakerConfig configures circuit breaker behavior.
//
// States:
//   - Closed: normal operation, attempts pass through
//   - Open: failure ratio exceeded the threshold, attempts are rejected
//   - Half-Open: the open timeout elapsed, attempts are let through until
//     enough successes close the circuit again
type CircuitBreakerConfig struct {
	ErrorThreshold   float64       // Failure ratio that opens the circuit (0.3 = 30%)
	MinimumRequests  int           // Recorded outcomes needed before the ratio is evaluated
	SuccessThreshold int           // Successes in half-open needed to close
	Timeout          time.Duration // Time after the last failure before half-open

	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the indexer defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		ErrorThreshold:   0.3,
		MinimumRequests:  10,
		SuccessThreshold: 3,
		Timeout:          60 * time.Second,
	}
}

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitSnapshot is a point-in-time copy of the breaker counters.
type CircuitSnapshot struct {
	State           CircuitState `json:"-"`
	StateName       string       `json:"state"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int          `json:"success_count"`
	LastFailureTime time.Time    `json:"last_failure_time,omitempty"`
}

// CircuitBreaker tracks outcome counts and decides whether the next attempt
// may proceed. One instance is shared by every invocation in a process.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// CircuitBreakerOption customizes a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger, opts ...CircuitBreakerOption) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = defaults.ErrorThreshold
	}
	if config.MinimumRequests <= 0 {
		config.MinimumRequests = defaults.MinimumRequests
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := &CircuitBreaker{
		config: config,
		logger: logger,
		now:    time.Now,
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

type transition struct {
	from, to CircuitState
}

// RecordSuccess records a successful attempt. Enough successes while
// half-open close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.successCount++
	var tr *transition
	if cb.state == StateHalfOpen && cb.successCount >= cb.config.SuccessThreshold {
		tr = cb.setStateLocked(StateClosed)
		cb.failureCount = 0
	}
	cb.mu.Unlock()

	cb.notify(tr)
}

// RecordFailure records a failed attempt. While closed, the circuit opens once
// at least MinimumRequests outcomes were seen and the failure ratio reached
// ErrorThreshold. Failures while half-open only bump the counters.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.failureCount++
	cb.lastFailureTime = cb.now()
	var tr *transition
	if cb.state == StateClosed && cb.shouldOpenLocked() {
		tr = cb.setStateLocked(StateOpen)
		cb.logger.Warn("circuit breaker opened due to high failure rate",
			zap.Int("failure_count", cb.failureCount),
			zap.Int("success_count", cb.successCount),
			zap.Float64("failure_rate", cb.failureRateLocked()),
		)
	}
	cb.mu.Unlock()

	cb.notify(tr)
}

// CanProceed reports whether an attempt may be made now. An open circuit whose
// timeout elapsed since the last failure moves to half-open and resets both
// counters.
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mu.Lock()
	var (
		tr      *transition
		proceed bool
	)
	switch cb.state {
	case StateClosed, StateHalfOpen:
		proceed = true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.config.Timeout {
			tr = cb.setStateLocked(StateHalfOpen)
			cb.failureCount = 0
			cb.successCount = 0
			proceed = true
		}
	}
	cb.mu.Unlock()

	cb.notify(tr)
	return proceed
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the current state and counters.
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitSnapshot{
		State:           cb.state,
		StateName:       cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

func (cb *CircuitBreaker) shouldOpenLocked() bool {
	total := cb.failureCount + cb.successCount
	if total < cb.config.MinimumRequests {
		return false
	}
	return cb.failureRateLocked() >= cb.config.ErrorThreshold
}

func (cb *CircuitBreaker) failureRateLocked() float64 {
	total := cb.failureCount + cb.successCount
	if total == 0 {
		return 0
	}
	return float64(cb.failureCount) / float64(total)
}

func (cb *CircuitBreaker) setStateLocked(newState CircuitState) *transition {
	oldState := cb.state
	if oldState == newState {
		return nil
	}
	cb.state = newState
	return &transition{from: oldState, to: newState}
}

// notify runs outside the lock so callbacks may read the breaker.
func (cb *CircuitBreaker) notify(tr *transition) {
	if tr == nil {
		return
	}
	cb.logger.Info("circuit breaker state changed",
		zap.String("from", tr.from.String()),
		zap.String("to", tr.to.String()),
	)
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(tr.from, tr.to)
	}
}
