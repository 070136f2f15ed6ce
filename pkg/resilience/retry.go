package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	pkgerrors "asset-index-sync/pkg/errors"
)

// ErrCircuitOpen is returned for an attempt rejected by an open circuit. The
// retry loop treats it like any other transient failure.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// RetryConfig configures the retry loop.
type RetryConfig struct {
	MaxRetries int           // Retries after the first attempt
	BaseDelay  time.Duration // Delay before the first retry
	MaxDelay   time.Duration // Cap for the exponential delay

	OnRetry func(attempt int, err error) // Called before each sleep
}

// DefaultRetryConfig returns the indexer defaults: 16 attempts, 3s doubling up
// to 60s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 15,
		BaseDelay:  3 * time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// Retrier runs an operation with exponential backoff, consulting a circuit
// breaker before every attempt and reporting every outcome to it.
type Retrier struct {
	config  RetryConfig
	breaker *CircuitBreaker
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// RetrierOption customizes a Retrier.
type RetrierOption func(*Retrier)

// WithSleep replaces the context-aware sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) {
		r.sleep = sleep
	}
}

// NewRetrier creates a Retrier. breaker may be nil.
func NewRetrier(config RetryConfig, breaker *CircuitBreaker, logger *zap.Logger, opts ...RetrierOption) *Retrier {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retrier{
		config:  config,
		breaker: breaker,
		logger:  logger,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do calls fn until it succeeds, a non-retryable error is returned or
// MaxRetries+1 attempts were made. The returned error wraps the last cause.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before attempt %d: %w", attempt, err)
		}

		err := r.attempt(ctx, fn)
		if err == nil {
			if r.breaker != nil {
				r.breaker.RecordSuccess()
			}
			if attempt > 0 {
				r.logger.Info("operation succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}

		lastErr = err
		if r.breaker != nil {
			r.breaker.RecordFailure()
		}

		if !shouldRetry(err) {
			return fmt.Errorf("%s failed with non-retryable error: %w", operation, err)
		}
		if attempt >= r.config.MaxRetries {
			break
		}

		delay := r.Delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt+1, err)
		}
		r.logger.Warn("retrying operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := r.sleep(ctx, delay); err != nil {
			return fmt.Errorf("context cancelled during retry delay: %w", err)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, r.config.MaxRetries+1, lastErr)
}

// Delay returns the sleep before retry number attempt+1:
// min(BaseDelay * 2^attempt, MaxDelay).
func (r *Retrier) Delay(attempt int) time.Duration {
	delay := r.config.BaseDelay
	for i := 0; i < attempt && (r.config.MaxDelay <= 0 || delay < r.config.MaxDelay); i++ {
		delay *= 2
	}
	if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.breaker != nil && !r.breaker.CanProceed() {
		return ErrCircuitOpen
	}
	return fn(ctx)
}

func shouldRetry(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return pkgerrors.IsRetryable(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
