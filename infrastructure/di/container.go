package di

import (
	"context"

	"go.uber.org/zap"

	"asset-index-sync/application/ports"
	"asset-index-sync/application/services"
	"asset-index-sync/infrastructure/config"
	"asset-index-sync/pkg/observability"
	"asset-index-sync/pkg/resilience"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	LogLevel      zap.AtomicLevel
	Tracing       *observability.TracerProvider
	Collector     *observability.Collector
	Metrics       *observability.Metrics
	Breaker       *resilience.CircuitBreaker
	DeadLetters   ports.DeadLetterQueue
	StreamHandler *services.StreamHandler
	Backfill      *services.BackfillService
}

// Shutdown flushes what is buffered and releases exporters.
func (c *Container) Shutdown(ctx context.Context) {
	c.Metrics.Flush(ctx)
	if err := c.Tracing.Shutdown(ctx); err != nil {
		c.Logger.Warn("tracer shutdown failed", zap.Error(err))
	}
	_ = c.Logger.Sync()
}
