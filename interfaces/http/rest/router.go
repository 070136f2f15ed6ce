package rest

import (
	"net/http"

	"asset-index-sync/interfaces/http/rest/handlers"
	"asset-index-sync/interfaces/http/rest/middleware"
	pkgerrors "asset-index-sync/pkg/errors"
	"asset-index-sync/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router of the dev server
type Router struct {
	invoker   handlers.StreamInvoker
	breaker   handlers.BreakerReporter
	queue     handlers.QueueReporter
	collector *observability.Collector
	logger    *zap.Logger
	debug     bool
}

// NewRouter creates a new router instance. queue may be nil when no
// dead-letter queue is configured.
func NewRouter(
	invoker handlers.StreamInvoker,
	breaker handlers.BreakerReporter,
	queue handlers.QueueReporter,
	collector *observability.Collector,
	logger *zap.Logger,
	debug bool,
) *Router {
	return &Router{
		invoker:   invoker,
		breaker:   breaker,
		queue:     queue,
		collector: collector,
		logger:    logger,
		debug:     debug,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()
	errorHandler := pkgerrors.NewErrorHandler(rt.logger, rt.debug)
	errorHandler.RequestID = func(r *http.Request) string {
		return chimiddleware.GetReqID(r.Context())
	}

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(errorHandler.Middleware)
	router.Use(middleware.Logger(rt.logger, rt.collector))

	router.Get("/health", handlers.Health(rt.breaker, rt.queue))
	router.Get("/ready", rt.readinessCheck)
	router.Handle("/metrics", promhttp.HandlerFor(rt.collector.GetRegistry(), promhttp.HandlerOpts{}))

	invokeHandler := handlers.NewInvokeHandler(rt.invoker, errorHandler, rt.logger)
	router.Post("/invoke", invokeHandler.Invoke)

	return router
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
