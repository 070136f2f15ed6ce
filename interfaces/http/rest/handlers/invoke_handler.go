package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"asset-index-sync/application/services"
	pkgerrors "asset-index-sync/pkg/errors"
)

// maxPayloadBytes matches the synchronous Lambda invocation payload limit.
const maxPayloadBytes = 6 << 20

// StreamInvoker runs one stream batch.
type StreamInvoker interface {
	Handle(ctx context.Context, payload json.RawMessage) (services.Summary, error)
}

// InvokeHandler feeds posted stream events to the stream handler the way the
// Lambda runtime would.
type InvokeHandler struct {
	invoker      StreamInvoker
	errorHandler *pkgerrors.ErrorHandler
	logger       *zap.Logger
}

// NewInvokeHandler creates a new invoke handler
func NewInvokeHandler(invoker StreamInvoker, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *InvokeHandler {
	return &InvokeHandler{
		invoker:      invoker,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// Invoke handles POST /invoke. The response status mirrors the summary's.
func (h *InvokeHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		h.errorHandler.HandleStatus(w, r, http.StatusBadRequest, "could not read request body")
		return
	}
	if len(body) > maxPayloadBytes {
		h.errorHandler.HandleStatus(w, r, http.StatusRequestEntityTooLarge, "stream event exceeds 6 MiB")
		return
	}
	if !json.Valid(body) {
		h.errorHandler.Handle(w, r, pkgerrors.NewValidationError("request body is not valid JSON"))
		return
	}

	summary, err := h.invoker.Handle(r.Context(), body)
	if err != nil {
		h.logger.Error("stream invocation failed",
			zap.String("batch_id", summary.BatchID),
			zap.Error(err),
		)
	}

	status := summary.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(summary)
}
