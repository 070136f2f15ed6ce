package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"asset-index-sync/domain/changes"
	"asset-index-sync/pkg/observability"
)

func TestMessageTypeFor(t *testing.T) {
	assert.Equal(t, "Insert the Index", MessageTypeFor(changes.EventInsert))
	assert.Equal(t, "Modify the Index", MessageTypeFor(changes.EventModify))
	assert.Equal(t, "Delete the Index", MessageTypeFor(changes.EventRemove))
	assert.Equal(t, MessageTypeUnknown, MessageTypeFor(""))
}

func TestDeadLetterRouter_Send(t *testing.T) {
	t.Run("one message per report", func(t *testing.T) {
		queue := &recordingQueue{}
		metrics := newFakeMetrics()
		router := NewDeadLetterRouter(queue, metrics, zap.NewNop())

		sent := router.Send(context.Background(), []changes.FailureReport{
			{EventKind: changes.EventInsert, DocumentID: "A", Document: map[string]any{"InventoryID": "A"}, Reason: "mapper_parsing_exception"},
			{EventKind: changes.EventRemove, DocumentID: "B", Document: map[string]any{"InventoryID": "B"}, Reason: "timeout"},
		})

		assert.Equal(t, 2, sent)
		messages := queue.sent()
		require.Len(t, messages, 2)
		assert.Equal(t, "Insert the Index", messages[0].MessageType)
		assert.Equal(t, "INSERT", messages[0].EventName)
		assert.Equal(t, "mapper_parsing_exception", messages[0].FailureReason)
		assert.JSONEq(t, `{"InventoryID":"A"}`, messages[0].Body)
		assert.Equal(t, "Delete the Index", messages[1].MessageType)
		assert.Equal(t, 2.0, metrics.total(observability.MetricDLQMessagesSent))
	})

	t.Run("raw body and empty reason", func(t *testing.T) {
		queue := &recordingQueue{}
		router := NewDeadLetterRouter(queue, newFakeMetrics(), zap.NewNop())

		router.Send(context.Background(), []changes.FailureReport{
			{Raw: json.RawMessage(`{"broken":true}`)},
		})

		messages := queue.sent()
		require.Len(t, messages, 1)
		assert.Equal(t, `{"broken":true}`, messages[0].Body)
		assert.Equal(t, "unknown failure", messages[0].FailureReason)
		assert.Equal(t, "UNKNOWN", messages[0].EventName)
	})

	t.Run("send failures are logged and swallowed", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		queue := &recordingQueue{err: errors.New("queue unavailable")}
		metrics := newFakeMetrics()
		router := NewDeadLetterRouter(queue, metrics, zap.New(core))

		var sent int
		assert.NotPanics(t, func() {
			sent = router.Send(context.Background(), []changes.FailureReport{
				{EventKind: changes.EventModify, DocumentID: "A", Reason: "boom"},
			})
		})

		assert.Zero(t, sent)
		assert.Zero(t, metrics.total(observability.MetricDLQMessagesSent))
		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "failed to send record to dead-letter queue", entry.Message)
		assert.Equal(t, "A", entry.ContextMap()["document_id"])
	})

	t.Run("no queue configured", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		router := NewDeadLetterRouter(nil, newFakeMetrics(), zap.New(core))

		sent := router.Send(context.Background(), []changes.FailureReport{{EventKind: changes.EventInsert, Reason: "x"}})

		assert.Zero(t, sent)
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("cancelled context still delivers", func(t *testing.T) {
		queue := &recordingQueue{}
		router := NewDeadLetterRouter(queue, newFakeMetrics(), zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sent := router.Send(ctx, []changes.FailureReport{{EventKind: changes.EventInsert, Reason: "x"}})

		assert.Equal(t, 1, sent)
	})
}
