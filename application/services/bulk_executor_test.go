package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"asset-index-sync/domain/bulk"
	pkgerrors "asset-index-sync/pkg/errors"
	"asset-index-sync/pkg/observability"
)

func testActions() []bulk.Action {
	return []bulk.Action{
		bulk.NewIndexAction("A", map[string]any{"InventoryID": "A"}, "INSERT"),
		bulk.NewUpsertAction("B", map[string]any{"InventoryID": "B"}, "MODIFY"),
		bulk.NewDeleteAction("C", map[string]any{"InventoryID": "C"}, "REMOVE"),
	}
}

func TestBulkExecutor_Execute(t *testing.T) {
	t.Run("empty chunk does not contact the index", func(t *testing.T) {
		client := &scriptedBulkClient{}
		executor := NewBulkExecutor(client, newFakeMetrics(), zap.NewNop())

		result, err := executor.Execute(context.Background(), nil)

		require.NoError(t, err)
		assert.Zero(t, result.Succeeded)
		assert.Zero(t, client.callCount())
	})

	t.Run("all items succeed", func(t *testing.T) {
		metrics := newFakeMetrics()
		executor := NewBulkExecutor(&scriptedBulkClient{}, metrics, zap.NewNop())

		result, err := executor.Execute(context.Background(), testActions())

		require.NoError(t, err)
		assert.Equal(t, 3, result.Succeeded)
		assert.Empty(t, result.Failed)
		assert.Equal(t, 3.0, metrics.total(observability.MetricBulkOperationSuccess))
	})

	t.Run("any 429 fails the whole chunk as rate limited", func(t *testing.T) {
		client := &scriptedBulkClient{
			respond: func(_ int, actions []bulk.Action) ([]bulk.ItemResult, error) {
				return resultsWithStatus(actions, map[string]int{"B": http.StatusTooManyRequests, "C": http.StatusBadRequest}), nil
			},
		}
		executor := NewBulkExecutor(client, newFakeMetrics(), zap.NewNop())

		result, err := executor.Execute(context.Background(), testActions())

		require.Error(t, err)
		assert.True(t, pkgerrors.IsRateLimit(err))
		assert.True(t, pkgerrors.IsRetryable(err))
		assert.Zero(t, result.Succeeded)
		assert.Empty(t, result.Failed)
	})

	t.Run("non-429 item failures are returned for dead-lettering", func(t *testing.T) {
		metrics := newFakeMetrics()
		client := &scriptedBulkClient{
			respond: func(_ int, actions []bulk.Action) ([]bulk.ItemResult, error) {
				return resultsWithStatus(actions, map[string]int{"A": http.StatusBadRequest}), nil
			},
		}
		executor := NewBulkExecutor(client, metrics, zap.NewNop())

		result, err := executor.Execute(context.Background(), testActions())

		require.NoError(t, err)
		assert.Equal(t, 2, result.Succeeded)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, "A", result.Failed[0].Action.DocumentID)
		assert.Equal(t, http.StatusBadRequest, result.Failed[0].Result.Status)
		assert.Equal(t, 1.0, metrics.total(observability.MetricBulkOperationFailed))
	})

	t.Run("delete of a missing document succeeds", func(t *testing.T) {
		client := &scriptedBulkClient{
			respond: func(_ int, actions []bulk.Action) ([]bulk.ItemResult, error) {
				return resultsWithStatus(actions, map[string]int{"C": http.StatusNotFound}), nil
			},
		}
		executor := NewBulkExecutor(client, newFakeMetrics(), zap.NewNop())

		result, err := executor.Execute(context.Background(), testActions())

		require.NoError(t, err)
		assert.Equal(t, 3, result.Succeeded)
	})

	t.Run("transport errors are passed through", func(t *testing.T) {
		client := &scriptedBulkClient{
			respond: func(int, []bulk.Action) ([]bulk.ItemResult, error) {
				return nil, pkgerrors.NewNetworkError("bulk request failed", errors.New("connection refused"))
			},
		}
		executor := NewBulkExecutor(client, newFakeMetrics(), zap.NewNop())

		_, err := executor.Execute(context.Background(), testActions())

		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNetwork))
	})

	t.Run("mismatched response length is an external error", func(t *testing.T) {
		client := &scriptedBulkClient{
			respond: func(_ int, actions []bulk.Action) ([]bulk.ItemResult, error) {
				return okResults(actions[:1]), nil
			},
		}
		executor := NewBulkExecutor(client, newFakeMetrics(), zap.NewNop())

		_, err := executor.Execute(context.Background(), testActions())

		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
	})
}
