// Package search talks to the OpenSearch/Elasticsearch bulk API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"go.uber.org/zap"

	"asset-index-sync/domain/bulk"
	pkgerrors "asset-index-sync/pkg/errors"
)

const serviceName = "search-index"

// BulkClient implements ports.BulkIndexClient with the _bulk endpoint.
type BulkClient struct {
	client *elasticsearch.Client
	index  string
	logger *zap.Logger
}

// NewBulkClient constructs a BulkClient writing to index.
func NewBulkClient(client *elasticsearch.Client, index string, logger *zap.Logger) (*BulkClient, error) {
	if client == nil {
		return nil, fmt.Errorf("search client must not be nil")
	}
	if index == "" {
		return nil, fmt.Errorf("index must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkClient{
		client: client,
		index:  index,
		logger: logger.Named("search"),
	}, nil
}

// Bulk submits actions as one NDJSON request and returns one result per
// action, in request order.
//
// A rejection of the whole request maps to an AppError: 429 is RATE_LIMIT,
// 5xx is UNAVAILABLE, a transport failure is NETWORK, and any other non-2xx
// status is FATAL.
func (c *BulkClient) Bulk(ctx context.Context, actions []bulk.Action) ([]bulk.ItemResult, error) {
	if len(actions) == 0 {
		return nil, nil
	}

	body, err := c.encode(actions)
	if err != nil {
		return nil, pkgerrors.NewFatalError("encode bulk request", err)
	}

	res, err := c.client.Bulk(
		bytes.NewReader(body),
		c.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, pkgerrors.NewNetworkError("bulk request failed", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, pkgerrors.NewRateLimitError("bulk request rejected with 429")
	case res.StatusCode >= 500:
		return nil, pkgerrors.NewUnavailableError(serviceName).
			WithDetails(map[string]interface{}{"status": res.StatusCode, "body": readSnippet(res.Body)})
	case res.IsError():
		return nil, pkgerrors.NewFatalError(
			fmt.Sprintf("bulk request rejected with status %d", res.StatusCode),
			fmt.Errorf("%s", readSnippet(res.Body)),
		)
	}

	results, err := decodeResponse(res.Body, actions)
	if err != nil {
		return nil, pkgerrors.NewExternalError(serviceName, err)
	}

	c.logger.Debug("bulk request completed",
		zap.Int("actions", len(actions)),
		zap.Int("bytes", len(body)),
		zap.Int("status", res.StatusCode),
	)
	return results, nil
}

func (c *BulkClient) encode(actions []bulk.Action) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for _, action := range actions {
		if err := enc.Encode(action.Meta(c.index)); err != nil {
			return nil, fmt.Errorf("encode bulk meta for %s: %w", action.DocumentID, err)
		}
		src, ok := action.Source()
		if !ok {
			continue
		}
		if err := enc.Encode(src); err != nil {
			return nil, fmt.Errorf("encode bulk source for %s: %w", action.DocumentID, err)
		}
	}
	return buf.Bytes(), nil
}

type bulkResponse struct {
	Errors bool                       `json:"errors"`
	Items  []map[string]bulkItemReply `json:"items"`
}

type bulkItemReply struct {
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

type bulkItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func decodeResponse(r io.Reader, actions []bulk.Action) ([]bulk.ItemResult, error) {
	var body bulkResponse
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}

	results := make([]bulk.ItemResult, 0, len(body.Items))
	for i, item := range body.Items {
		for op, reply := range item {
			result := bulk.ItemResult{
				Operation:  bulk.Operation(op),
				DocumentID: reply.ID,
				Status:     reply.Status,
			}
			if i < len(actions) {
				result.DocumentID = actions[i].DocumentID
			}
			result.ErrorType, result.ErrorReason = parseItemError(reply.Error)
			results = append(results, result)
			break
		}
	}
	return results, nil
}

// parseItemError accepts both the object form and the bare string form of
// an item error.
func parseItemError(raw json.RawMessage) (string, string) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ""
	}
	var structured bulkItemError
	if err := json.Unmarshal(raw, &structured); err == nil {
		return structured.Type, structured.Reason
	}
	var reason string
	if err := json.Unmarshal(raw, &reason); err == nil {
		return "", reason
	}
	return "", string(raw)
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1024))
	return string(b)
}
