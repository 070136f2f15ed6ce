// Package bulk holds search index bulk actions, their results and the chunking
// rules that bound a single bulk request.
package bulk

import (
	"encoding/json"
	"net/http"
)

// Operation is the bulk API verb of an action.
type Operation string

const (
	OpIndex  Operation = "index"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Action is one entry of a bulk request.
type Action struct {
	Operation   Operation
	DocumentID  string
	Body        map[string]any
	DocAsUpsert bool

	// EventName and Document describe where the action came from so a failed
	// action can be dead-lettered with its original payload.
	EventName string
	Document  map[string]any
}

// NewIndexAction builds a full-document write.
func NewIndexAction(id string, doc map[string]any, eventName string) Action {
	return Action{Operation: OpIndex, DocumentID: id, Body: doc, EventName: eventName, Document: doc}
}

// NewUpsertAction builds a partial update that creates the document when absent.
func NewUpsertAction(id string, doc map[string]any, eventName string) Action {
	return Action{Operation: OpUpdate, DocumentID: id, Body: doc, DocAsUpsert: true, EventName: eventName, Document: doc}
}

// NewDeleteAction builds a delete. doc is the last known image, kept for
// dead-lettering only.
func NewDeleteAction(id string, doc map[string]any, eventName string) Action {
	return Action{Operation: OpDelete, DocumentID: id, EventName: eventName, Document: doc}
}

// Meta returns the action/metadata line of the bulk entry.
func (a Action) Meta(index string) map[string]any {
	meta := map[string]any{"_id": a.DocumentID}
	if index != "" {
		meta["_index"] = index
	}
	return map[string]any{string(a.Operation): meta}
}

// Source returns the optional source line that follows the metadata line.
// Deletes have none.
func (a Action) Source() (any, bool) {
	switch a.Operation {
	case OpIndex:
		return a.Body, true
	case OpUpdate:
		src := map[string]any{"doc": a.Body}
		if a.DocAsUpsert {
			src["doc_as_upsert"] = true
		}
		return src, true
	default:
		return nil, false
	}
}

// EstimatedSize approximates the bytes the action adds to a bulk payload:
// both serialized lines plus their newlines. An action that cannot be
// serialized reports 0 and fails later in the request encoder.
func (a Action) EstimatedSize() int {
	meta, err := json.Marshal(a.Meta(""))
	if err != nil {
		return 0
	}
	size := len(meta) + 1
	if src, ok := a.Source(); ok {
		body, err := json.Marshal(src)
		if err != nil {
			return 0
		}
		size += len(body) + 1
	}
	return size
}

// ItemResult is the outcome of one action as reported by the bulk response.
type ItemResult struct {
	Operation   Operation
	DocumentID  string
	Status      int
	ErrorType   string
	ErrorReason string
}

// Succeeded reports whether the item took effect. Deleting a document that is
// already gone counts as success.
func (r ItemResult) Succeeded() bool {
	if r.Status >= 200 && r.Status < 300 {
		return true
	}
	return r.Operation == OpDelete && r.Status == http.StatusNotFound
}

// RateLimited reports whether the index rejected the item with 429.
func (r ItemResult) RateLimited() bool {
	return r.Status == http.StatusTooManyRequests
}

// Reason is a human readable failure description.
func (r ItemResult) Reason() string {
	switch {
	case r.ErrorType != "" && r.ErrorReason != "":
		return r.ErrorType + ": " + r.ErrorReason
	case r.ErrorReason != "":
		return r.ErrorReason
	case r.ErrorType != "":
		return r.ErrorType
	default:
		return http.StatusText(r.Status)
	}
}

// FailedItem pairs a terminally failed action with its result.
type FailedItem struct {
	Action Action
	Result ItemResult
}

// ChunkResult summarizes one executed chunk.
type ChunkResult struct {
	Succeeded int
	Failed    []FailedItem
}
