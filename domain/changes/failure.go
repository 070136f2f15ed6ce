package changes

import (
	"encoding/json"

	"asset-index-sync/domain/bulk"
)

// FailureReport describes a record that could not be applied to the index.
type FailureReport struct {
	EventKind  EventKind
	DocumentID string
	Document   map[string]any
	// Raw is used as the body when the record never made it to a document.
	Raw    json.RawMessage
	Reason string
}

// Body returns the dead-letter message body.
func (r FailureReport) Body() ([]byte, error) {
	if r.Document != nil {
		return json.Marshal(r.Document)
	}
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return []byte("{}"), nil
}

// ReportForAction builds a report for an action that failed at the index.
func ReportForAction(action bulk.Action, reason string) FailureReport {
	return FailureReport{
		EventKind:  EventKind(action.EventName),
		DocumentID: action.DocumentID,
		Document:   action.Document,
		Reason:     reason,
	}
}

// ReportForRecord builds a report for a record that failed before becoming an
// action.
func ReportForRecord(record ChangeRecord, reason string) FailureReport {
	return FailureReport{
		EventKind: record.EventKind,
		Raw:       record.Raw,
		Reason:    reason,
	}
}
