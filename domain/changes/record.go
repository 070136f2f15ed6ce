// Package changes models DynamoDB stream records and turns them into bulk
// index actions.
package changes

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	pkgerrors "asset-index-sync/pkg/errors"
)

// EventKind is the mutation type carried by a stream record.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventModify EventKind = "MODIFY"
	EventRemove EventKind = "REMOVE"
)

// ErrMalformedRecord marks a record that can be skipped without dead-lettering:
// it lacks the image or identifier its event kind requires.
var ErrMalformedRecord = errors.New("malformed change record")

// ChangeRecord is one mutation notification from the table stream.
type ChangeRecord struct {
	EventID   string
	EventKind EventKind
	Keys      map[string]events.DynamoDBAttributeValue
	NewImage  map[string]events.DynamoDBAttributeValue
	OldImage  map[string]events.DynamoDBAttributeValue

	// Raw is the record exactly as it arrived.
	Raw json.RawMessage
}

// fromEventRecord adapts a decoded Lambda event record, keeping the bytes it
// was decoded from as Raw.
func fromEventRecord(rec events.DynamoDBEventRecord, raw json.RawMessage) ChangeRecord {
	return ChangeRecord{
		EventID:   rec.EventID,
		EventKind: EventKind(rec.EventName),
		Keys:      rec.Change.Keys,
		NewImage:  rec.Change.NewImage,
		OldImage:  rec.Change.OldImage,
		Raw:       raw,
	}
}

// DecodeRecord decodes a single stream record. A record whose attributes use
// an encoding the event library does not know fails with a CONVERSION error;
// the returned ChangeRecord still carries Raw so it can be dead-lettered.
func DecodeRecord(raw json.RawMessage) (ChangeRecord, error) {
	var rec events.DynamoDBEventRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ChangeRecord{EventKind: peekEventKind(raw), Raw: raw},
			pkgerrors.NewConversionError("undecodable stream record", err)
	}
	return fromEventRecord(rec, raw), nil
}

// DecodeBatch splits a stream event into its raw records without decoding the
// records themselves, so one bad record cannot fail the whole batch.
func DecodeBatch(payload []byte) ([]json.RawMessage, error) {
	var batch struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, fmt.Errorf("decode stream event: %w", err)
	}
	return batch.Records, nil
}

func peekEventKind(raw json.RawMessage) EventKind {
	var head struct {
		EventName string `json:"eventName"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return EventKind(head.EventName)
}
