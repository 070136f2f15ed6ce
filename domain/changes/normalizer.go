package changes

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"asset-index-sync/domain/bulk"
	pkgerrors "asset-index-sync/pkg/errors"
)

// DefaultIDAttribute is the table attribute used as the search document id.
const DefaultIDAttribute = "InventoryID"

// Normalizer maps change records to bulk actions.
type Normalizer struct {
	idAttribute string
}

// NewNormalizer creates a normalizer keyed on idAttribute.
func NewNormalizer(idAttribute string) *Normalizer {
	if idAttribute == "" {
		idAttribute = DefaultIDAttribute
	}
	return &Normalizer{idAttribute: idAttribute}
}

// Normalize converts one record. It returns an error wrapping
// ErrMalformedRecord when the record should be skipped, or a CONVERSION
// AppError when the record should be dead-lettered.
func (n *Normalizer) Normalize(record ChangeRecord) (bulk.Action, error) {
	switch record.EventKind {
	case EventRemove:
		if len(record.OldImage) == 0 {
			return bulk.Action{}, fmt.Errorf("%w: REMOVE without old image", ErrMalformedRecord)
		}
		id, err := n.documentID(record.OldImage)
		if err != nil {
			return bulk.Action{}, err
		}
		// The old image is only kept for dead-lettering, so a conversion
		// failure there must not block the delete itself.
		doc, convErr := PlainImage(record.OldImage)
		if convErr != nil {
			doc = map[string]any{n.idAttribute: id}
		}
		return bulk.NewDeleteAction(id, doc, string(record.EventKind)), nil

	case EventInsert, EventModify:
		if len(record.NewImage) == 0 {
			return bulk.Action{}, fmt.Errorf("%w: %s without new image", ErrMalformedRecord, record.EventKind)
		}
		id, err := n.documentID(record.NewImage)
		if err != nil {
			return bulk.Action{}, err
		}
		doc, err := PlainImage(record.NewImage)
		if err != nil {
			return bulk.Action{}, err
		}
		if record.EventKind == EventInsert {
			return bulk.NewIndexAction(id, doc, string(record.EventKind)), nil
		}
		return bulk.NewUpsertAction(id, doc, string(record.EventKind)), nil

	default:
		return bulk.Action{}, fmt.Errorf("%w: unknown event kind %q", ErrMalformedRecord, record.EventKind)
	}
}

// NormalizeDocument builds an index action for an already plain document, as
// read by a table scan.
func (n *Normalizer) NormalizeDocument(doc map[string]any) (bulk.Action, error) {
	id, err := plainDocumentID(doc[n.idAttribute], n.idAttribute)
	if err != nil {
		return bulk.Action{}, err
	}
	return bulk.NewIndexAction(id, doc, string(EventInsert)), nil
}

func (n *Normalizer) documentID(image map[string]events.DynamoDBAttributeValue) (string, error) {
	av, ok := image[n.idAttribute]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedRecord, n.idAttribute)
	}
	switch av.DataType() {
	case events.DataTypeString:
		if av.String() == "" {
			return "", fmt.Errorf("%w: empty %s", ErrMalformedRecord, n.idAttribute)
		}
		return av.String(), nil
	case events.DataTypeNumber:
		return av.Number(), nil
	case events.DataTypeNull:
		return "", fmt.Errorf("%w: null %s", ErrMalformedRecord, n.idAttribute)
	default:
		return "", pkgerrors.NewConversionError(
			fmt.Sprintf("%s must be a string or number", n.idAttribute), nil,
		)
	}
}

func plainDocumentID(v any, attr string) (string, error) {
	switch id := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: missing %s", ErrMalformedRecord, attr)
	case string:
		if id == "" {
			return "", fmt.Errorf("%w: empty %s", ErrMalformedRecord, attr)
		}
		return id, nil
	case json.Number:
		return id.String(), nil
	default:
		return "", pkgerrors.NewConversionError(fmt.Sprintf("%s must be a string or number", attr), nil)
	}
}
