package changes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	pkgerrors "asset-index-sync/pkg/errors"
)

// PlainImage converts a typed stream image into a plain document.
//
// Numbers become json.Number so no precision is lost, binary values stay
// []byte (serialized as base64), sets become arrays and NULL becomes nil.
func PlainImage(image map[string]events.DynamoDBAttributeValue) (map[string]any, error) {
	return plainMap(image, "")
}

func plainValue(av events.DynamoDBAttributeValue, path string) (any, error) {
	switch av.DataType() {
	case events.DataTypeString:
		return av.String(), nil
	case events.DataTypeNumber:
		return plainNumber(av.Number(), path)
	case events.DataTypeBinary:
		return av.Binary(), nil
	case events.DataTypeBoolean:
		return av.Boolean(), nil
	case events.DataTypeNull:
		return nil, nil
	case events.DataTypeStringSet:
		out := make([]string, len(av.StringSet()))
		copy(out, av.StringSet())
		return out, nil
	case events.DataTypeNumberSet:
		out := make([]json.Number, 0, len(av.NumberSet()))
		for i, n := range av.NumberSet() {
			num, err := plainNumber(n, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, num)
		}
		return out, nil
	case events.DataTypeBinarySet:
		out := make([][]byte, len(av.BinarySet()))
		copy(out, av.BinarySet())
		return out, nil
	case events.DataTypeList:
		out := make([]any, 0, len(av.List()))
		for i, item := range av.List() {
			v, err := plainValue(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case events.DataTypeMap:
		return plainMap(av.Map(), path)
	default:
		return nil, pkgerrors.NewConversionError(
			fmt.Sprintf("unsupported attribute type %d at %q", av.DataType(), path), nil,
		).WithDetails(map[string]interface{}{"path": path})
	}
}

func plainMap(m map[string]events.DynamoDBAttributeValue, path string) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for name, av := range m {
		v, err := plainValue(av, joinPath(path, name))
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// plainNumber keeps the stream's decimal string verbatim. It must be a valid
// JSON number or the document could not be serialized later.
func plainNumber(n, path string) (json.Number, error) {
	if n == "" || strings.TrimSpace(n) != n || !(n[0] == '-' || (n[0] >= '0' && n[0] <= '9')) || !json.Valid([]byte(n)) {
		return "", pkgerrors.NewConversionError(
			fmt.Sprintf("invalid number %q at %q", n, path), nil,
		).WithDetails(map[string]interface{}{"path": path})
	}
	return json.Number(n), nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
