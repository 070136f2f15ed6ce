package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"asset-index-sync/application/ports"
)

// pagedScanClient serves pre-built pages, chaining them with LastEvaluatedKey.
type pagedScanClient struct {
	pages  [][]map[string]types.AttributeValue
	inputs []*dynamodb.ScanInput
	err    error
}

func (c *pagedScanClient) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	c.inputs = append(c.inputs, in)
	if c.err != nil {
		return nil, c.err
	}
	idx := len(c.inputs) - 1
	out := &dynamodb.ScanOutput{Items: c.pages[idx], ScannedCount: int32(len(c.pages[idx]))}
	if idx < len(c.pages)-1 {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"InventoryID": &types.AttributeValueMemberS{Value: "cursor"},
		}
	}
	return out, nil
}

func TestSourceScanner_Scan(t *testing.T) {
	client := &pagedScanClient{pages: [][]map[string]types.AttributeValue{
		{
			{
				"InventoryID": &types.AttributeValueMemberS{Value: "A"},
				"Price":       &types.AttributeValueMemberN{Value: "12.50"},
				"Tags":        &types.AttributeValueMemberSS{Value: []string{"red", "blue"}},
				"Meta": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
					"Weight": &types.AttributeValueMemberN{Value: "3"},
				}},
			},
		},
		{},
		{
			{"InventoryID": &types.AttributeValueMemberN{Value: "7"}},
		},
	}}
	scanner := NewSourceScanner(client, "assets", "InventoryID", 100, zap.NewNop())

	var got [][]map[string]any
	err := scanner.Scan(context.Background(), func(_ context.Context, page ports.ScanPage) error {
		assert.Empty(t, page.Failures)
		got = append(got, page.Docs)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, client.inputs, 3)
	require.Len(t, got, 2, "empty pages are not handed to the callback")

	first := client.inputs[0]
	assert.Equal(t, "assets", aws.ToString(first.TableName))
	assert.Equal(t, int32(100), aws.ToInt32(first.Limit))
	require.NotNil(t, first.FilterExpression)
	assert.Contains(t, aws.ToString(first.FilterExpression), "attribute_exists")
	assert.Contains(t, first.ExpressionAttributeNames, "#0")
	assert.Equal(t, "InventoryID", first.ExpressionAttributeNames["#0"])
	assert.NotNil(t, client.inputs[1].ExclusiveStartKey)

	doc := got[0][0]
	assert.Equal(t, "A", doc["InventoryID"])
	assert.Equal(t, json.Number("12.50"), doc["Price"])
	assert.ElementsMatch(t, []string{"red", "blue"}, doc["Tags"])
	assert.Equal(t, map[string]any{"Weight": json.Number("3")}, doc["Meta"])
	assert.Equal(t, json.Number("7"), got[1][0]["InventoryID"])
}

func TestSourceScanner_CallbackErrorStopsScan(t *testing.T) {
	client := &pagedScanClient{pages: [][]map[string]types.AttributeValue{
		{{"InventoryID": &types.AttributeValueMemberS{Value: "A"}}},
		{{"InventoryID": &types.AttributeValueMemberS{Value: "B"}}},
	}}
	scanner := NewSourceScanner(client, "assets", "InventoryID", 0, nil)
	stop := errors.New("stop")

	err := scanner.Scan(context.Background(), func(context.Context, ports.ScanPage) error { return stop })

	assert.ErrorIs(t, err, stop)
	assert.Len(t, client.inputs, 1)
	assert.Nil(t, client.inputs[0].Limit)
}

func TestSourceScanner_ClientError(t *testing.T) {
	client := &pagedScanClient{err: errors.New("connection reset")}
	scanner := NewSourceScanner(client, "assets", "InventoryID", 0, nil)

	err := scanner.Scan(context.Background(), func(context.Context, ports.ScanPage) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan assets page 1")
}

func TestSourceScanner_UndecodableItems(t *testing.T) {
	bad := &types.UnknownUnionMember{Tag: "FUTURE", Value: []byte("?")}
	client := &pagedScanClient{pages: [][]map[string]types.AttributeValue{
		{
			{"InventoryID": &types.AttributeValueMemberS{Value: "A"}},
			{"InventoryID": &types.AttributeValueMemberN{Value: "42"}, "Blob": bad},
			{"InventoryID": bad},
		},
		{
			{"InventoryID": &types.AttributeValueMemberS{Value: "C"}, "Blob": bad},
		},
	}}
	scanner := NewSourceScanner(client, "assets", "InventoryID", 0, zap.NewNop())

	var pages []ports.ScanPage
	err := scanner.Scan(context.Background(), func(_ context.Context, page ports.ScanPage) error {
		pages = append(pages, page)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, pages, 2, "a page with only undecodable items is still reported")

	first := pages[0]
	require.Len(t, first.Docs, 1)
	assert.Equal(t, "A", first.Docs[0]["InventoryID"])
	require.Len(t, first.Failures, 2)
	assert.Equal(t, "42", first.Failures[0].DocumentID)
	assert.Equal(t, map[string]any{"InventoryID": json.Number("42")}, first.Failures[0].Key)
	assert.Contains(t, first.Failures[0].Reason, "decode scanned item")
	assert.Empty(t, first.Failures[1].DocumentID)
	assert.Nil(t, first.Failures[1].Key)

	assert.Empty(t, pages[1].Docs)
	require.Len(t, pages[1].Failures, 1)
	assert.Equal(t, "C", pages[1].Failures[0].DocumentID)
}
