package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"asset-index-sync/application/ports"
)

type mockEventBridge struct {
	mock.Mock
}

func (m *mockEventBridge) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*eventbridge.PutEventsOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func summaryEvent() ports.BatchSummaryEvent {
	return ports.BatchSummaryEvent{
		BatchID:      "b-1",
		Source:       "stream",
		TotalRecords: 10,
		Success:      8,
		Failed:       2,
		StatusCode:   200,
		ProcessedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEventBridgePublisher_PublishBatchSummary(t *testing.T) {
	client := new(mockEventBridge)
	client.On("PutEvents", mock.Anything, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		if len(in.Entries) != 1 {
			return false
		}
		e := in.Entries[0]
		var detail map[string]any
		if err := json.Unmarshal([]byte(aws.ToString(e.Detail)), &detail); err != nil {
			return false
		}
		return aws.ToString(e.EventBusName) == "asset-events" &&
			aws.ToString(e.Source) == Source &&
			aws.ToString(e.DetailType) == DetailTypeBatchProcessed &&
			detail["batch_id"] == "b-1" &&
			detail["failed"] == float64(2) &&
			e.Time != nil
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()

	publisher := NewEventBridgePublisher(client, "asset-events", zap.NewNop())

	err := publisher.PublishBatchSummary(context.Background(), summaryEvent())

	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestEventBridgePublisher_FailedEntries(t *testing.T) {
	client := new(mockEventBridge)
	client.On("PutEvents", mock.Anything, mock.Anything).Return(&eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []types.PutEventsResultEntry{
			{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try again")},
		},
	}, nil)

	publisher := NewEventBridgePublisher(client, "asset-events", nil)

	err := publisher.PublishBatchSummary(context.Background(), summaryEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 events failed")
}

func TestEventBridgePublisher_ClientError(t *testing.T) {
	client := new(mockEventBridge)
	client.On("PutEvents", mock.Anything, mock.Anything).Return(nil, errors.New("no route to host"))

	publisher := NewEventBridgePublisher(client, "asset-events", nil)

	err := publisher.PublishBatchSummary(context.Background(), summaryEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route to host")
}
