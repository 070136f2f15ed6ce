package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCloudWatch struct {
	mock.Mock
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*cloudwatch.PutMetricDataOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestMetrics_FlushPublishesAccumulatedCounters(t *testing.T) {
	// Arrange
	client := new(mockCloudWatch)
	var captured *cloudwatch.PutMetricDataInput
	client.On("PutMetricData", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*cloudwatch.PutMetricDataInput)
		}).
		Return(&cloudwatch.PutMetricDataOutput{}, nil).Once()

	m := NewMetrics("AssetIndexSync", client, nil, zap.NewNop())

	// Act
	m.Add(MetricRecordsProcessedSuccess, 2)
	m.Add(MetricRecordsProcessedSuccess, 1)
	m.Add(MetricDLQMessagesSent, 1)
	m.Add(MetricRecordsProcessedFailed, 0)
	m.Flush(context.Background())

	// Assert
	client.AssertExpectations(t)
	require.NotNil(t, captured)
	assert.Equal(t, "AssetIndexSync", aws.ToString(captured.Namespace))
	require.Len(t, captured.MetricData, 2)
	assert.Equal(t, MetricDLQMessagesSent, aws.ToString(captured.MetricData[0].MetricName))
	assert.Equal(t, 1.0, aws.ToFloat64(captured.MetricData[0].Value))
	assert.Equal(t, MetricRecordsProcessedSuccess, aws.ToString(captured.MetricData[1].MetricName))
	assert.Equal(t, 3.0, aws.ToFloat64(captured.MetricData[1].Value))
	assert.Empty(t, m.Pending())
}

func TestMetrics_FlushWithoutClient(t *testing.T) {
	m := NewMetrics("AssetIndexSync", nil, nil, zap.NewNop())
	m.Add(MetricBulkOperationSuccess, 5)
	assert.Equal(t, map[string]float64{MetricBulkOperationSuccess: 5}, m.Pending())

	m.Flush(context.Background())
	assert.Empty(t, m.Pending())
}

func TestMetrics_FlushErrorIsSwallowed(t *testing.T) {
	client := new(mockCloudWatch)
	client.On("PutMetricData", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	m := NewMetrics("AssetIndexSync", client, nil, zap.NewNop())
	m.Add(MetricBulkOperationFailed, 1)

	assert.NotPanics(t, func() { m.Flush(context.Background()) })
	client.AssertNumberOfCalls(t, "PutMetricData", 1)
}

func TestMetrics_MirrorsToCollector(t *testing.T) {
	collector := NewCollector("asset_index_sync")
	m := NewMetrics("AssetIndexSync", nil, collector, zap.NewNop())

	m.Add(MetricRecordsProcessedSuccess, 4)
	m.Add(MetricRecordsProcessedFailed, 1)
	m.Add(MetricDLQMessagesSent, 1)
	m.Add(MetricBulkOperationSuccess, 4)

	assert.Equal(t, 4.0, testutil.ToFloat64(collector.RecordsProcessed.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.RecordsProcessed.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.DLQMessages))
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.BulkOperations.WithLabelValues("success")))
}
