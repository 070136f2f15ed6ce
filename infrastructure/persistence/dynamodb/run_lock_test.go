package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgerrors "asset-index-sync/pkg/errors"
)

type fakeLockClient struct {
	puts    []*dynamodb.PutItemInput
	deletes []*dynamodb.DeleteItemInput
	putErr  error
	delErr  error
}

func (c *fakeLockClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.puts = append(c.puts, in)
	return &dynamodb.PutItemOutput{}, c.putErr
}

func (c *fakeLockClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.deletes = append(c.deletes, in)
	return &dynamodb.DeleteItemOutput{}, c.delErr
}

func newTestLock(client *fakeLockClient) *RunLock {
	lock := NewRunLock(client, "locks", zap.NewNop())
	lock.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return lock
}

func TestRunLock_AcquireAndRelease(t *testing.T) {
	client := &fakeLockClient{}
	lock := newTestLock(client)

	held, err := lock.Acquire(context.Background(), "backfill#assets", "run-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1_700_003_600, 0), held.ExpiresAt())

	require.Len(t, client.puts, 1)
	put := client.puts[0]
	assert.Equal(t, "locks", aws.ToString(put.TableName))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "LOCK#backfill#assets"}, put.Item["PK"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "run-1"}, put.Item["Owner"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1700003600"}, put.Item["ExpiresAt"])
	assert.Contains(t, aws.ToString(put.ConditionExpression), "attribute_not_exists")
	assert.Contains(t, put.ExpressionAttributeValues, ":0")
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1700000000"}, put.ExpressionAttributeValues[":0"])

	require.NoError(t, held.Release(context.Background()))
	require.Len(t, client.deletes, 1)
	del := client.deletes[0]
	assert.Equal(t, &types.AttributeValueMemberS{Value: "LOCK#backfill#assets"}, del.Key["PK"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "run-1"}, del.ExpressionAttributeValues[":0"])
}

func TestRunLock_Contention(t *testing.T) {
	client := &fakeLockClient{putErr: &types.ConditionalCheckFailedException{Message: aws.String("held")}}
	lock := newTestLock(client)

	held, err := lock.Acquire(context.Background(), "backfill#assets", "run-2", time.Hour)

	assert.Nil(t, held)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestRunLock_AcquireServiceError(t *testing.T) {
	client := &fakeLockClient{putErr: errors.New("connection reset")}
	lock := newTestLock(client)

	_, err := lock.Acquire(context.Background(), "backfill#assets", "run-3", time.Hour)

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLockHeld))
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestRunLock_ReleaseAfterTakeover(t *testing.T) {
	client := &fakeLockClient{}
	lock := newTestLock(client)
	held, err := lock.Acquire(context.Background(), "backfill#assets", "run-4", time.Minute)
	require.NoError(t, err)

	client.delErr = &types.ConditionalCheckFailedException{Message: aws.String("owner changed")}
	assert.NoError(t, held.Release(context.Background()))

	client.delErr = errors.New("throttled")
	assert.Error(t, held.Release(context.Background()))
}
