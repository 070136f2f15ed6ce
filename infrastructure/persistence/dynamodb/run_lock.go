package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"asset-index-sync/application/ports"
	pkgerrors "asset-index-sync/pkg/errors"
)

// ErrLockHeld is returned when another owner holds an unexpired lock.
var ErrLockHeld = errors.New("lock already held")

// LockAPI is the subset of the DynamoDB client the run lock needs.
type LockAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// lockRecord is the item stored while a lock is held.
type lockRecord struct {
	PK         string `dynamodbav:"PK"` // LOCK#<resource>
	SK         string `dynamodbav:"SK"`
	Owner      string `dynamodbav:"Owner"`
	AcquiredAt string `dynamodbav:"AcquiredAt"`
	ExpiresAt  int64  `dynamodbav:"ExpiresAt"`
	TTL        int64  `dynamodbav:"TTL"`
}

// RunLock is a lease-style mutual exclusion lock built on conditional writes.
// An expired lease can be taken over, so a crashed holder blocks others for
// at most the lease duration.
type RunLock struct {
	client    LockAPI
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

// NewRunLock creates a lock backed by tableName, which must have a string
// partition key PK and a string sort key SK.
func NewRunLock(client LockAPI, tableName string, logger *zap.Logger) *RunLock {
	return &RunLock{
		client:    client,
		tableName: tableName,
		logger:    logger.Named("run-lock"),
		now:       time.Now,
	}
}

func lockKey(resource string) (string, string) {
	return "LOCK#" + resource, "LOCK"
}

// Acquire takes the lock for resource on behalf of owner. It fails with
// ErrLockHeld when a different, unexpired holder exists.
func (l *RunLock) Acquire(ctx context.Context, resource, owner string, leaseFor time.Duration) (ports.Lease, error) {
	now := l.now()
	expiresAt := now.Add(leaseFor)
	pk, sk := lockKey(resource)

	item, err := attributevalue.MarshalMap(lockRecord{
		PK:         pk,
		SK:         sk,
		Owner:      owner,
		AcquiredAt: now.UTC().Format(time.RFC3339),
		ExpiresAt:  expiresAt.Unix(),
		TTL:        expiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal lock record: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name("PK")).
		Or(expression.Name("ExpiresAt").LessThan(expression.Value(now.Unix())))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("build lock condition: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(l.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			l.logger.Debug("lock held by another owner",
				zap.String("resource", resource),
				zap.String("owner", owner),
			)
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, resource)
		}
		return nil, fmt.Errorf("acquire lock %s: %w", resource, pkgerrors.FromAWSError("dynamodb", err))
	}

	l.logger.Info("lock acquired",
		zap.String("resource", resource),
		zap.String("owner", owner),
		zap.Time("expires_at", expiresAt),
	)
	return &lease{lock: l, resource: resource, owner: owner, expiresAt: expiresAt}, nil
}

func (l *RunLock) release(ctx context.Context, resource, owner string) error {
	pk, sk := lockKey(resource)
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("Owner").Equal(expression.Value(owner))).
		Build()
	if err != nil {
		return fmt.Errorf("build release condition: %w", err)
	}

	_, err = l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			// Expired and taken over, or already gone.
			l.logger.Warn("lock no longer owned at release",
				zap.String("resource", resource),
				zap.String("owner", owner),
			)
			return nil
		}
		return fmt.Errorf("release lock %s: %w", resource, pkgerrors.FromAWSError("dynamodb", err))
	}

	l.logger.Info("lock released", zap.String("resource", resource), zap.String("owner", owner))
	return nil
}

// lease is a held lock.
type lease struct {
	lock      *RunLock
	resource  string
	owner     string
	expiresAt time.Time
}

func (h *lease) Release(ctx context.Context) error {
	return h.lock.release(ctx, h.resource, h.owner)
}

func (h *lease) ExpiresAt() time.Time {
	return h.expiresAt
}
