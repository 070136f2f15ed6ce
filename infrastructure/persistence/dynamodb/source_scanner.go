package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"asset-index-sync/application/ports"
	pkgerrors "asset-index-sync/pkg/errors"
)

// SourceScanner pages through the source table for a full re-index.
type SourceScanner struct {
	client      dynamodb.ScanAPIClient
	tableName   string
	idAttribute string
	pageSize    int32
	logger      *zap.Logger
}

// NewSourceScanner creates a scanner. Items without idAttribute are filtered
// out server side. A pageSize of 0 lets DynamoDB choose.
func NewSourceScanner(client dynamodb.ScanAPIClient, tableName, idAttribute string, pageSize int32, logger *zap.Logger) *SourceScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SourceScanner{
		client:      client,
		tableName:   tableName,
		idAttribute: idAttribute,
		pageSize:    pageSize,
		logger:      logger.Named("source_scanner"),
	}
}

// Scan implements ports.SourceScanner.
func (s *SourceScanner) Scan(ctx context.Context, fn func(ctx context.Context, page ports.ScanPage) error) error {
	expr, err := expression.NewBuilder().
		WithFilter(expression.AttributeExists(expression.Name(s.idAttribute))).
		Build()
	if err != nil {
		return fmt.Errorf("build scan filter: %w", err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if s.pageSize > 0 {
		input.Limit = aws.Int32(s.pageSize)
	}

	paginator := dynamodb.NewScanPaginator(s.client, input)
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan %s page %d: %w", s.tableName, pages+1, pkgerrors.FromAWSError("dynamodb", err))
		}
		pages++

		scanned := ports.ScanPage{Docs: make([]map[string]any, 0, len(page.Items))}
		for _, item := range page.Items {
			var doc map[string]any
			if err := attributevalue.UnmarshalMapWithOptions(item, &doc, useNumber); err != nil {
				failure := s.failedItem(item, err)
				s.logger.Warn("undecodable item",
					zap.Int("page", pages),
					zap.String("document_id", failure.DocumentID),
					zap.Error(err),
				)
				scanned.Failures = append(scanned.Failures, failure)
				continue
			}
			scanned.Docs = append(scanned.Docs, plainDocument(doc))
		}

		s.logger.Debug("scanned page",
			zap.Int("page", pages),
			zap.Int("items", len(scanned.Docs)),
			zap.Int("undecodable", len(scanned.Failures)),
			zap.Int32("scanned", page.ScannedCount),
		)

		if len(scanned.Docs) == 0 && len(scanned.Failures) == 0 {
			continue
		}
		if err := fn(ctx, scanned); err != nil {
			return err
		}
	}
	return nil
}

func useNumber(o *attributevalue.DecoderOptions) {
	o.UseNumber = true
}

// failedItem reports an item that could not be decoded, keeping its
// identifier when that attribute decodes on its own.
func (s *SourceScanner) failedItem(item map[string]types.AttributeValue, err error) ports.ScanFailure {
	failure := ports.ScanFailure{Reason: fmt.Sprintf("decode scanned item: %v", err)}
	av, ok := item[s.idAttribute]
	if !ok {
		return failure
	}
	var id any
	if attributevalue.UnmarshalWithOptions(av, &id, useNumber) != nil {
		return failure
	}
	id = plainScanned(id)
	failure.Key = map[string]any{s.idAttribute: id}
	failure.DocumentID = fmt.Sprint(id)
	return failure
}

// plainDocument swaps the decoder's number type for json.Number so scanned
// items serialize exactly like stream images.
func plainDocument(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = plainScanned(v)
	}
	return out
}

func plainScanned(v any) any {
	switch t := v.(type) {
	case attributevalue.Number:
		return json.Number(t)
	case []attributevalue.Number:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = json.Number(n)
		}
		return out
	case map[string]any:
		return plainDocument(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainScanned(e)
		}
		return out
	default:
		return v
	}
}
