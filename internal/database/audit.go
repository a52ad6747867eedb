package database

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
)

// AuditOperations handles all DynamoDB operations for audit records.
// Items are keyed by ServerId (partition) and SortKey, a zero padded
// nanosecond timestamp followed by the event id.
type AuditOperations struct {
	client    *Client
	tableName string
}

// auditItem is the stored shape of an audit record
type auditItem struct {
	ServerId  string `dynamodbav:"ServerId"`
	SortKey   string `dynamodbav:"SortKey"`
	EventId   string `dynamodbav:"EventId"`
	Type      string `dynamodbav:"Type"`
	Detail    string `dynamodbav:"Detail,omitempty"`
	CreatedAt int64  `dynamodbav:"CreatedAt"`
}

// NewAuditOperations creates a new AuditOperations instance
func NewAuditOperations(client *Client) *AuditOperations {
	return &AuditOperations{
		client:    client,
		tableName: client.TableName,
	}
}

func sortKey(rec models.AuditRecord) string {
	return fmt.Sprintf("%020d#%s", rec.Timestamp.UnixNano(), rec.EventID)
}

// PutAuditRecord stores one audit record
func (ao *AuditOperations) PutAuditRecord(ctx context.Context, rec models.AuditRecord) error {
	av, err := attributevalue.MarshalMap(auditItem{
		ServerId:  rec.ServerID,
		SortKey:   sortKey(rec),
		EventId:   rec.EventID,
		Type:      rec.Type,
		Detail:    rec.Detail,
		CreatedAt: rec.Timestamp.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	_, err = ao.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ao.tableName),
		Item:      av,
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"server_id": rec.ServerID,
			"event_id":  rec.EventID,
			"error":     err.Error(),
		}).Error("Failed to write audit record to DynamoDB")
		return fmt.Errorf("failed to put audit record: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"server_id": rec.ServerID,
		"event_id":  rec.EventID,
	}).Debug("Audit record written to DynamoDB")
	return nil
}

// ListAuditRecords returns up to limit records for a server, newest first
func (ao *AuditOperations) ListAuditRecords(ctx context.Context, serverID string, limit int) ([]models.AuditRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(ao.tableName),
		KeyConditionExpression: aws.String("ServerId = :serverId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":serverId": &types.AttributeValueMemberS{Value: serverID},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := ao.client.DynamoDB.Query(ctx, input)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"server_id": serverID,
			"error":     err.Error(),
		}).Error("Failed to query audit records from DynamoDB")
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	var items []auditItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit records: %w", err)
	}

	records := make([]models.AuditRecord, 0, len(items))
	for _, item := range items {
		records = append(records, models.AuditRecord{
			EventID:   item.EventId,
			ServerID:  item.ServerId,
			Type:      item.Type,
			Detail:    item.Detail,
			Timestamp: time.Unix(0, item.CreatedAt).UTC(),
		})
	}
	return records, nil
}
