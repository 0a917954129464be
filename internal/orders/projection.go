package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-exactly-once-orders/internal/aws"
)

// ErrAlreadyApplied is returned by Projection.Apply when the event was
// already applied by an earlier delivery.
var ErrAlreadyApplied = errors.New("event already applied")

// Projection maintains the read-side copy of orders in DynamoDB.
type Projection struct {
	client         aws.DynamoDBAPI
	tableName      string
	processedTable string
	nowFunc        func() time.Time
}

// NewProjection creates a Projection writing views to tableName and
// applied-event markers to processedTable.
func NewProjection(client aws.DynamoDBAPI, tableName, processedTable string) *Projection {
	return &Projection{
		client:         client,
		tableName:      tableName,
		processedTable: processedTable,
		nowFunc:        time.Now,
	}
}

// Apply atomically writes:
//   - a processed-event marker (ConditionExpression attribute_not_exists(event_id))
//   - the order view built from ev
//
// A redelivered event fails the condition and returns ErrAlreadyApplied
// without touching the view.
func (p *Projection) Apply(ctx context.Context, eventID string, ev CreatedEvent) error {
	if eventID == "" || ev.OrderID == "" {
		return errors.New("event_id and order_id are required")
	}
	now := p.nowFunc().UTC()

	marker, err := attributevalue.MarshalMap(processedEvent{
		EventID:     eventID,
		OrderID:     ev.OrderID,
		ProcessedAt: now,
	})
	if err != nil {
		return fmt.Errorf("marshal processed marker: %w", err)
	}
	view, err := attributevalue.MarshalMap(View{
		OrderID:     ev.OrderID,
		CustomerID:  ev.CustomerID,
		ItemID:      ev.ItemID,
		Quantity:    ev.Quantity,
		Amount:      ev.Amount,
		LedgerID:    ev.LedgerID,
		Status:      ProjectionStatusCreated,
		EventID:     eventID,
		CreatedAt:   ev.CreatedAt,
		ProjectedAt: now,
	})
	if err != nil {
		return fmt.Errorf("marshal order view: %w", err)
	}

	_, err = p.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &p.processedTable,
					Item:                marker,
					ConditionExpression: awsString("attribute_not_exists(event_id)"),
				},
			},
			{
				Put: &types.Put{
					TableName: &p.tableName,
					Item:      view,
				},
			},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrAlreadyApplied
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order view by order_id. Returns (nil, nil) if not found.
func (p *Projection) Get(ctx context.Context, orderID string) (*View, error) {
	out, err := p.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &p.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var v View
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, fmt.Errorf("unmarshal order view: %w", err)
	}
	return &v, nil
}

func isConditionFailure(err error) bool {
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
				return true
			}
		}
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ConditionalCheckFailedException"
	}
	return false
}

func awsString(s string) *string { return &s }
