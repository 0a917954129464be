package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInvalidInput is returned when a create-order input fails the store's
// own checks. Request validation normally catches these first.
var ErrInvalidInput = errors.New("orders: invalid input")

// EventSink records domain events inside the caller's transaction.
type EventSink interface {
	Append(ctx context.Context, tx *gorm.DB, aggregateID, eventType string, payload any) error
}

// Workflow creates an order and its ledger entry as one unit of work.
type Workflow struct {
	store   *Store
	events  EventSink
	nowFunc func() time.Time
	newID   func() string
}

// WorkflowOption customizes a Workflow.
type WorkflowOption func(*Workflow)

// WithEventSink makes the workflow append an order.created event on every create.
func WithEventSink(sink EventSink) WorkflowOption {
	return func(w *Workflow) { w.events = sink }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) WorkflowOption {
	return func(w *Workflow) { w.nowFunc = now }
}

// NewWorkflow returns a Workflow writing through store.
func NewWorkflow(store *Store, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		store:   store,
		nowFunc: func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CreateOrder inserts an order and the ledger entry charging it on tx.
// The amount charged equals the quantity ordered. Nothing is committed here:
// the caller's transaction decides whether both rows become visible.
func (w *Workflow) CreateOrder(ctx context.Context, tx *gorm.DB, in CreateOrderInput) (*Order, *LedgerEntry, error) {
	if strings.TrimSpace(in.CustomerID) == "" || strings.TrimSpace(in.ItemID) == "" || in.Quantity < 1 {
		return nil, nil, fmt.Errorf("%w: customer_id, item_id and a positive quantity are required", ErrInvalidInput)
	}

	now := w.nowFunc()
	order := &Order{
		OrderID:    w.newID(),
		CustomerID: in.CustomerID,
		ItemID:     in.ItemID,
		Quantity:   in.Quantity,
		CreatedAt:  now,
	}
	if err := w.store.Insert(ctx, tx, order); err != nil {
		return nil, nil, err
	}

	entry := &LedgerEntry{
		LedgerID:   w.newID(),
		OrderID:    order.OrderID,
		CustomerID: in.CustomerID,
		Amount:     int64(in.Quantity),
		CreatedAt:  now,
	}
	if err := w.store.InsertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, nil, err
	}

	if w.events != nil {
		ev := CreatedEvent{
			OrderID:    order.OrderID,
			LedgerID:   entry.LedgerID,
			CustomerID: order.CustomerID,
			ItemID:     order.ItemID,
			Quantity:   order.Quantity,
			Amount:     entry.Amount,
			CreatedAt:  now,
		}
		if err := w.events.Append(ctx, tx, order.OrderID, EventTypeCreated, ev); err != nil {
			return nil, nil, fmt.Errorf("append %s event: %w", EventTypeCreated, err)
		}
	}
	return order, entry, nil
}
