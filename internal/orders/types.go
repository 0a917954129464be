package orders

import "time"

// EventTypeCreated is the outbox event type written for every new order.
const EventTypeCreated = "order.created"

// ProjectionStatusCreated is the status of a freshly projected order.
const ProjectionStatusCreated = "CREATED"

// CreateOrderInput is the validated payload of a create-order request.
// Its JSON form is what the request fingerprint is computed over.
type CreateOrderInput struct {
	CustomerID string `json:"customer_id"`
	ItemID     string `json:"item_id"`
	Quantity   int    `json:"quantity"`
}

// Order is the row stored in the orders table.
type Order struct {
	OrderID    string    `gorm:"column:order_id;primaryKey;size:36" json:"order_id"`
	CustomerID string    `gorm:"column:customer_id;size:128;not null;index" json:"customer_id"`
	ItemID     string    `gorm:"column:item_id;size:128;not null" json:"item_id"`
	Quantity   int       `gorm:"column:quantity;not null;check:chk_orders_quantity,quantity > 0" json:"quantity"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"created_at"`

	// Ledger is the charge for this order; ledger_entries.order_id references orders.
	Ledger *LedgerEntry `gorm:"foreignKey:OrderID;references:OrderID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
}

func (Order) TableName() string { return "orders" }

// LedgerEntry is the charge recorded for an order, one per order.
type LedgerEntry struct {
	LedgerID   string    `gorm:"column:ledger_id;primaryKey;size:36" json:"ledger_id"`
	OrderID    string    `gorm:"column:order_id;size:36;not null;uniqueIndex" json:"order_id"`
	CustomerID string    `gorm:"column:customer_id;size:128;not null" json:"customer_id"`
	Amount     int64     `gorm:"column:amount;not null" json:"amount"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// CreatedEvent is the payload of an order.created event.
type CreatedEvent struct {
	OrderID    string    `json:"order_id"`
	LedgerID   string    `json:"ledger_id"`
	CustomerID string    `json:"customer_id"`
	ItemID     string    `json:"item_id"`
	Quantity   int       `json:"quantity"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

// View is the denormalized order stored in the DynamoDB projection table.
type View struct {
	OrderID     string    `dynamodbav:"order_id" json:"order_id"` // PK
	CustomerID  string    `dynamodbav:"customer_id" json:"customer_id"`
	ItemID      string    `dynamodbav:"item_id" json:"item_id"`
	Quantity    int       `dynamodbav:"quantity" json:"quantity"`
	Amount      int64     `dynamodbav:"amount" json:"amount"`
	LedgerID    string    `dynamodbav:"ledger_id" json:"ledger_id"`
	Status      string    `dynamodbav:"status" json:"status"`
	EventID     string    `dynamodbav:"event_id" json:"event_id"`
	CreatedAt   time.Time `dynamodbav:"created_at" json:"created_at"`
	ProjectedAt time.Time `dynamodbav:"projected_at" json:"projected_at"`
}

// processedEvent marks an event id as applied to the projection.
type processedEvent struct {
	EventID     string    `dynamodbav:"event_id"` // PK
	OrderID     string    `dynamodbav:"order_id"`
	ProcessedAt time.Time `dynamodbav:"processed_at"`
}
