package validation

import "github.com/imrishuroy/go-exactly-once-orders/internal/orders"

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	CustomerID string `json:"customer_id" validate:"required,max=128"` // opaque customer id
	ItemID     string `json:"item_id" validate:"required,max=128"`     // opaque item id
	Quantity   int    `json:"quantity" validate:"required,min=1"`      // must be >= 1
}

// ToInput converts the validated request into the workflow input.
func (r CreateOrderRequest) ToInput() orders.CreateOrderInput {
	return orders.CreateOrderInput{
		CustomerID: r.CustomerID,
		ItemID:     r.ItemID,
		Quantity:   r.Quantity,
	}
}
