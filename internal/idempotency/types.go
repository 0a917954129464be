package idempotency

import (
	"time"

	"github.com/imrishuroy/go-exactly-once-orders/internal/orders"
)

// Status values derived from whether a record carries a stored response.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

// Record is the row stored in the idempotency_records table. StatusCode and
// ResponseBody are set together, once, in the transaction that created the
// record.
type Record struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey;size:255"`
	RequestHash    string    `gorm:"column:request_hash;size:64;not null"`
	StatusCode     *int      `gorm:"column:status_code"`
	ResponseBody   *string   `gorm:"column:response_body;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

func (Record) TableName() string { return "idempotency_records" }

// Completed reports whether the record holds a stored response.
func (r *Record) Completed() bool {
	return r.StatusCode != nil && r.ResponseBody != nil
}

// Status returns StatusDone once a response is stored, StatusInProgress before.
func (r *Record) Status() string {
	if r.Completed() {
		return StatusDone
	}
	return StatusInProgress
}

// Request is one create-order call keyed by a client-supplied idempotency key.
type Request struct {
	Key     string
	Payload orders.CreateOrderInput
	// SimulateFailureAfterCommit drops the response after a successful create
	// commit, as if it were lost on the way to the caller.
	SimulateFailureAfterCommit bool
}

// Response is the status and JSON body to send back to the caller.
type Response struct {
	StatusCode int
	Body       []byte
	Outcome    string
	// OrderID is set on created and replayed responses.
	OrderID string
}

// createdBody is the response stored for a first-time create.
type createdBody struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type errorBody struct {
	Error string `json:"error"`
}
