// Package outbox stores domain events in the same transaction as the state
// change that produced them and relays them to SQS afterwards.
package outbox

import (
	"encoding/json"
	"time"
)

// Event statuses.
const (
	StatusPending   = "pending"
	StatusPublished = "published"
)

// Event is a row of the outbox_events table.
type Event struct {
	EventID       string     `gorm:"column:event_id;primaryKey;size:36"`
	AggregateID   string     `gorm:"column:aggregate_id;size:36;not null;index"`
	EventType     string     `gorm:"column:event_type;size:64;not null"`
	Payload       string     `gorm:"column:payload;type:text;not null"`
	CorrelationID string     `gorm:"column:correlation_id;size:64"`
	Status        string     `gorm:"column:status;size:16;not null;index:idx_outbox_status_created,priority:1"`
	Attempts      int        `gorm:"column:attempts;not null;default:0"`
	LastError     string     `gorm:"column:last_error;type:text"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null;index:idx_outbox_status_created,priority:2"`
	PublishedAt   *time.Time `gorm:"column:published_at"`
}

func (Event) TableName() string { return "outbox_events" }

// Message is the envelope sent to the queue for every event.
type Message struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// MessageFor builds the queue envelope for e.
func MessageFor(e Event) Message {
	return Message{
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		CorrelationID: e.CorrelationID,
		OccurredAt:    e.CreatedAt,
		Payload:       json.RawMessage(e.Payload),
	}
}
