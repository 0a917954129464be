package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/imrishuroy/go-exactly-once-orders/internal/logger"
	"github.com/imrishuroy/go-exactly-once-orders/internal/storage"
)

// Store reads and writes outbox events.
type Store struct {
	db      *gorm.DB
	nowFunc func() time.Time
}

// NewStore returns a Store reading through db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:      db,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Append inserts a pending event on tx. The request id carried by ctx, if
// any, becomes the event's correlation id.
func (s *Store) Append(ctx context.Context, tx *gorm.DB, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	ev := &Event{
		EventID:       uuid.NewString(),
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       string(body),
		CorrelationID: logger.RequestIDFromContext(ctx),
		Status:        StatusPending,
		CreatedAt:     s.nowFunc(),
	}
	if err := tx.WithContext(ctx).Create(ev).Error; err != nil {
		return storage.Classify("append outbox event", err)
	}
	return nil
}

// ListPending returns up to limit pending events, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("created_at ASC").Order("event_id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, storage.Classify("list pending events", err)
	}
	return events, nil
}

// MarkPublished flips a pending event to published on tx. Marking an event
// that is no longer pending is a no-op.
func (s *Store) MarkPublished(ctx context.Context, tx *gorm.DB, eventID string) error {
	now := s.nowFunc()
	err := tx.WithContext(ctx).Model(&Event{}).
		Where("event_id = ? AND status = ?", eventID, StatusPending).
		Updates(map[string]any{
			"status":       StatusPublished,
			"published_at": now,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   "",
		}).Error
	return storage.Classify("mark event published", err)
}

// RecordFailure counts a failed publish attempt on tx.
func (s *Store) RecordFailure(ctx context.Context, tx *gorm.DB, eventID string, cause error) error {
	err := tx.WithContext(ctx).Model(&Event{}).
		Where("event_id = ? AND status = ?", eventID, StatusPending).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
		}).Error
	return storage.Classify("record publish failure", err)
}
