package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/imrishuroy/go-exactly-once-orders/internal/storage"
)

// Store encapsulates idempotency record operations. Every method runs on the
// transaction handle it is given.
type Store struct {
	nowFunc func() time.Time
}

// NewStore returns a configured Store.
func NewStore() *Store {
	return &Store{nowFunc: func() time.Time { return time.Now().UTC() }}
}

// Get fetches the record for key. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, tx *gorm.DB, key string) (*Record, error) {
	var rec Record
	err := tx.WithContext(ctx).Where("idempotency_key = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Classify("get idempotency record", err)
	}
	return &rec, nil
}

// InsertPlaceholder creates the record for key with no stored response. The
// primary key rejects a second record for the same key.
func (s *Store) InsertPlaceholder(ctx context.Context, tx *gorm.DB, key, requestHash string) (*Record, error) {
	now := s.nowFunc()
	rec := &Record{
		IdempotencyKey: key,
		RequestHash:    requestHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, storage.Classify("insert idempotency placeholder", err)
	}
	return rec, nil
}

// Complete stores the response for key. It only succeeds on a record that
// has no response yet; anything else returns ErrAlreadyCompleted.
func (s *Store) Complete(ctx context.Context, tx *gorm.DB, key string, statusCode int, body []byte) error {
	res := tx.WithContext(ctx).Model(&Record{}).
		Where("idempotency_key = ? AND status_code IS NULL", key).
		Updates(map[string]any{
			"status_code":   statusCode,
			"response_body": string(body),
			"updated_at":    s.nowFunc(),
		})
	if res.Error != nil {
		return storage.Classify("complete idempotency record", res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("complete %q: %w", key, ErrAlreadyCompleted)
	}
	return nil
}
