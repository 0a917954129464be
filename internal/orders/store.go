package orders

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imrishuroy/go-exactly-once-orders/internal/storage"
)

// Store persists orders and ledger entries in the SQL store.
type Store struct {
	db *gorm.DB
}

// NewStore returns a Store reading through db. Writes always go through the
// transaction handle passed by the caller.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Insert writes a new order on tx.
func (s *Store) Insert(ctx context.Context, tx *gorm.DB, o *Order) error {
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(o).Error; err != nil {
		return storage.Classify("insert order", err)
	}
	return nil
}

// InsertLedgerEntry writes a ledger entry on tx. The referenced order must
// already exist in the same transaction.
func (s *Store) InsertLedgerEntry(ctx context.Context, tx *gorm.DB, e *LedgerEntry) error {
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(e).Error; err != nil {
		return storage.Classify("insert ledger entry", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Classify("get order", err)
	}
	return &o, nil
}

// LedgerEntryFor fetches the ledger entry charging orderID. Returns (nil, nil) if not found.
func (s *Store) LedgerEntryFor(ctx context.Context, orderID string) (*LedgerEntry, error) {
	var e LedgerEntry
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Classify("get ledger entry", err)
	}
	return &e, nil
}
