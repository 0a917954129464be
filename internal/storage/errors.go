package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrLockTimeout is returned when the write lock could not be acquired in time.
	ErrLockTimeout = errors.New("storage: write lock timeout")
	// ErrStore is returned for any other failure of the underlying store.
	ErrStore = errors.New("storage: store error")
)

// StoreError describes a failed store operation.
// It matches ErrLockTimeout or ErrStore under errors.Is.
type StoreError struct {
	Op   string
	Err  error
	kind error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{e.kind, e.Err} }

// Classify wraps a raw driver error as a *StoreError. nil stays nil and
// errors that are already classified are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	kind := ErrStore
	if isLockTimeout(err) {
		kind = ErrLockTimeout
	}
	return &StoreError{Op: op, Err: err, kind: kind}
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// lock_not_available
		return pgErr.Code == "55P03"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
