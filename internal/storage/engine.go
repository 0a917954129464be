// Package storage owns the connection to the transactional store and the
// write-intent transaction discipline every mutating workflow runs under.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Engine runs functions inside serializing write transactions.
//
// The transaction start itself takes the store-wide write lock (BEGIN
// IMMEDIATE on sqlite, a self-conflicting table lock on postgres), so two
// writers never interleave: the second one blocks at start until the first
// commits or rolls back.
type Engine struct {
	db          *gorm.DB
	dialect     string
	lockTimeout time.Duration
	lockTable   string
	tracer      trace.Tracer
}

// DB returns the handle for reads outside a transaction.
func (e *Engine) DB() *gorm.DB { return e.db }

// Dialect reports the store dialect.
func (e *Engine) Dialect() string { return e.dialect }

// AutoMigrate creates or updates the tables for models.
func (e *Engine) AutoMigrate(models ...any) error {
	if err := e.db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (e *Engine) Close() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Do runs fn inside a write transaction. See WithTransaction.
func (e *Engine) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	_, err := WithTransaction(ctx, e, func(tx *gorm.DB) (struct{}, error) {
		return struct{}{}, fn(tx)
	})
	return err
}

// WithTransaction runs fn inside a write transaction and returns its value.
//
// fn returning nil commits; fn returning an error or panicking rolls back and
// the error (or panic) reaches the caller unchanged. Failures of the store
// itself come back as *StoreError. Caller cancellation is ignored once the
// call is made: a transaction always runs to commit or rollback.
func WithTransaction[T any](ctx context.Context, e *Engine, fn func(tx *gorm.DB) (T, error)) (T, error) {
	var result T

	ctx = context.WithoutCancel(ctx)
	ctx, span := e.tracer.Start(ctx, "storage.transaction",
		trace.WithAttributes(attribute.String("db.system", e.dialect)))
	defer span.End()

	acquired := false
	err := e.db.WithContext(ctx).Connection(func(pinned *gorm.DB) error {
		acquired = true
		// Every statement below reuses the pinned connection but starts from
		// a clean statement, like the tx handle gorm.DB.Begin hands out.
		conn := pinned.Session(&gorm.Session{NewDB: true})
		if err := e.begin(conn); err != nil {
			return err
		}

		finished := false
		defer func() {
			if !finished {
				e.rollback(conn)
			}
		}()

		out, err := fn(conn)
		if err != nil {
			return err
		}
		if err := conn.Exec("COMMIT").Error; err != nil {
			return Classify("commit", err)
		}
		finished = true
		result = out
		return nil
	})
	if err != nil && !acquired {
		err = Classify("acquire connection", err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (e *Engine) begin(conn *gorm.DB) error {
	switch e.dialect {
	case DialectPostgres:
		if err := conn.Exec("BEGIN").Error; err != nil {
			return Classify("begin", err)
		}
		stmts := []string{
			fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", e.lockTimeout.Milliseconds()),
			fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", e.lockTable),
		}
		for _, stmt := range stmts {
			if err := conn.Exec(stmt).Error; err != nil {
				e.rollback(conn)
				return Classify("acquire write lock", err)
			}
		}
		return nil
	default:
		if err := conn.Exec("BEGIN IMMEDIATE").Error; err != nil {
			return Classify("begin immediate", err)
		}
		return nil
	}
}

// rollback aborts the open transaction. If that fails the connection is
// discarded so a half-open transaction never returns to the pool.
func (e *Engine) rollback(conn *gorm.DB) {
	if err := conn.Exec("ROLLBACK").Error; err == nil {
		return
	}
	if c, ok := conn.Statement.ConnPool.(*sql.Conn); ok {
		_ = c.Raw(func(any) error { return driver.ErrBadConn })
	}
}
