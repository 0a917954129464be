// Package idempotency coordinates create-order requests keyed by a
// client-supplied idempotency key so each logical request takes effect once
// and every retry gets the original response back.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/imrishuroy/go-exactly-once-orders/internal/fingerprint"
	"github.com/imrishuroy/go-exactly-once-orders/internal/logger"
	"github.com/imrishuroy/go-exactly-once-orders/internal/metrics"
	"github.com/imrishuroy/go-exactly-once-orders/internal/orders"
	"github.com/imrishuroy/go-exactly-once-orders/internal/storage"
)

// OrderCreator runs the side effects of a first-time request on tx.
type OrderCreator interface {
	CreateOrder(ctx context.Context, tx *gorm.DB, in orders.CreateOrderInput) (*orders.Order, *orders.LedgerEntry, error)
}

// Coordinator resolves a request against its idempotency record inside a
// single write transaction.
type Coordinator struct {
	engine  *storage.Engine
	store   *Store
	creator OrderCreator
	metrics metrics.Recorder
	log     *zap.Logger
	tracer  trace.Tracer
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithMetrics sets the outcome recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(c *Coordinator) {
		if rec != nil {
			c.metrics = rec
		}
	}
}

// WithLogger sets the base logger. Request fields are added from ctx per call.
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(engine *storage.Engine, store *Store, creator OrderCreator, opts ...Option) *Coordinator {
	c := &Coordinator{
		engine:  engine,
		store:   store,
		creator: creator,
		metrics: metrics.Nop{},
		log:     zap.L(),
		tracer:  otel.Tracer("github.com/imrishuroy/go-exactly-once-orders/internal/idempotency"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle runs req exactly once per key:
//
//   - unknown key: create the order, store the 201 response, return it
//   - known key, different payload: 409, nothing written
//   - known key, same payload, stored response: that response, verbatim
//   - known key, same payload, no stored response: 500, nothing written
//
// Conflict and incomplete outcomes are responses, not errors. Errors are
// storage failures (storage.ErrLockTimeout, storage.ErrStore), workflow
// failures, and ErrSimulatedPostCommitFailure after a committed create.
func (c *Coordinator) Handle(ctx context.Context, req Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "idempotency.Handle",
		trace.WithAttributes(attribute.String("idempotency.key", req.Key)))
	defer span.End()

	log := logger.WithContext(ctx, c.log).With(zap.String("idempotency_key", req.Key))

	hash, err := fingerprint.Of(req.Payload)
	if err != nil {
		return nil, c.fail(span, err)
	}

	// once started, the transaction runs to commit or rollback
	txCtx := context.WithoutCancel(ctx)
	resp, err := storage.WithTransaction(txCtx, c.engine, func(tx *gorm.DB) (*Response, error) {
		return c.resolve(txCtx, tx, req, hash)
	})
	switch {
	case errors.Is(err, ErrKeyConflict):
		log.Warn("orders.create.conflict")
		resp = errorResponse(http.StatusConflict, MessageConflict, metrics.OutcomeConflict)
	case errors.Is(err, ErrIncompleteRecord):
		log.Error("orders.create.incomplete_record")
		resp = errorResponse(http.StatusInternalServerError, MessageIncomplete, metrics.OutcomeIncomplete)
	case err != nil:
		log.Error("orders.create.failed", zap.Error(err))
		c.metrics.ObserveOutcome(metrics.OutcomeFailed)
		return nil, c.fail(span, err)
	}

	c.metrics.ObserveOutcome(resp.Outcome)
	span.SetAttributes(
		attribute.String("idempotency.outcome", resp.Outcome),
		attribute.Int("http.status_code", resp.StatusCode),
	)

	switch resp.Outcome {
	case metrics.OutcomeCreated:
		log.Info("orders.create.success", zap.String("order_id", resp.OrderID))
		if req.SimulateFailureAfterCommit {
			log.Warn("orders.create.fail_after_commit", zap.String("order_id", resp.OrderID))
			return nil, c.fail(span, ErrSimulatedPostCommitFailure)
		}
	case metrics.OutcomeReplayed:
		log.Info("orders.create.replay", zap.String("order_id", resp.OrderID))
	}
	return resp, nil
}

// resolve runs on the write transaction. Conflict and incomplete records come
// back as errors so the transaction rolls back without writing.
func (c *Coordinator) resolve(ctx context.Context, tx *gorm.DB, req Request, hash string) (*Response, error) {
	rec, err := c.store.Get(ctx, tx, req.Key)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if rec.RequestHash != hash {
			return nil, ErrKeyConflict
		}
		if !rec.Completed() {
			return nil, ErrIncompleteRecord
		}
		body := []byte(*rec.ResponseBody)
		return &Response{
			StatusCode: *rec.StatusCode,
			Body:       body,
			Outcome:    metrics.OutcomeReplayed,
			OrderID:    orderIDOf(body),
		}, nil
	}

	if _, err := c.store.InsertPlaceholder(ctx, tx, req.Key, hash); err != nil {
		return nil, err
	}
	order, _, err := c.creator.CreateOrder(ctx, tx, req.Payload)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(createdBody{OrderID: order.OrderID, Status: "created"})
	if err != nil {
		return nil, err
	}
	if err := c.store.Complete(ctx, tx, req.Key, http.StatusCreated, body); err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: http.StatusCreated,
		Body:       body,
		Outcome:    metrics.OutcomeCreated,
		OrderID:    order.OrderID,
	}, nil
}

func (c *Coordinator) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func errorResponse(status int, message, outcome string) *Response {
	// errorBody always marshals
	body, _ := json.Marshal(errorBody{Error: message})
	return &Response{StatusCode: status, Body: body, Outcome: outcome}
}

func orderIDOf(body []byte) string {
	var b createdBody
	if err := json.Unmarshal(body, &b); err != nil {
		return ""
	}
	return b.OrderID
}
