package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/imrishuroy/go-exactly-once-orders/internal/logger"
	"github.com/imrishuroy/go-exactly-once-orders/internal/metrics"
	"github.com/imrishuroy/go-exactly-once-orders/internal/storage"
)

// Sender delivers one message body with string attributes.
type Sender interface {
	SendOrderMessage(ctx context.Context, messageBody string, attributes map[string]string) (string, error)
}

// Relay publishes pending outbox events. Delivery is at-least-once: an event
// sent but not yet marked published is sent again on the next pass.
type Relay struct {
	engine    *storage.Engine
	store     *Store
	sender    Sender
	metrics   metrics.Recorder
	log       *zap.Logger
	batchSize int
}

// NewRelay builds a Relay. A nil recorder or logger falls back to a no-op.
func NewRelay(engine *storage.Engine, store *Store, sender Sender, rec metrics.Recorder, log *zap.Logger, batchSize int) *Relay {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Relay{
		engine:    engine,
		store:     store,
		sender:    sender,
		metrics:   rec,
		log:       log,
		batchSize: batchSize,
	}
}

// PublishPending sends one batch of pending events in creation order and
// returns how many were published. The first send failure is recorded on the
// event and stops the batch so later events never overtake it.
func (r *Relay) PublishPending(ctx context.Context) (int, error) {
	events, err := r.store.ListPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	// a sent event is always marked, even if ctx is cancelled mid-batch
	txCtx := context.WithoutCancel(ctx)
	published := 0
	for _, ev := range events {
		log := r.log.With(
			zap.String("event_id", ev.EventID),
			zap.String("event_type", ev.EventType),
			zap.String("order_id", ev.AggregateID),
			zap.String("request_id", ev.CorrelationID),
		)

		body, err := json.Marshal(MessageFor(ev))
		if err != nil {
			return published, fmt.Errorf("marshal outbox message: %w", err)
		}
		attrs := map[string]string{
			"event_id":       ev.EventID,
			"order_id":       ev.AggregateID,
			"event_type":     ev.EventType,
			"correlation_id": ev.CorrelationID,
		}

		msgID, sendErr := r.sender.SendOrderMessage(ctx, string(body), attrs)
		if sendErr != nil {
			r.metrics.ObserveEvent(metrics.EventPublishFailed)
			log.Warn("outbox.publish_failed", zap.Int("attempts", ev.Attempts+1), zap.Error(sendErr))
			if err := r.engine.Do(txCtx, func(tx *gorm.DB) error {
				return r.store.RecordFailure(txCtx, tx, ev.EventID, sendErr)
			}); err != nil {
				log.Error("outbox.record_failure_failed", zap.Error(err))
			}
			return published, fmt.Errorf("publish event %s: %w", ev.EventID, sendErr)
		}

		if err := r.engine.Do(txCtx, func(tx *gorm.DB) error {
			return r.store.MarkPublished(txCtx, tx, ev.EventID)
		}); err != nil {
			return published, err
		}
		published++
		r.metrics.ObserveEvent(metrics.EventPublished)
		log.Info("outbox.published", zap.String("message_id", msgID))
	}
	return published, nil
}

// Run calls PublishPending every interval until ctx is cancelled. Pass
// errors are logged and the loop continues.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.PublishPending(ctx); err != nil && ctx.Err() == nil {
				logger.WithContext(ctx, r.log).Warn("outbox.pass_failed", zap.Error(err))
			}
		}
	}
}
