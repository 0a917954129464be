package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-exactly-once-orders/internal/logger"
	"github.com/imrishuroy/go-exactly-once-orders/internal/metrics"
	"github.com/imrishuroy/go-exactly-once-orders/internal/orders"
	"github.com/imrishuroy/go-exactly-once-orders/internal/outbox"
)

// Projector applies an order.created event to the read model.
type Projector interface {
	Apply(ctx context.Context, eventID string, ev orders.CreatedEvent) error
}

// Processor handles SQS messages relayed from the outbox.
type Processor struct {
	projection Projector
	metrics    metrics.Recorder
	log        *zap.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(projection Projector, rec metrics.Recorder, log *zap.Logger) *Processor {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{projection: projection, metrics: rec, log: log}
}

// Handle receives an SQS batch event and processes each message. Failed
// messages are reported back individually so only they are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error("worker.message_failed", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg outbox.Message
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	ctx = logger.WithRequestID(ctx, msg.CorrelationID)
	log := logger.WithContext(ctx, p.log).With(
		zap.String("event_id", msg.EventID),
		zap.String("event_type", msg.EventType),
		zap.String("order_id", msg.AggregateID),
	)

	if msg.EventType != orders.EventTypeCreated {
		// nothing projects other event types yet
		log.Warn("worker.unknown_event_type")
		return nil
	}

	var created orders.CreatedEvent
	if err := json.Unmarshal(msg.Payload, &created); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msg.EventType, err)
	}

	err := p.projection.Apply(ctx, msg.EventID, created)
	if errors.Is(err, orders.ErrAlreadyApplied) {
		p.metrics.ObserveEvent(metrics.EventDuplicate)
		log.Info("worker.duplicate_event")
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply event %s: %w", msg.EventID, err)
	}

	p.metrics.ObserveEvent(metrics.EventApplied)
	log.Info("worker.event_applied")
	return nil
}
