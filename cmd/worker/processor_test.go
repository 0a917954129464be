package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/imrishuroy/go-exactly-once-orders/internal/metrics"
	"github.com/imrishuroy/go-exactly-once-orders/internal/orders"
	"github.com/imrishuroy/go-exactly-once-orders/internal/outbox"
)

// --- mock implementations ---

type mockProjector struct {
	mu      sync.Mutex
	applied map[string]orders.CreatedEvent
	failFor string
}

func newMockProjector() *mockProjector {
	return &mockProjector{applied: map[string]orders.CreatedEvent{}}
}

func (m *mockProjector) Apply(_ context.Context, eventID string, ev orders.CreatedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.OrderID == m.failFor {
		return errors.New("dynamodb unavailable")
	}
	if _, ok := m.applied[eventID]; ok {
		return orders.ErrAlreadyApplied
	}
	m.applied[eventID] = ev
	return nil
}

type eventCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *eventCounter) ObserveOutcome(string) {}

func (c *eventCounter) ObserveEvent(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[kind]++
}

func sqsMessage(t *testing.T, messageID, eventID, orderID string) events.SQSMessage {
	t.Helper()
	payload, err := json.Marshal(orders.CreatedEvent{
		OrderID:    orderID,
		LedgerID:   "l-" + orderID,
		CustomerID: "c1",
		ItemID:     "i1",
		Quantity:   2,
		Amount:     2,
		CreatedAt:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	body, err := json.Marshal(outbox.Message{
		EventID:       eventID,
		EventType:     orders.EventTypeCreated,
		AggregateID:   orderID,
		CorrelationID: "req-1",
		Payload:       payload,
	})
	require.NoError(t, err)
	return events.SQSMessage{MessageId: messageID, Body: string(body)}
}

// --- test cases ---

func TestWorkerProcess_Success(t *testing.T) {
	proj := newMockProjector()
	counter := &eventCounter{}
	p := NewProcessor(proj, counter, zaptest.NewLogger(t))

	resp, err := p.Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{sqsMessage(t, "m1", "e1", "o1")},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, "o1", proj.applied["e1"].OrderID)
	assert.Equal(t, 1, counter.counts[metrics.EventApplied])
}

func TestWorkerProcess_DuplicateDeliveryIsAcknowledged(t *testing.T) {
	proj := newMockProjector()
	counter := &eventCounter{}
	p := NewProcessor(proj, counter, zaptest.NewLogger(t))

	ev := events.SQSEvent{Records: []events.SQSMessage{sqsMessage(t, "m1", "e1", "o1")}}
	_, err := p.Handle(context.Background(), ev)
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 1, counter.counts[metrics.EventApplied])
	assert.Equal(t, 1, counter.counts[metrics.EventDuplicate])
}

func TestWorkerProcess_ReportsOnlyFailedMessages(t *testing.T) {
	proj := newMockProjector()
	proj.failFor = "o2"
	p := NewProcessor(proj, nil, zaptest.NewLogger(t))

	resp, err := p.Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{
			sqsMessage(t, "m1", "e1", "o1"),
			sqsMessage(t, "m2", "e2", "o2"),
			{MessageId: "m3", Body: "not json"},
			sqsMessage(t, "m4", "e4", "o4"),
		},
	})
	require.NoError(t, err)

	var failed []string
	for _, f := range resp.BatchItemFailures {
		failed = append(failed, f.ItemIdentifier)
	}
	assert.Equal(t, []string{"m2", "m3"}, failed)
	assert.Len(t, proj.applied, 2)
}

func TestWorkerProcess_SkipsUnknownEventTypes(t *testing.T) {
	proj := newMockProjector()
	p := NewProcessor(proj, nil, nil)

	body, _ := json.Marshal(outbox.Message{EventID: "e9", EventType: "order.shipped", AggregateID: "o9"})
	resp, err := p.Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{{MessageId: "m9", Body: string(body)}},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Empty(t, proj.applied)
}
