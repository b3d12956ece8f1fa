package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/polyshop/backoffice/internal/core/domain"
	"github.com/polyshop/backoffice/internal/port"
)

type recordingSink struct {
	mu     sync.Mutex
	events []port.OrderEvent
	block  chan struct{}
	err    error
	closed bool
}

func (s *recordingSink) Send(ctx context.Context, event port.OrderEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func testEvent(id string) port.OrderEvent {
	return port.OrderEvent{
		ID:          id,
		Type:        port.EventOrderStatusChanged,
		OrderID:     77,
		UserID:      5,
		Status:      domain.OrderStatusCancelled,
		PrevStatus:  domain.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("19.90"),
		OccurredAt:  time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, 3, 100, nil)

	for i := 0; i < 50; i++ {
		d.Notify(context.Background(), testEvent("e"))
	}
	require.NoError(t, d.Close())

	assert.Equal(t, 50, sink.count())
	assert.True(t, sink.closed)

	// late events are ignored, not panicking on the closed queue
	d.Notify(context.Background(), testEvent("late"))
	assert.NoError(t, d.Close())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, 1, 1, zap.New(core))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			d.Notify(context.Background(), testEvent("burst"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(sink.block)
	require.NoError(t, d.Close())

	assert.Less(t, sink.count(), 10)
	assert.NotZero(t, logs.FilterMessage("notification dropped, queue full").Len())
}

func TestDispatcher_SinkFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := &recordingSink{err: errors.New("broker unavailable")}
	d := NewDispatcher(sink, 1, 10, zap.New(core))

	d.Notify(context.Background(), testEvent("e1"))
	require.NoError(t, d.Close())

	assert.Equal(t, 1, logs.FilterMessage("notification failed").Len())
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Send(context.Background(), testEvent("e1")))

	entries := logs.FilterMessage("order event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "CANCELLED", entries[0].ContextMap()["status"])
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_KeysByOrder(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w}

	require.NoError(t, sink.Send(context.Background(), testEvent("e1")))
	require.NoError(t, sink.Close())

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "77", string(msg.Key))
	assert.True(t, w.closed)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "order.status_changed", decoded["type"])
	assert.Equal(t, "PENDING", decoded["prevStatus"])
}

func TestAMQPPublishing(t *testing.T) {
	msg, err := amqpPublishing(testEvent("e9"))
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "e9", msg.MessageId)
	assert.Equal(t, "order.status_changed", msg.Type)
	assert.Contains(t, string(msg.Body), `"orderId":77`)
}
