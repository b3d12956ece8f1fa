package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyshop/backoffice/internal/port"
)

const sendTimeout = 5 * time.Second

// Sink delivers one event to an external channel.
type Sink interface {
	Send(ctx context.Context, event port.OrderEvent) error
	Close() error
}

// Dispatcher queues events and delivers them from a fixed worker pool.
// Notify never blocks: when the queue is full the event is dropped.
type Dispatcher struct {
	sink   Sink
	queue  chan port.OrderEvent
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sink Sink, workers, queueSize int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		sink:   sink,
		queue:  make(chan port.OrderEvent, queueSize),
		logger: logger,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	return d
}

func (d *Dispatcher) Notify(ctx context.Context, event port.OrderEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("notification dropped, dispatcher closed", zap.String("event_id", event.ID))
		return
	}

	select {
	case d.queue <- event:
	default:
		d.logger.Warn("notification dropped, queue full",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Int64("order_id", event.OrderID),
		)
	}
}

// Close stops accepting events, waits for queued ones to be delivered and
// closes the sink.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	return d.sink.Close()
}

func (d *Dispatcher) workerLoop(id int) {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)

		if err := d.sink.Send(ctx, event); err != nil {
			d.logger.Warn("notification failed",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.Int64("order_id", event.OrderID),
				zap.Error(err),
			)
		} else {
			d.logger.Debug("notification sent",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
			)
		}

		cancel()
	}
}
