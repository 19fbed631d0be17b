package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/authcore/pkg/metrics"
)

const defaultBufferSize = 256

var (
	// ErrBusFull is returned when the buffer has no room for another event.
	ErrBusFull = errors.New("events: bus is full")
	// ErrBusClosed is returned when publishing after Close.
	ErrBusClosed = errors.New("events: bus is closed")
)

// Handler processes a single event. Returned errors are logged by the bus.
type Handler func(ctx context.Context, evt Event) error

// Bus is an in-process, buffered, single-consumer event channel.
type Bus struct {
	ch     chan Event
	log    *zap.Logger
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewBus creates a bus holding up to buffer pending events.
func NewBus(buffer int, log *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		ch:   make(chan Event, buffer),
		log:  log,
		done: make(chan struct{}),
	}
}

// Publish enqueues evt without blocking.
func (b *Bus) Publish(evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		metrics.EventsDropped.WithLabelValues(evt.EventName()).Inc()
		return ErrBusClosed
	}

	select {
	case b.ch <- evt:
		return nil
	default:
		metrics.EventsDropped.WithLabelValues(evt.EventName()).Inc()
		return ErrBusFull
	}
}

// Run delivers events to handler until ctx is cancelled or the bus is closed and drained.
// It must be called from a single goroutine.
func (b *Bus) Run(ctx context.Context, handler Handler) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.ch:
			if !ok {
				return
			}
			b.dispatch(ctx, handler, evt)
		}
	}
}

// Close stops accepting events. Events already buffered are still delivered by Run.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}

// Done is closed when Run returns.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

func (b *Bus) dispatch(ctx context.Context, handler Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", zap.String("event", evt.EventName()), zap.Any("panic", r))
		}
	}()

	if err := handler(ctx, evt); err != nil {
		b.log.Error("event handler failed", zap.String("event", evt.EventName()), zap.Error(err))
	}
}
