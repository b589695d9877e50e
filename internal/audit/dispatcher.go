package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher hands audit events to a Sink on a single background goroutine,
// so a slow sink costs the request path at most a channel send. All methods
// are safe for concurrent use and on a nil *Dispatcher.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	// sendMu is held shared by every send and exclusively by Close while it
	// closes queue.
	sendMu  sync.RWMutex
	queue   chan Event
	quit    chan struct{}
	stopped chan struct{}
	stop    sync.Once

	dropped atomic.Uint64
}

// NewDispatcher starts a dispatcher feeding sink, or returns nil when
// cfg.Enabled is false. A nil sink discards events. BufferSize below one is
// raised to one.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go d.deliver()
	return d
}

// deliver runs until Close closes the queue, then exits once it is empty.
func (d *Dispatcher) deliver() {
	defer close(d.stopped)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues event for the sink. With DropIfFull a full buffer discards
// the event and counts it in Dropped. Otherwise Emit waits for room until
// ctx ends or the dispatcher closes. Events emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	select {
	case <-d.quit:
		return
	default:
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops accepting events and waits for the queued ones to reach the
// sink. It returns ctx.Err() if ctx ends first; delivery then continues in
// the background. Close may be called more than once.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.stop.Do(func() {
		close(d.quit)
		d.sendMu.Lock()
		close(d.queue)
		d.sendMu.Unlock()
	})

	select {
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped reports how many events a full buffer discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
