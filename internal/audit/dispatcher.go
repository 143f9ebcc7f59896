package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config sets dispatcher queue size and overflow handling.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking: events that do not fit in the
	// buffer are counted in Dropped instead of applying backpressure.
	DropIfFull bool
}

// Dispatcher asynchronously forwards audit events to a sink. A nil
// Dispatcher is valid and inert, which is how a disabled configuration
// is represented.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	dropIfFull bool

	quit    chan struct{}
	flushed chan struct{}
	closing atomic.Bool
	dropped atomic.Uint64
	once    sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		dropIfFull: cfg.DropIfFull,
		quit:       make(chan struct{}),
		flushed:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.flushed)

	ctx := context.Background()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(ctx, event)
		case <-d.quit:
			d.drain(ctx)
			return
		}
	}
}

// drain flushes events that were already queued when Close fired.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(ctx, event)
		default:
			return
		}
	}
}

// Emit enqueues an event. After Close it is a no-op. With DropIfFull set
// a full buffer increments Dropped; otherwise Emit blocks until there is
// space, ctx is done, or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.quit:
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

// Close drains queued events into the sink and stops the worker. It is
// idempotent and safe to call concurrently with Emit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.quit)
		<-d.flushed
	})
}

// Dropped reports how many events were discarded due to a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
