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

// Dispatcher asynchronously forwards audit events to a sink. A nil Dispatcher
// is valid and drops everything. Every event that fails to reach the sink,
// whatever the reason, increments the dropped counter.
type Dispatcher struct {
	cfg     Config
	sink    Sink
	queue   chan Event
	quit    chan struct{}
	done    chan struct{}
	dropped atomic.Uint64
	stop    sync.Once
}

// NewDispatcher starts the forwarding worker. Returns nil when disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, cfg.BufferSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go d.forward()
	return d
}

// forward is the worker loop. On shutdown it flushes whatever is already
// buffered before signalling done.
func (d *Dispatcher) forward() {
	defer close(d.done)
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			for {
				select {
				case event := <-d.queue:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit enqueues an event. With DropIfFull set a full buffer discards the
// event instead of blocking the caller; without it, Emit blocks until the
// worker has room or ctx is cancelled. Events arriving after Close, or
// abandoned by a cancelled ctx, count as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-d.quit:
		// Worker is gone; anything enqueued now would never flush.
		d.dropped.Add(1)
		return
	default:
	}

	if d.cfg.DropIfFull {
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
		d.dropped.Add(1)
	case <-d.quit:
		d.dropped.Add(1)
	}
}

// Close drains buffered events and stops the worker. Safe to call twice.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stop.Do(func() {
		close(d.quit)
		<-d.done
	})
}

// Dropped reports how many events never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
