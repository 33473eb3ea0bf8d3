package trace

import (
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Subscriber receives events synchronously on the emitting goroutine.
type Subscriber func(Event)

// Emitter is an unbounded, append-only event queue with synchronous
// multicast to subscribers.
//
// Emit holds the queue lock only while appending; subscribers run outside
// the lock so they may call back into the Emitter.
type Emitter struct {
	mu     sync.Mutex
	events []Event
	subs   map[uint64]Subscriber
	nextID uint64
	order  []uint64

	logger *slog.Logger
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithLogger sets the logger used to report recovered subscriber panics.
func WithLogger(l *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEmitter creates an empty Emitter.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		events: make([]Event, 0, 64),
		subs:   make(map[uint64]Subscriber),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit enqueues ev and then delivers it to every current subscriber in
// subscription order. A nil event is ignored.
func (e *Emitter) Emit(ev Event) {
	if ev == nil {
		return
	}

	e.mu.Lock()
	e.events = append(e.events, ev)
	subs := make([]Subscriber, 0, len(e.order))
	for _, id := range e.order {
		subs = append(subs, e.subs[id])
	}
	e.mu.Unlock()

	for _, fn := range subs {
		e.deliver(fn, ev)
	}
}

func (e *Emitter) deliver(fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("trace subscriber panicked",
				"kind", ev.Kind().String(),
				"node", ev.NodeID().Short(),
				"panic", fmt.Sprint(r))
		}
	}()
	fn(ev)
}

// Subscribe registers fn for live delivery. Events emitted before the call
// are not replayed. The returned function unsubscribes; it is idempotent.
func (e *Emitter) Subscribe(fn Subscriber) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs[id] = fn
	e.order = append(e.order, id)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			for i, v := range e.order {
				if v == id {
					e.order = append(e.order[:i], e.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Drain returns a lazy sequence that removes and yields queued events in
// FIFO order. Events emitted while the sequence is being consumed are
// yielded too. Each sequence is one-shot: ranging over it again yields
// nothing. Call Drain again to poll for newer events.
func (e *Emitter) Drain() iter.Seq[Event] {
	var used atomic.Bool
	return func(yield func(Event) bool) {
		if used.Swap(true) {
			return
		}
		for {
			ev, ok := e.pop()
			if !ok {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func (e *Emitter) pop() (Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.events) == 0 {
		return nil, false
	}
	ev := e.events[0]
	e.events[0] = nil
	if len(e.events) == 1 {
		e.events = e.events[:0]
	} else {
		e.events = e.events[1:]
	}
	return ev, true
}

// Snapshot returns a copy of the events currently queued without removing
// them.
func (e *Emitter) Snapshot() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// Len returns the number of queued events.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

// Forward subscribes dst to every event emitted on e.
func (e *Emitter) Forward(dst *Emitter) (cancel func()) {
	return e.Subscribe(dst.Emit)
}
