package testutil

import (
	"sync"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/trace"
)

// TraceRecorder is a thread-safe trace subscriber that keeps every event.
type TraceRecorder struct {
	mu     sync.Mutex
	events []trace.Event
}

// Record appends ev. Pass it to Emitter.Subscribe.
func (r *TraceRecorder) Record(ev trace.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *TraceRecorder) Events() []trace.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]trace.Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events.
func (r *TraceRecorder) Kinds() []trace.Kind {
	var out []trace.Kind
	for _, ev := range r.Events() {
		out = append(out, ev.Kind())
	}
	return out
}

// Lines renders each event with trace.Describe.
func (r *TraceRecorder) Lines(label func(graph.NodeID) string) []string {
	var out []string
	for _, ev := range r.Events() {
		out = append(out, trace.Describe(ev, label))
	}
	return out
}

// Entered returns node ids in NodeEnter order.
func (r *TraceRecorder) Entered() []graph.NodeID {
	var out []graph.NodeID
	for _, ev := range r.Events() {
		if ev.Kind() == trace.KindNodeEnter {
			out = append(out, ev.NodeID())
		}
	}
	return out
}

// Count returns how many events of kind k were recorded.
func (r *TraceRecorder) Count(k trace.Kind) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Kind() == k {
			n++
		}
	}
	return n
}
