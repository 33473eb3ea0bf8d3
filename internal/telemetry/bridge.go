package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/trace"
)

// BridgeOption configures a SpanBridge.
type BridgeOption func(*SpanBridge)

// WithLabels sets the function used to name node spans.
func WithLabels(label func(graph.NodeID) string) BridgeOption {
	return func(b *SpanBridge) {
		if label != nil {
			b.label = label
		}
	}
}

// WithRunAttributes adds attributes to the root span.
func WithRunAttributes(attrs ...attribute.KeyValue) BridgeOption {
	return func(b *SpanBridge) {
		b.rootAttrs = append(b.rootAttrs, attrs...)
	}
}

// SpanBridge maps trace events onto spans.
//
// NodeEnter opens a child span of the run span and NodeLeave ends it.
// DataWrite and NodeError attach to the open span of their node. Flow and
// ExecutionReset become events on the run span. A reset ends every open
// node span, since a restart abandons the previous execution.
type SpanBridge struct {
	tracer    oteltrace.Tracer
	label     func(graph.NodeID) string
	rootAttrs []attribute.KeyValue

	mu      sync.Mutex
	rootCtx context.Context
	root    oteltrace.Span
	open    map[graph.NodeID]oteltrace.Span
	failed  int
	closed  bool
}

// NewSpanBridge starts the run span named name and returns the bridge.
func NewSpanBridge(ctx context.Context, tracer oteltrace.Tracer, name string, opts ...BridgeOption) *SpanBridge {
	b := &SpanBridge{
		tracer: tracer,
		label:  func(id graph.NodeID) string { return id.Short() },
		open:   make(map[graph.NodeID]oteltrace.Span),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.rootCtx, b.root = tracer.Start(ctx, name, oteltrace.WithAttributes(b.rootAttrs...))
	return b
}

// Record handles one event. It has the trace.Subscriber signature.
// Events arriving after Close are dropped.
func (b *SpanBridge) Record(ev trace.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	switch e := ev.(type) {
	case trace.NodeEnter:
		if prev, ok := b.open[e.Node]; ok {
			prev.End()
		}
		_, span := b.tracer.Start(b.rootCtx, "node "+b.label(e.Node),
			oteltrace.WithTimestamp(e.At),
			oteltrace.WithAttributes(
				attribute.String("node.id", e.Node.String()),
				attribute.String("node.name", b.label(e.Node)),
			))
		b.open[e.Node] = span

	case trace.NodeLeave:
		if span, ok := b.open[e.Node]; ok {
			span.End(oteltrace.WithTimestamp(e.At))
			delete(b.open, e.Node)
		}

	case trace.DataWrite:
		b.spanFor(e.Node).AddEvent("data_write",
			oteltrace.WithTimestamp(e.At),
			oteltrace.WithAttributes(
				attribute.String("port", e.Port),
				attribute.String("data.type", e.Value.Type().String()),
				attribute.String("data.value", fmt.Sprint(e.Value.Value())),
			))

	case trace.Flow:
		b.root.AddEvent("flow",
			oteltrace.WithTimestamp(e.At),
			oteltrace.WithAttributes(
				attribute.String("from", b.label(e.Node)),
				attribute.String("to", b.label(e.To)),
			))

	case trace.NodeError:
		span := b.spanFor(e.Node)
		span.RecordError(errors.New(e.Message), oteltrace.WithTimestamp(e.At))
		span.SetStatus(codes.Error, e.Message)
		b.failed++

	case trace.ExecutionReset:
		for id, span := range b.open {
			span.End(oteltrace.WithTimestamp(e.At))
			delete(b.open, id)
		}
		start := "<all>"
		if !e.Node.IsZero() {
			start = b.label(e.Node)
		}
		b.root.AddEvent("execution_reset",
			oteltrace.WithTimestamp(e.At),
			oteltrace.WithAttributes(
				attribute.Int64("epoch.from", e.EpochFrom),
				attribute.Int64("epoch.to", e.EpochTo),
				attribute.String("start", start),
			))
	}
}

// spanFor returns the open span of id, or the run span when id is not executing.
func (b *SpanBridge) spanFor(id graph.NodeID) oteltrace.Span {
	if span, ok := b.open[id]; ok {
		return span
	}
	return b.root
}

// Attach subscribes the bridge to an emitter and returns the cancel func.
func (b *SpanBridge) Attach(e *trace.Emitter) (cancel func()) {
	return e.Subscribe(b.Record)
}

// Close ends any open node spans and the run span. The run span gets an
// error status if any node failed. Close is idempotent.
func (b *SpanBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	for id, span := range b.open {
		span.End()
		delete(b.open, id)
	}
	b.root.SetAttributes(attribute.Int("nodes.failed", b.failed))
	if b.failed > 0 {
		b.root.SetStatus(codes.Error, fmt.Sprintf("%d node(s) failed", b.failed))
	} else {
		b.root.SetStatus(codes.Ok, "")
	}
	b.root.End()
}

// RootContext returns a context carrying the run span.
func (b *SpanBridge) RootContext() context.Context {
	return b.rootCtx
}
