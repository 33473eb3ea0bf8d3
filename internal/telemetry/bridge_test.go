package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/execgraph/internal/engine"
	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/testutil"
	"github.com/roach88/execgraph/internal/trace"
)

func newRecordingTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr, tp
}

func spansByName(spans []sdktrace.ReadOnlySpan) map[string]sdktrace.ReadOnlySpan {
	out := make(map[string]sdktrace.ReadOnlySpan, len(spans))
	for _, s := range spans {
		out[s.Name()] = s
	}
	return out
}

func eventNames(s sdktrace.ReadOnlySpan) []string {
	var names []string
	for _, ev := range s.Events() {
		names = append(names, ev.Name)
	}
	return names
}

func TestSpanBridge_NodeSpansAreChildrenOfRun(t *testing.T) {
	sr, tp := newRecordingTracer(t)
	b := testutil.NewGraphBuilder().Pass("a", "b").Chain("a", "b")
	g := b.Build(t)
	a, bID := testutil.ID("a"), testutil.ID("b")

	bridge := NewSpanBridge(context.Background(), tp.Tracer("test"), "run",
		WithLabels(b.Label()),
		WithRunAttributes(attribute.String("run.id", "r1")),
	)
	em := trace.NewEmitter()
	bridge.Attach(em)

	probe := testutil.NewProbe()
	probe.Hook(a, func(_ context.Context, rc engine.RuntimeContext) error {
		rc.SetOutput("out", graph.NewDataValue(int64(3), graph.TypeInt, nil))
		return nil
	})
	sched, err := engine.NewScheduler(g, probe.Nodes(g), nil, nil, graph.NodeID{}, engine.WithEmitter(em))
	require.NoError(t, err)
	_, err = sched.Run(context.Background())
	require.NoError(t, err)
	bridge.Close()

	spans := spansByName(sr.Ended())
	require.Len(t, spans, 3)
	root := spans["run"]
	require.NotNil(t, root)

	for _, name := range []string{"node a", "node b"} {
		s, ok := spans[name]
		require.True(t, ok, "missing span %q", name)
		assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID(), "%s parent", name)
		assert.Equal(t, root.SpanContext().TraceID(), s.SpanContext().TraceID())
	}

	assert.Contains(t, eventNames(spans["node a"]), "data_write")
	assert.Contains(t, eventNames(root), "flow")
	assert.Equal(t, codes.Ok, root.Status().Code)
	assert.Contains(t, root.Attributes(), attribute.String("run.id", "r1"))
	assert.Contains(t, spans["node b"].Attributes(), attribute.String("node.id", bID.String()))
}

func TestSpanBridge_NodeErrorMarksSpans(t *testing.T) {
	sr, tp := newRecordingTracer(t)
	a := graph.NodeIDFromName("a")

	bridge := NewSpanBridge(context.Background(), tp.Tracer("test"), "run")
	bridge.Record(trace.NewNodeEnter(a))
	bridge.Record(trace.NewNodeError(a, "boom"))
	bridge.Record(trace.NewNodeLeave(a))
	bridge.Close()

	spans := spansByName(sr.Ended())
	node := spans["node "+a.Short()]
	require.NotNil(t, node)
	assert.Equal(t, codes.Error, node.Status().Code)
	assert.Equal(t, "boom", node.Status().Description)
	assert.Contains(t, eventNames(node), "exception")

	root := spans["run"]
	assert.Equal(t, codes.Error, root.Status().Code)
	assert.Contains(t, root.Attributes(), attribute.Int("nodes.failed", 1))
}

func TestSpanBridge_ResetEndsOpenSpans(t *testing.T) {
	sr, tp := newRecordingTracer(t)
	a := graph.NodeIDFromName("a")

	bridge := NewSpanBridge(context.Background(), tp.Tracer("test"), "run")
	bridge.Record(trace.NewNodeEnter(a))
	bridge.Record(trace.NewExecutionReset(a, 0, 1))

	ended := sr.Ended()
	require.Len(t, ended, 1, "node span ends on reset, run span stays open")
	assert.Equal(t, "node "+a.Short(), ended[0].Name())

	bridge.Close()
	root := spansByName(sr.Ended())["run"]
	require.NotNil(t, root)
	require.Equal(t, []string{"execution_reset"}, eventNames(root))
	assert.Contains(t, root.Events()[0].Attributes, attribute.Int64("epoch.to", 1))
}

func TestSpanBridge_CloseIsIdempotentAndDropsLateEvents(t *testing.T) {
	sr, tp := newRecordingTracer(t)
	a := graph.NodeIDFromName("a")

	bridge := NewSpanBridge(context.Background(), tp.Tracer("test"), "run")
	bridge.Record(trace.NewNodeEnter(a))
	bridge.Close()
	bridge.Close()
	bridge.Record(trace.NewNodeEnter(graph.NodeIDFromName("late")))

	assert.Len(t, sr.Ended(), 2, "open node span and run span")
	assert.Len(t, sr.Started(), 2, "no span started after close")
}

func TestSpanBridge_WriteWithoutOpenSpanGoesToRun(t *testing.T) {
	sr, tp := newRecordingTracer(t)
	a := graph.NodeIDFromName("a")

	bridge := NewSpanBridge(context.Background(), tp.Tracer("test"), "run")
	bridge.Record(trace.NewDataWrite(a, "out", graph.NewDataValue("x", graph.TypeString, nil)))
	bridge.Close()

	root := spansByName(sr.Ended())["run"]
	require.NotNil(t, root)
	assert.Equal(t, []string{"data_write"}, eventNames(root))
}
