package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/trace"
)

// fixture is a graph of named pass-through nodes wired out -> in.
type fixture struct {
	graph *graph.GraphModel
	ids   map[string]graph.NodeID
	names map[graph.NodeID]string

	mu    sync.Mutex
	ran   []string
	runCh chan string
	fns   map[string]func(ctx context.Context, rc RuntimeContext) error
}

func newFixture(t *testing.T, names []string, edges [][2]string) *fixture {
	t.Helper()
	f := &fixture{
		ids:   make(map[string]graph.NodeID),
		names: make(map[graph.NodeID]string),
		runCh: make(chan string, 64),
		fns:   make(map[string]func(ctx context.Context, rc RuntimeContext) error),
	}
	var nodes []graph.NodeModel
	for _, n := range names {
		id := graph.NodeIDFromName(n)
		f.ids[n] = id
		f.names[id] = n
		nodes = append(nodes, graph.NodeModel{
			ID:          id,
			RuntimeType: "Pass",
			Ports: []graph.PortMetadata{
				{Name: "in", Direction: graph.Input, Kind: graph.Data, DataType: graph.TypeAny},
				{Name: "out", Direction: graph.Output, Kind: graph.Data, DataType: graph.TypeAny},
			},
		})
	}
	var links []graph.LinkModel
	for _, e := range edges {
		links = append(links, graph.LinkModel{FromNode: f.ids[e[0]], FromPort: "out", ToNode: f.ids[e[1]], ToPort: "in"})
	}
	g, err := graph.NewGraphModel(nodes, links)
	require.NoError(t, err)
	f.graph = g
	return f
}

func (f *fixture) nodes() []Node {
	var out []Node
	for _, m := range f.graph.Nodes() {
		name := f.names[m.ID]
		out = append(out, NewFuncNode(m.ID, func(ctx context.Context, rc RuntimeContext) error {
			f.mu.Lock()
			f.ran = append(f.ran, name)
			fn := f.fns[name]
			f.mu.Unlock()
			f.runCh <- name
			if fn != nil {
				return fn(ctx, rc)
			}
			return nil
		}))
	}
	return out
}

func (f *fixture) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ran...)
}

func (f *fixture) scheduler(t *testing.T, ctrl *Controller, dbg *DebugController, start string) *Scheduler {
	t.Helper()
	var startID graph.NodeID
	if start != "" {
		startID = f.ids[start]
	}
	s, err := NewScheduler(f.graph, f.nodes(), ctrl, dbg, startID, WithRunIDGenerator(NewFixedGenerator("run-1")))
	require.NoError(t, err)
	return s
}

// describe renders drained events with node names.
func (f *fixture) describe(s *Scheduler) []string {
	var out []string
	for ev := range s.Trace().Drain() {
		out = append(out, trace.Describe(ev, func(id graph.NodeID) string { return f.names[id] }))
	}
	return out
}

func (f *fixture) labels(ids []graph.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = f.names[id]
	}
	return out
}

func TestScheduler_ChainRunsInOrder(t *testing.T) {
	f := newFixture(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})
	s := f.scheduler(t, nil, nil, "")

	report, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Succeeded())
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, []string{"a", "b", "c"}, f.executed())
	assert.Equal(t, []string{
		"enter a", "leave a", "flow a -> b",
		"enter b", "leave b", "flow b -> c",
		"enter c", "leave c",
	}, f.describe(s))
}

func TestScheduler_StartNodeRestrictsActiveSet(t *testing.T) {
	f := newFixture(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})
	s := f.scheduler(t, nil, nil, "b")

	assert.Equal(t, []string{"b", "c"}, f.labels(s.ActiveNodes()))
	assert.False(t, s.IsActive(f.ids["a"]))

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, f.executed())
	assert.Equal(t, f.ids["b"], report.StartNode)
	for _, line := range f.describe(s) {
		assert.NotContains(t, line, "enter a")
	}
}

func TestScheduler_DiamondRespectsDependencies(t *testing.T) {
	f := newFixture(t, []string{"d", "b", "c", "a"},
		[][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}})
	s := f.scheduler(t, nil, nil, "")

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	order := f.executed()
	require.Len(t, order, 4)
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestScheduler_EnterNeverPrecedesPredecessorLeave(t *testing.T) {
	f := newFixture(t, []string{"a", "b", "c", "d"},
		[][2]string{{"a", "c"}, {"b", "c"}, {"c", "d"}})
	s := f.scheduler(t, nil, nil, "")

	var events []trace.Event
	s.Trace().Subscribe(func(ev trace.Event) { events = append(events, ev) })
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	left := map[graph.NodeID]bool{}
	enters := map[graph.NodeID]int{}
	preds := map[graph.NodeID][]graph.NodeID{}
	for _, l := range f.graph.Links() {
		preds[l.ToNode] = append(preds[l.ToNode], l.FromNode)
	}
	for _, ev := range events {
		switch e := ev.(type) {
		case trace.NodeEnter:
			enters[e.Node]++
			for _, p := range preds[e.Node] {
				assert.True(t, left[p], "%s entered before %s left", f.names[e.Node], f.names[p])
			}
		case trace.NodeLeave:
			left[e.Node] = true
		}
	}
	for _, id := range f.ids {
		assert.Equal(t, 1, enters[id])
	}
}

func TestScheduler_DataFlowsThroughStore(t *testing.T) {
	f := newFixture(t, []string{"src", "dst"}, [][2]string{{"src", "dst"}})
	var got graph.DataValue
	var snapshot map[string]graph.DataValue
	f.fns["src"] = func(_ context.Context, rc RuntimeContext) error {
		rc.SetOutput("out", graph.NewDataValue(21, graph.TypeInt, nil))
		return nil
	}
	f.fns["dst"] = func(_ context.Context, rc RuntimeContext) error {
		got = rc.Input("in")
		snapshot = rc.Inputs()
		return nil
	}
	s := f.scheduler(t, nil, nil, "")

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 21, got.Value())
	assert.Equal(t, graph.TypeInt, got.Type())
	assert.Contains(t, snapshot, "in")
	assert.Contains(t, f.describe(s), "write src.out = 21 (int)")
}

func TestScheduler_PropertiesAndRunModeReachNode(t *testing.T) {
	id := graph.NodeIDFromName("k")
	g, err := graph.NewGraphModel([]graph.NodeModel{{ID: id, RuntimeType: "K", Properties: map[string]any{"value": 3}}}, nil)
	require.NoError(t, err)

	var props map[string]any
	var mode RunMode
	var self graph.NodeID
	n := NewFuncNode(id, func(_ context.Context, rc RuntimeContext) error {
		props = rc.Properties()
		mode = rc.RunMode()
		self = rc.NodeID()
		return nil
	})
	s, err := NewScheduler(g, []Node{n}, nil, nil, graph.NodeID{})
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, props["value"])
	assert.Equal(t, Automatic, mode)
	assert.Equal(t, id, self)
}

func TestScheduler_WriteOutputStream(t *testing.T) {
	f := newFixture(t, []string{"src", "dst"}, [][2]string{{"src", "dst"}})
	var got any
	f.fns["src"] = func(ctx context.Context, rc RuntimeContext) error {
		return rc.WriteOutputStream(ctx, "out", func(yield func(graph.DataValue) bool) {
			for i := 1; i <= 3; i++ {
				if !yield(graph.NewDataValue(i, graph.TypeInt, nil)) {
					return
				}
			}
		})
	}
	f.fns["dst"] = func(_ context.Context, rc RuntimeContext) error {
		got = rc.Input("in").Value()
		return nil
	}
	s := f.scheduler(t, nil, nil, "")
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, got, "last streamed value wins")
	writes := 0
	for _, line := range f.describe(s) {
		if len(line) > 5 && line[:5] == "write" {
			writes++
		}
	}
	assert.Equal(t, 3, writes)
}

func TestScheduler_NodeFailureDoesNotStopSuccessors(t *testing.T) {
	f := newFixture(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})
	f.fns["b"] = func(context.Context, RuntimeContext) error { return errors.New("boom") }
	s := f.scheduler(t, nil, nil, "")

	report, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, f.executed())
	require.Contains(t, report.Failures, f.ids["b"])
	assert.False(t, report.Succeeded())

	var errs []string
	for ev := range s.Trace().Drain() {
		if e, ok := ev.(trace.NodeError); ok {
			errs = append(errs, e.Message)
		}
	}
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "boom")
}

func TestScheduler_PanicIsRecorded(t *testing.T) {
	f := newFixture(t, []string{"a", "b"}, [][2]string{{"a", "b"}})
	f.fns["a"] = func(context.Context, RuntimeContext) error { panic("kaboom") }
	s := f.scheduler(t, nil, nil, "")

	report, err := s.Run(context.Background())
	require.NoError(t, err)

	var pe *NodePanicError
	require.ErrorAs(t, report.Failures[f.ids["a"]], &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.Equal(t, []string{"a", "b"}, f.executed())
}

func TestScheduler_CycleIsReported(t *testing.T) {
	f := newFixture(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "a"}})
	s := f.scheduler(t, nil, nil, "")

	report, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsCycleError(err))
	assert.Equal(t, []string{"c"}, f.executed())
	assert.Equal(t, []string{"a", "b"}, f.labels(report.Unexecuted))
}

func TestScheduler_RunIsSingleUse(t *testing.T) {
	f := newFixture(t, []string{"a"}, nil)
	s := f.scheduler(t, nil, nil, "")

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Spent())

	_, err = s.Run(context.Background())
	assert.True(t, IsSpent(err))
}

func TestScheduler_DevelopmentStepsOneNodeAtATime(t *testing.T) {
	f := newFixture(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})
	ctrl := NewController(WithInitialMode(Development))
	s := f.scheduler(t, ctrl, nil, "")

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		done <- err
	}()

	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-f.runCh:
			t.Fatalf("%s ran without a step", got)
		case <-time.After(blockWindow):
		}
		assert.Equal(t, StepQueued, ctrl.Step())
		select {
		case got := <-f.runCh:
			assert.Equal(t, want, got)
		case <-time.After(wakeTimeout):
			t.Fatalf("%s did not run after step", want)
		}
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(wakeTimeout):
		t.Fatal("run did not finish")
	}
}

func TestScheduler_StepThenPauseDoesNotExecute(t *testing.T) {
	f := newFixture(t, []string{"a"}, nil)
	ctrl := NewController(WithInitialMode(Development))
	ctrl.Step()
	ctrl.Pause()
	s := f.scheduler(t, ctrl, nil, "")

	ctx, cancel := context.WithTimeout(context.Background(), blockWindow)
	defer cancel()
	report, err := s.Run(ctx)
	require.NoError(t, err)

	assert.True(t, report.Cancelled)
	assert.Empty(t, f.executed())
	assert.Equal(t, []string{"a"}, f.labels(report.Unexecuted))
}

func TestScheduler_BreakpointPausesBeforeExecute(t *testing.T) {
	f := newFixture(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})
	ctrl := NewController(WithInitialMode(Development))
	dbg := NewDebugController()
	dbg.AddBreakpoint(f.ids["b"])
	s := f.scheduler(t, ctrl, dbg, "")

	entered := make(chan string, 8)
	s.Trace().Subscribe(func(ev trace.Event) {
		if ev.Kind() == trace.KindNodeEnter {
			entered <- f.names[ev.NodeID()]
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		done <- err
	}()
	ctrl.Run()

	assert.Equal(t, "a", <-f.runCh)
	assert.Equal(t, "a", <-entered)
	assert.Equal(t, "b", <-entered)

	select {
	case got := <-f.runCh:
		t.Fatalf("%s executed through a breakpoint", got)
	case <-time.After(blockWindow):
	}
	assert.False(t, ctrl.Continuous(), "breakpoint pauses the controller")

	ctrl.Step()
	assert.Equal(t, "b", <-f.runCh)

	ctrl.Run()
	assert.Equal(t, "c", <-f.runCh)
	require.NoError(t, <-done)
}

func TestScheduler_BreakpointIgnoredInAutomatic(t *testing.T) {
	f := newFixture(t, []string{"a", "b"}, [][2]string{{"a", "b"}})
	dbg := NewDebugController()
	dbg.AddBreakpoint(f.ids["b"])
	s := f.scheduler(t, nil, dbg, "")

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, f.executed())
}

func TestScheduler_CancelStopsBeforeSuccessors(t *testing.T) {
	f := newFixture(t, []string{"a", "b"}, [][2]string{{"a", "b"}})
	ctx, cancel := context.WithCancel(context.Background())
	f.fns["a"] = func(context.Context, RuntimeContext) error {
		cancel()
		return nil
	}
	s := f.scheduler(t, nil, nil, "")

	report, err := s.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Equal(t, []string{"a"}, f.executed())
	assert.Equal(t, []string{"b"}, f.labels(report.Unexecuted))
	for _, line := range f.describe(s) {
		assert.NotContains(t, line, "flow")
	}
}

func TestScheduler_ConcurrentStepsExecuteEachNodeOnce(t *testing.T) {
	names := []string{"n1", "n2", "n3", "n4", "n5", "n6", "n7", "n8"}
	f := newFixture(t, names, nil)
	ctrl := NewController(WithInitialMode(Development))
	s := f.scheduler(t, ctrl, nil, "")

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		done <- err
	}()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 3 {
				ctrl.Step()
			}
		}()
	}
	wg.Wait()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(wakeTimeout):
		t.Fatal("run did not finish")
	}
	assert.ElementsMatch(t, names, f.executed())
}

func TestNewScheduler_ConstructionErrors(t *testing.T) {
	f := newFixture(t, []string{"a", "b"}, [][2]string{{"a", "b"}})

	t.Run("missing implementation", func(t *testing.T) {
		_, err := NewScheduler(f.graph, f.nodes()[:1], nil, nil, graph.NodeID{})
		assert.True(t, IsNodeNotFound(err))
	})

	t.Run("implementation not in graph", func(t *testing.T) {
		nodes := append(f.nodes(), NewFuncNode(graph.NewNodeID(), nil))
		_, err := NewScheduler(f.graph, nodes, nil, nil, graph.NodeID{})
		assert.True(t, IsNodeNotFound(err))
	})

	t.Run("duplicate implementation", func(t *testing.T) {
		nodes := append(f.nodes(), NewFuncNode(f.ids["a"], nil))
		_, err := NewScheduler(f.graph, nodes, nil, nil, graph.NodeID{})
		var re *RuntimeError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, ErrCodeDuplicateNode, re.Code)
	})

	t.Run("unknown start node", func(t *testing.T) {
		_, err := NewScheduler(f.graph, f.nodes(), nil, nil, graph.NewNodeID())
		assert.True(t, IsNodeNotFound(err))
	})
}
