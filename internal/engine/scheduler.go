package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/trace"
)

// Report summarizes one scheduler run.
type Report struct {
	// RunID identifies the run.
	RunID string

	// StartNode is the start node the active set was computed from; zero
	// for the whole graph.
	StartNode graph.NodeID

	// Executed lists nodes in the order they executed, failed ones included.
	Executed []graph.NodeID

	// Failures maps failed nodes to their error.
	Failures map[graph.NodeID]error

	// Unexecuted lists active nodes that never ran, in declaration order.
	Unexecuted []graph.NodeID

	// Cancelled is true when the run stopped because ctx was done.
	Cancelled bool
}

// Succeeded reports a run that finished every active node without failure.
func (r Report) Succeeded() bool {
	return !r.Cancelled && len(r.Failures) == 0 && len(r.Unexecuted) == 0
}

type nodeState struct {
	model    graph.NodeModel
	impl     Node
	indegree int
	out      []graph.NodeID // one entry per link
}

// Scheduler drives one run of a graph.
//
// A Scheduler is single use. Rebuilding after a start-node change creates a
// new Scheduler with a fresh DataStore and Emitter while sharing the same
// Controller and DebugController.
type Scheduler struct {
	ctrl    *Controller
	dbg     *DebugController
	store   *DataStore
	emitter *trace.Emitter
	logger  *slog.Logger
	runIDs  RunIDGenerator

	start  graph.NodeID
	order  []graph.NodeID
	states map[graph.NodeID]*nodeState
	active map[graph.NodeID]bool

	ran atomic.Bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the scheduler logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunIDGenerator sets the generator for Report.RunID. Default:
// UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) SchedulerOption {
	return func(s *Scheduler) {
		if g != nil {
			s.runIDs = g
		}
	}
}

// WithEmitter makes the scheduler publish to e instead of a fresh Emitter.
func WithEmitter(e *trace.Emitter) SchedulerOption {
	return func(s *Scheduler) {
		if e != nil {
			s.emitter = e
		}
	}
}

// NewScheduler indexes nodes, wires edges from links and computes the
// active set and in-degrees.
//
// Every graph node needs exactly one implementation whose ID matches. A
// zero start node selects the whole graph; otherwise start must be in the
// graph. Links naming unknown nodes are ignored; validate the graph first.
// A nil ctrl or dbg is replaced by a fresh default.
func NewScheduler(
	g *graph.GraphModel,
	nodes []Node,
	ctrl *Controller,
	dbg *DebugController,
	start graph.NodeID,
	opts ...SchedulerOption,
) (*Scheduler, error) {
	if ctrl == nil {
		ctrl = NewController()
	}
	if dbg == nil {
		dbg = NewDebugController()
	}

	s := &Scheduler{
		ctrl:    ctrl,
		dbg:     dbg,
		store:   NewDataStore(g.Links()),
		logger:  slog.Default(),
		runIDs:  UUIDv7Generator{},
		start:   start,
		states:  make(map[graph.NodeID]*nodeState, g.Len()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.emitter == nil {
		s.emitter = trace.NewEmitter(trace.WithLogger(s.logger))
	}

	impls := make(map[graph.NodeID]Node, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		id := n.ID()
		if _, dup := impls[id]; dup {
			return nil, NewDuplicateNodeError(id)
		}
		if !g.Has(id) {
			return nil, NewNodeNotFoundError(id, "graph")
		}
		impls[id] = n
	}

	for _, m := range g.Nodes() {
		impl, ok := impls[m.ID]
		if !ok {
			return nil, NewNodeNotFoundError(m.ID, "node implementations")
		}
		s.states[m.ID] = &nodeState{model: m, impl: impl}
		s.order = append(s.order, m.ID)
	}

	for _, l := range g.Links() {
		from, okFrom := s.states[l.FromNode]
		_, okTo := s.states[l.ToNode]
		if !okFrom || !okTo {
			continue
		}
		from.out = append(from.out, l.ToNode)
	}

	if !start.IsZero() && !g.Has(start) {
		return nil, NewNodeNotFoundError(start, "graph")
	}
	s.active = s.activeSet()

	for _, id := range s.order {
		if !s.active[id] {
			continue
		}
		for _, to := range s.states[id].out {
			if s.active[to] {
				s.states[to].indegree++
			}
		}
	}

	return s, nil
}

// activeSet is every node when no start node is set, else the nodes
// forward-reachable from it.
func (s *Scheduler) activeSet() map[graph.NodeID]bool {
	active := make(map[graph.NodeID]bool, len(s.order))
	if s.start.IsZero() {
		for _, id := range s.order {
			active[id] = true
		}
		return active
	}

	stack := []graph.NodeID{s.start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if active[id] {
			continue
		}
		active[id] = true
		for _, to := range s.states[id].out {
			if !active[to] {
				stack = append(stack, to)
			}
		}
	}
	return active
}

// Run executes the active set in dependency order, one node at a time.
//
// Before each node it blocks in Controller.WaitIfNeeded. In Development
// mode a breakpointed node is entered, the controller is paused, and the
// node waits for another Step or Run before executing.
//
// Run returns when the ready queue empties or ctx is done. If it empties
// with active nodes left unexecuted and ctx is not done, the active
// subgraph has a cycle and Run returns a CYCLE_DETECTED error alongside
// the report. A second call returns SCHEDULER_SPENT.
func (s *Scheduler) Run(ctx context.Context) (Report, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return Report{}, NewSpentError()
	}

	report := Report{
		RunID:     s.runIDs.Generate(),
		StartNode: s.start,
		Failures:  make(map[graph.NodeID]error),
	}
	log := s.logger.With("run", report.RunID)
	log.Info("scheduler starting", "active", len(s.active), "start", startLabel(s.start))

	indegree := make(map[graph.NodeID]int, len(s.active))
	var ready []graph.NodeID
	for _, id := range s.order {
		if !s.active[id] {
			continue
		}
		indegree[id] = s.states[id].indegree
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	done := make(map[graph.NodeID]bool, len(s.active))

loop:
	for len(ready) > 0 {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		id := ready[0]
		ready = ready[1:]
		if !s.active[id] {
			continue
		}
		st := s.states[id]

		if err := s.ctrl.WaitIfNeeded(ctx); err != nil {
			report.Cancelled = true
			break
		}

		s.emitter.Emit(trace.NewNodeEnter(id))

		if s.ctrl.RunMode() == Development && s.dbg.ShouldBreak(id) {
			log.Info("breakpoint hit", "node", id.Short())
			s.ctrl.Pause()
			if err := s.ctrl.WaitIfNeeded(ctx); err != nil {
				s.emitter.Emit(trace.NewNodeLeave(id))
				report.Cancelled = true
				break
			}
		}

		if err := s.execute(ctx, st); err != nil {
			report.Failures[id] = err
			s.emitter.Emit(trace.NewNodeError(id, err.Error()))
			log.Error("node failed", "node", id.Short(), "type", st.model.RuntimeType, "error", err)
		}
		report.Executed = append(report.Executed, id)
		done[id] = true

		s.emitter.Emit(trace.NewNodeLeave(id))

		if ctx.Err() != nil {
			report.Cancelled = true
			break loop
		}

		for _, to := range st.out {
			if !s.active[to] {
				continue
			}
			s.emitter.Emit(trace.NewFlow(id, to))
			indegree[to]--
			if indegree[to] == 0 {
				ready = append(ready, to)
			}
		}
	}

	for _, id := range s.order {
		if s.active[id] && !done[id] {
			report.Unexecuted = append(report.Unexecuted, id)
		}
	}

	log.Info("scheduler finished",
		"executed", len(report.Executed),
		"failed", len(report.Failures),
		"unexecuted", len(report.Unexecuted),
		"cancelled", report.Cancelled)

	if !report.Cancelled && len(report.Unexecuted) > 0 {
		err := NewCycleError(report.Unexecuted)
		log.Error("active nodes never became ready", "error", err)
		return report, err
	}
	return report, nil
}

// execute runs one node, converting a panic into a NodePanicError.
func (s *Scheduler) execute(ctx context.Context, st *nodeState) (err error) {
	id := st.model.ID
	defer func() {
		if r := recover(); r != nil {
			err = &NodePanicError{Node: id, Value: r}
		}
	}()

	rc := &runtimeContext{
		id:     id,
		mode:   s.ctrl.RunMode(),
		inputs: s.store.Inputs(id, st.model.InputPorts()),
		props:  st.model.Properties,
		store:  s.store,
		trace:  s.emitter,
	}
	if err := st.impl.Execute(ctx, rc); err != nil {
		return fmt.Errorf("%s %s: %w", st.model.RuntimeType, id.Short(), err)
	}
	return nil
}

// Trace returns the emitter this scheduler publishes to.
func (s *Scheduler) Trace() *trace.Emitter { return s.emitter }

// Store returns the scheduler's DataStore.
func (s *Scheduler) Store() *DataStore { return s.store }

// StartNode returns the start node, zero for the whole graph.
func (s *Scheduler) StartNode() graph.NodeID { return s.start }

// Spent reports whether Run has been called.
func (s *Scheduler) Spent() bool { return s.ran.Load() }

// ActiveNodes returns the active set in declaration order.
func (s *Scheduler) ActiveNodes() []graph.NodeID {
	out := make([]graph.NodeID, 0, len(s.active))
	for _, id := range s.order {
		if s.active[id] {
			out = append(out, id)
		}
	}
	return out
}

// IsActive reports whether id is in the active set.
func (s *Scheduler) IsActive(id graph.NodeID) bool { return s.active[id] }

func startLabel(id graph.NodeID) string {
	if id.IsZero() {
		return "<all>"
	}
	return id.Short()
}
