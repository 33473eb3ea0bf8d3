package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/execgraph/internal/engine"
	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/trace"
	"github.com/roach88/execgraph/internal/validator"
)

// ErrPendingRestart is returned by Start while a start-node change awaits
// confirmation.
var ErrPendingRestart = errors.New("host: start node change pending; confirm or reject it first")

// Host runs one graph, one Scheduler at a time.
//
// Thread-safety: every method is safe for concurrent use. The lifecycle
// methods (Start, Stop, TrySetStartNode, ConfirmPendingStartNodeAndRestart,
// RejectPendingStartNode) are serialised, so a restart is atomic with
// respect to the others. Stop and ConfirmPendingStartNodeAndRestart block
// until the execution goroutine has exited; trace subscribers must not call
// lifecycle methods.
type Host struct {
	graph  *graph.GraphModel
	nodes  []engine.Node
	ctrl   *engine.Controller
	dbg    *engine.DebugController
	compat validator.Compatibility
	logger *slog.Logger
	runIDs engine.RunIDGenerator
	relay  *trace.Emitter
	epochs *engine.Clock

	// life serialises lifecycle methods and is taken before mu.
	life sync.Mutex

	mu         sync.Mutex
	sched      *engine.Scheduler
	unforward  func()
	start      graph.NodeID
	pending    graph.NodeID
	hasPending bool
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	lastReport engine.Report
	lastErr    error
}

// Option configures a Host.
type Option func(*Host)

// WithController shares an existing Controller.
func WithController(c *engine.Controller) Option {
	return func(h *Host) {
		if c != nil {
			h.ctrl = c
		}
	}
}

// WithDebugController shares an existing DebugController.
func WithDebugController(d *engine.DebugController) Option {
	return func(h *Host) {
		if d != nil {
			h.dbg = d
		}
	}
}

// WithCompatibility sets the type policy used to validate the graph.
// Default: validator.DefaultCompatibility.
func WithCompatibility(c validator.Compatibility) Option {
	return func(h *Host) {
		if c != nil {
			h.compat = c
		}
	}
}

// WithLogger sets the logger for the host and its schedulers.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRunIDGenerator sets the run id source passed to every Scheduler.
func WithRunIDGenerator(g engine.RunIDGenerator) Option {
	return func(h *Host) {
		if g != nil {
			h.runIDs = g
		}
	}
}

// New validates g and builds the initial Scheduler over the whole graph.
// nodes must hold exactly one implementation per graph node.
func New(g *graph.GraphModel, nodes []engine.Node, opts ...Option) (*Host, error) {
	if g == nil {
		return nil, errors.New("host: nil graph")
	}
	h := &Host{
		graph:  g,
		nodes:  append([]engine.Node(nil), nodes...),
		compat: validator.DefaultCompatibility{},
		logger: slog.Default(),
		runIDs: engine.UUIDv7Generator{},
		epochs: engine.NewClock(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.ctrl == nil {
		h.ctrl = engine.NewController(engine.WithControllerLogger(h.logger))
	}
	if h.dbg == nil {
		h.dbg = engine.NewDebugController()
	}
	h.relay = trace.NewEmitter(trace.WithLogger(h.logger))

	if err := validator.ValidateOrError(g, h.compat); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.rebuildLocked(graph.NodeID{}); err != nil {
		return nil, err
	}
	return h, nil
}

// NewFromFactory builds one node per graph node with factory, then calls
// New. The factory must not return nil or a node with a different id.
func NewFromFactory(g *graph.GraphModel, factory engine.Factory, opts ...Option) (*Host, error) {
	if g == nil {
		return nil, errors.New("host: nil graph")
	}
	if factory == nil {
		return nil, errors.New("host: nil factory")
	}
	nodes, err := BuildNodes(g, factory)
	if err != nil {
		return nil, err
	}
	return New(g, nodes, opts...)
}

// BuildNodes creates one implementation per graph node, in declaration
// order.
func BuildNodes(g *graph.GraphModel, factory engine.Factory) ([]engine.Node, error) {
	models := g.Nodes()
	out := make([]engine.Node, 0, len(models))
	seen := make(map[graph.NodeID]bool, len(models))
	for _, m := range models {
		if seen[m.ID] {
			return nil, engine.NewDuplicateNodeError(m.ID)
		}
		seen[m.ID] = true

		n, err := factory(m)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, fmt.Errorf("host: factory returned nil for node %s", m.ID)
		}
		if n.ID() != m.ID {
			return nil, engine.NewNodeMismatchError(m.ID, n.ID())
		}
		out = append(out, n)
	}
	return out, nil
}

// rebuildLocked replaces the scheduler with a fresh one for start and
// moves the relay forwarding onto it. h.mu must be held.
func (h *Host) rebuildLocked(start graph.NodeID) error {
	s, err := engine.NewScheduler(h.graph, h.nodes, h.ctrl, h.dbg, start,
		engine.WithLogger(h.logger),
		engine.WithRunIDGenerator(h.runIDs),
	)
	if err != nil {
		return err
	}
	if h.unforward != nil {
		h.unforward()
	}
	h.sched = s
	h.unforward = s.Trace().Forward(h.relay)
	h.start = start
	return nil
}

// Start runs the current scheduler on a new goroutine. It is a no-op while
// already running and fails with ErrPendingRestart while a start-node
// change is pending. A scheduler that already ran is rebuilt first.
func (h *Host) Start(ctx context.Context) error {
	h.life.Lock()
	defer h.life.Unlock()
	return h.startRun(ctx)
}

// startRun implements Start. h.life must be held.
func (h *Host) startRun(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hasPending {
		return ErrPendingRestart
	}
	if h.running {
		return nil
	}
	if h.sched.Spent() {
		if err := h.rebuildLocked(h.start); err != nil {
			return err
		}
	}
	h.launchLocked(ctx)
	return nil
}

func (h *Host) launchLocked(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	sched := h.sched

	h.cancel = cancel
	h.done = done
	h.running = true
	h.logger.Info("host starting run", "start", label(h.start), "mode", h.ctrl.RunMode().String())

	go func() {
		defer close(done)
		defer cancel()

		report, err := sched.Run(ctx)

		h.mu.Lock()
		h.lastReport = report
		h.lastErr = err
		if h.done == done {
			h.running = false
		}
		h.mu.Unlock()

		if err != nil {
			h.logger.Error("run failed", "run", report.RunID, "error", err)
		} else {
			h.logger.Info("run finished", "run", report.RunID,
				"executed", len(report.Executed), "cancelled", report.Cancelled)
		}
	}()
}

// Stop cancels the current run and waits for its goroutine to exit. The
// node in flight, if any, finishes; no further node starts.
func (h *Host) Stop() {
	h.life.Lock()
	defer h.life.Unlock()
	h.stopRun()
}

// stopRun implements Stop. h.life must be held.
func (h *Host) stopRun() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	h.mu.Lock()
	if h.done == done {
		h.cancel = nil
		h.done = nil
		h.running = false
	}
	h.mu.Unlock()
}

// Wait blocks until the current run ends or ctx is done, then returns the
// last run's report and error.
func (h *Host) Wait(ctx context.Context) (engine.Report, error) {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return engine.Report{}, ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastReport, h.lastErr
}

// IsRunning reports whether the execution goroutine is live.
func (h *Host) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// State derives the ExecutionState: a pending change wins over running.
func (h *Host) State() ExecutionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stateLocked()
}

func (h *Host) stateLocked() ExecutionState {
	switch {
	case h.hasPending:
		return PendingRestart
	case h.running:
		return Executing
	default:
		return Idle
	}
}

// TrySetStartNode requests a new start node; the zero id selects the whole
// graph.
//
// Unknown ids are rejected. Requesting the current start node with nothing
// pending is a no-op. When idle the scheduler is rebuilt immediately (and
// any stale pending request is dropped). While running the request is
// stored as pending and RequireRestartConfirm is returned; the running
// scheduler is untouched.
func (h *Host) TrySetStartNode(id graph.NodeID) (StartNodeResult, error) {
	if !id.IsZero() && !h.graph.Has(id) {
		return StartNodeRejected, engine.NewNodeNotFoundError(id, "graph")
	}

	h.life.Lock()
	defer h.life.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()

	if id == h.start && !h.hasPending {
		return Applied, nil
	}
	if !h.running {
		if err := h.rebuildLocked(id); err != nil {
			return StartNodeRejected, err
		}
		h.pending, h.hasPending = graph.NodeID{}, false
		h.logger.Info("start node applied", "start", label(id))
		return Applied, nil
	}

	h.pending, h.hasPending = id, true
	h.logger.Info("start node change pending", "start", label(id))
	return RequireRestartConfirm, nil
}

// ConfirmPendingStartNodeAndRestart applies the pending start node: it
// pauses the controller, stops the current run, rebuilds the scheduler,
// publishes ExecutionReset on the relay and starts again. With nothing
// pending it does nothing.
//
// The controller stays paused, so in Development mode the restarted run
// waits for a Step or Run.
func (h *Host) ConfirmPendingStartNodeAndRestart(ctx context.Context) error {
	h.life.Lock()
	defer h.life.Unlock()

	h.mu.Lock()
	if !h.hasPending {
		h.mu.Unlock()
		return nil
	}
	next := h.pending
	h.pending, h.hasPending = graph.NodeID{}, false
	h.mu.Unlock()

	h.ctrl.Pause()
	h.stopRun()

	h.mu.Lock()
	if err := h.rebuildLocked(next); err != nil {
		h.mu.Unlock()
		return err
	}
	from := h.epochs.Current()
	to := h.epochs.Next()
	h.mu.Unlock()

	h.relay.Emit(trace.NewExecutionReset(next, from, to))
	h.logger.Info("restarting", "start", label(next), "epoch", to)

	return h.startRun(ctx)
}

// RejectPendingStartNode drops the pending request and leaves the current
// scheduler as it is.
//
// State is derived rather than reset: after a reject during a live run it
// reports Executing until that run ends, and Idle otherwise.
func (h *Host) RejectPendingStartNode() {
	h.life.Lock()
	defer h.life.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hasPending {
		h.logger.Info("start node change rejected", "start", label(h.pending))
	}
	h.pending, h.hasPending = graph.NodeID{}, false
}

// ResetToInitial is TrySetStartNode with the whole graph.
func (h *Host) ResetToInitial() (StartNodeResult, error) {
	return h.TrySetStartNode(graph.NodeID{})
}

// Controller returns the shared run-mode controller.
func (h *Host) Controller() *engine.Controller { return h.ctrl }

// Debug returns the shared breakpoint controller.
func (h *Host) Debug() *engine.DebugController { return h.dbg }

// Trace returns the relay emitter that receives events from every
// scheduler generation.
func (h *Host) Trace() *trace.Emitter { return h.relay }

// Subscribe registers fn on the relay.
func (h *Host) Subscribe(fn trace.Subscriber) (cancel func()) {
	return h.relay.Subscribe(fn)
}

// Graph returns the graph the host runs.
func (h *Host) Graph() *graph.GraphModel { return h.graph }

// Status is a point-in-time view of the host.
type Status struct {
	State         ExecutionState
	RunMode       engine.RunMode
	Continuous    bool
	PendingTokens int
	StartNode     graph.NodeID
	PendingStart  graph.NodeID
	HasPending    bool
	Epoch         int64
	Active        []graph.NodeID
	Breakpoints   []graph.NodeID
}

// Status returns the current Status.
func (h *Host) Status() Status {
	h.mu.Lock()
	st := Status{
		State:        h.stateLocked(),
		StartNode:    h.start,
		PendingStart: h.pending,
		HasPending:   h.hasPending,
		Epoch:        h.epochs.Current(),
		Active:       h.sched.ActiveNodes(),
	}
	h.mu.Unlock()

	st.RunMode = h.ctrl.RunMode()
	st.Continuous = h.ctrl.Continuous()
	st.PendingTokens = h.ctrl.PendingTokens()
	st.Breakpoints = h.dbg.Breakpoints()
	return st
}

// LastReport returns the report and error of the most recent finished run.
func (h *Host) LastReport() (engine.Report, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastReport, h.lastErr
}

func label(id graph.NodeID) string {
	if id.IsZero() {
		return "<all>"
	}
	return id.Short()
}
