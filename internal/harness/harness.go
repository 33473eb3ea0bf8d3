package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/execgraph/internal/builtins"
	"github.com/roach88/execgraph/internal/engine"
	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/graphfile"
	"github.com/roach88/execgraph/internal/host"
	"github.com/roach88/execgraph/internal/registry"
	"github.com/roach88/execgraph/internal/testutil"
	"github.com/roach88/execgraph/internal/trace"
	"github.com/roach88/execgraph/internal/validator"
)

// Harness runs scenarios against a node registry. Every run uses the run
// id "scenario-<name>" so traces are reproducible.
type Harness struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithRegistry replaces the builtin node types.
func WithRegistry(r *registry.Registry) Option {
	return func(h *Harness) {
		if r != nil {
			h.reg = r
		}
	}
}

// WithLogger sets the logger handed to the host. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		reg:    builtins.NewRegistry(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes sc with a default Harness.
func Run(sc *Scenario) (*Result, error) {
	return New().Run(context.Background(), sc)
}

// Run executes sc and checks it. The error is non-nil only when the
// scenario could not be executed at all (unreadable graph, unknown start
// node); check failures are reported through Result.
func (h *Harness) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	lg, err := graphfile.Load(sc.Graph, h.reg)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	result := NewResult()
	rt, err := host.NewFromFactory(lg.Model, h.reg.Factory(),
		host.WithLogger(h.logger),
		host.WithRunIDGenerator(engine.NewFixedGenerator("scenario-"+sc.Name)),
	)
	if err != nil {
		var agg *validator.AggregateError
		if !errors.As(err, &agg) {
			return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		result.Status = StatusInvalid
		for _, ve := range agg.Errors {
			result.Invalid = append(result.Invalid, ve.Error())
		}
		check(sc, result)
		return result, nil
	}

	if sc.Start != "" {
		id, err := lg.Lookup(sc.Start)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: start: %w", sc.Name, err)
		}
		if _, err := rt.TrySetStartNode(id); err != nil {
			return nil, fmt.Errorf("scenario %s: start: %w", sc.Name, err)
		}
	}

	rec := &testutil.TraceRecorder{}
	cancel := rt.Subscribe(rec.Record)
	defer cancel()

	runCtx, stop := context.WithTimeout(ctx, sc.timeout())
	defer stop()
	if err := rt.Start(runCtx); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	report, runErr := rt.Wait(runCtx)
	if runCtx.Err() != nil {
		rt.Stop()
		report, runErr = rt.LastReport()
	}

	fillResult(result, lg, report, runErr, rec.Events())
	check(sc, result)
	return result, nil
}

func fillResult(r *Result, lg *graphfile.Graph, report engine.Report, runErr error, events []trace.Event) {
	r.RunID = report.RunID
	r.Status = status(report, runErr)
	for _, id := range report.Executed {
		r.Executed = append(r.Executed, lg.Label(id))
	}
	for id, err := range report.Failures {
		r.Failures[lg.Label(id)] = err.Error()
	}
	for _, id := range report.Unexecuted {
		r.Unexecuted = append(r.Unexecuted, lg.Label(id))
	}
	for i, ev := range events {
		te := toTraceEvent(int64(i+1), ev, lg.Label)
		if te.Kind == trace.KindDataWrite.String() {
			r.Outputs[te.Node+"."+te.Port] = te.Value
		}
		r.Trace = append(r.Trace, te)
	}
}

func status(report engine.Report, err error) string {
	switch {
	case engine.IsCycleError(err):
		return StatusCycle
	case report.Cancelled:
		return StatusCancelled
	case err != nil, len(report.Failures) > 0:
		return StatusFailed
	default:
		return StatusSucceeded
	}
}

func toTraceEvent(seq int64, ev trace.Event, label func(graph.NodeID) string) TraceEvent {
	te := TraceEvent{
		Seq:    seq,
		Kind:   ev.Kind().String(),
		Detail: trace.Describe(ev, label),
	}
	if !ev.NodeID().IsZero() {
		te.Node = label(ev.NodeID())
	}
	switch e := ev.(type) {
	case trace.DataWrite:
		te.Port = e.Port
		te.Value = e.Value.Value()
		te.Type = e.Value.Type().String()
	case trace.Flow:
		te.To = label(e.To)
	case trace.NodeError:
		te.Error = e.Message
	}
	return te
}

// check compares the result against the expectation and assertions.
func check(sc *Scenario, r *Result) {
	want := sc.Expect
	if r.Status != want.Status {
		detail := ""
		switch r.Status {
		case StatusInvalid:
			detail = " (" + strings.Join(r.Invalid, "; ") + ")"
		case StatusFailed:
			detail = " (" + formatFailures(r.Failures) + ")"
		}
		r.AddError(fmt.Sprintf("status: expected %s, got %s%s", want.Status, r.Status, detail))
	}
	if want.Executed != nil && !slices.Equal(want.Executed, r.Executed) {
		r.AddError(fmt.Sprintf("executed: expected %v, got %v", want.Executed, r.Executed))
	}
	if want.Failed != nil {
		got := make([]string, 0, len(r.Failures))
		for name := range r.Failures {
			got = append(got, name)
		}
		if !sameSet(want.Failed, got) {
			r.AddError(fmt.Sprintf("failed: expected %v, got %v", sorted(want.Failed), sorted(got)))
		}
	}
	if want.Unexecuted != nil && !sameSet(want.Unexecuted, r.Unexecuted) {
		r.AddError(fmt.Sprintf("unexecuted: expected %v, got %v", sorted(want.Unexecuted), sorted(r.Unexecuted)))
	}

	for i, a := range sc.Assertions {
		if err := evaluate(r, a); err != nil {
			r.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
}

func formatFailures(f map[string]string) string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

func sameSet(a, b []string) bool {
	return slices.Equal(sorted(a), sorted(b))
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}
