package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/execgraph/internal/trace"
)

// Sequencer hands out the per-run sequence numbers. engine.Clock and the
// deterministic test clock both satisfy it.
type Sequencer interface {
	Next() int64
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger used to report write failures.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// Recorder is a trace subscriber that appends every event to a run.
//
// Subscribers cannot return errors, so write failures are logged and kept;
// Err reports the first one. Recording never blocks execution on anything
// other than the SQLite write itself.
type Recorder struct {
	ctx    context.Context
	store  *Store
	runID  string
	seq    Sequencer
	logger *slog.Logger

	mu      sync.Mutex
	written int
	err     error
}

// NewRecorder creates a Recorder appending to runID. The run must have been
// begun with BeginRun.
func NewRecorder(ctx context.Context, s *Store, runID string, seq Sequencer, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		ctx:    ctx,
		store:  s,
		runID:  runID,
		seq:    seq,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes ev. It has the trace.Subscriber signature.
// Sequence allocation and the write happen under one lock so seq order
// matches insertion order even with concurrent emitters.
func (r *Recorder) Record(ev trace.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.seq.Next()
	if err := r.store.WriteEvent(r.ctx, r.runID, seq, ev); err != nil {
		r.logger.Error("trace write failed",
			"run", r.runID,
			"seq", seq,
			"kind", ev.Kind().String(),
			"error", err,
		)
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.written++
}

// Attach subscribes the recorder to an emitter and returns the cancel func.
func (r *Recorder) Attach(e *trace.Emitter) (cancel func()) {
	return e.Subscribe(r.Record)
}

// Written returns the number of events stored successfully.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Err returns the first write failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
