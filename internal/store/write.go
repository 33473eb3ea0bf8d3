package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/trace"
)

// RunStatus is the final (or current) state of a recorded run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Run is one recorded host session.
type Run struct {
	ID         string
	GraphHash  string
	StartNode  graph.NodeID
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     RunStatus
	Error      string

	// Labels maps node ids to the names used in the graph file.
	Labels map[graph.NodeID]string
}

// Label returns the recorded name of id, or its short form when none was stored.
func (r Run) Label(id graph.NodeID) string {
	if name, ok := r.Labels[id]; ok {
		return name
	}
	return id.Short()
}

// BeginRun inserts the run row and its node labels in one transaction.
// Status is forced to running. A second BeginRun with the same id fails.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("begin run: empty run id")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	startNode := ""
	if !run.StartNode.IsZero() {
		startNode = run.StartNode.String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, graph_hash, start_node, mode, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.GraphHash,
		startNode,
		run.Mode,
		formatTime(run.StartedAt),
		string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}

	for id, label := range run.Labels {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_nodes (run_id, node_id, label)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, run.ID, id.String(), label)
		if err != nil {
			return fmt.Errorf("begin run %s: label %s: %w", run.ID, label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("begin run %s: commit: %w", run.ID, err)
	}
	return nil
}

// WriteEvent appends one event to a run.
// Uses ON CONFLICT DO NOTHING so re-delivering the same (run, seq) is a no-op.
// The run must exist (foreign key).
func (s *Store) WriteEvent(ctx context.Context, runID string, seq int64, ev trace.Event) error {
	data, err := marshalPayload(ev)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	nodeID := ""
	if !ev.NodeID().IsZero() {
		nodeID = ev.NodeID().String()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, kind, node_id, at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		seq,
		ev.Kind().String(),
		nodeID,
		formatTime(ev.Timestamp()),
		data,
	)
	if err != nil {
		return fmt.Errorf("write event %d: %w", seq, err)
	}
	return nil
}

// FinishRun records the final status of a run.
// Returns ErrRunNotFound when the run was never begun.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, string(status), msg, formatTime(time.Now()), runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}
