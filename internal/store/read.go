package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/trace"
)

// Record is a stored event with its position in the run.
type Record struct {
	RunID string
	Seq   int64
	Event trace.Event
}

const runColumns = `id, graph_hash, start_node, mode, started_at, finished_at, status, error`

// GetRun returns a run with its labels, or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, err
	}
	if err := s.loadLabels(ctx, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// LatestRun returns the most recently started run, or ErrRunNotFound on an
// empty store.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, err
	}
	if err := s.loadLabels(ctx, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns all runs, newest first. Labels are not loaded.
// Returns an empty slice (not nil) on an empty store.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRunEvents returns the events of a run ordered by seq.
// Returns an empty slice (not nil) when the run has no events.
func (s *Store) ReadRunEvents(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, node_id, at, payload
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			seq                     int64
			kind, node, at, payload string
		)
		if err := rows.Scan(&seq, &kind, &node, &at, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := unmarshalEvent(kind, node, at, payload)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", seq, err)
		}
		records = append(records, Record{RunID: runID, Seq: seq, Event: ev})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// CountEvents returns how many events of the given kind a run holds.
// An empty kind counts all events.
func (s *Store) CountEvents(ctx context.Context, runID string, kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE run_id = ?`, runID).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE run_id = ? AND kind = ?`, runID, kind).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run               Run
		startNode, status string
		startedAt         string
		finishedAt        sql.NullString
	)
	err := row.Scan(&run.ID, &run.GraphHash, &startNode, &run.Mode, &startedAt, &finishedAt, &status, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = RunStatus(status)

	if run.StartNode, err = parseOptionalID(startNode); err != nil {
		return Run{}, fmt.Errorf("run %s start node: %w", run.ID, err)
	}
	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return Run{}, fmt.Errorf("run %s started_at: %w", run.ID, err)
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = time.Parse(timeLayout, finishedAt.String); err != nil {
			return Run{}, fmt.Errorf("run %s finished_at: %w", run.ID, err)
		}
	}
	return run, nil
}

func (s *Store) loadLabels(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, label FROM run_nodes
		WHERE run_id = ?
		ORDER BY node_id COLLATE BINARY
	`, run.ID)
	if err != nil {
		return fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	run.Labels = make(map[graph.NodeID]string)
	for rows.Next() {
		var node, label string
		if err := rows.Scan(&node, &label); err != nil {
			return fmt.Errorf("scan label: %w", err)
		}
		id, err := graph.ParseNodeID(node)
		if err != nil {
			return fmt.Errorf("label %q: %w", label, err)
		}
		run.Labels[id] = label
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate labels: %w", err)
	}
	return nil
}
