package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/execgraph/internal/graphfile"
	"github.com/roach88/execgraph/internal/store"
	"github.com/roach88/execgraph/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	List     bool
	Kinds    []string
	Node     string
}

// RunSummary describes one recorded run.
type RunSummary struct {
	ID         string    `json:"id"`
	GraphHash  string    `json:"graph_hash"`
	Start      string    `json:"start"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// TraceResult is the data of a trace response.
type TraceResult struct {
	Run    RunSummary      `json:"run"`
	Events []TimelineEntry `json:"events"`
	Stats  TraceStats      `json:"stats"`
}

// TraceStats counts the events of a run.
type TraceStats struct {
	Total  int            `json:"total"`
	Shown  int            `json:"shown"`
	ByKind map[string]int `json:"by_kind"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show a recorded run",
		Long: `Trace reads a database written by "run --db" and prints the events of
one run in the order they were recorded. Without a run id the most recent
run is shown.

Examples:
  execgraph trace --db ./runs.db --list
  execgraph trace --db ./runs.db
  execgraph trace --db ./runs.db 0191c7e2-... --kind node_error
  execgraph trace --db ./runs.db --node sum --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runTrace(cmd.Context(), opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded runs")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "show only these event kinds (node_enter, node_leave, data_write, flow, execution_reset, node_error)")
	cmd.Flags().StringVar(&opts.Node, "node", "", "show only events of this node")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, runID string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	keepKind, err := kindFilter(opts.Kinds)
	if err != nil {
		if outErr := f.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "invalid --kind", err)
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return reportError(f, &CommandError{Code: ErrCodeNotFound, Message: "trace database not found", Path: opts.Database, Err: err})
	}
	db, err := store.Open(opts.Database)
	if err != nil {
		return reportError(f, &CommandError{Code: ErrCodeStore, Message: "open trace database", Path: opts.Database, Err: err})
	}
	defer db.Close()

	if opts.List {
		return listRuns(ctx, f, db)
	}

	var run store.Run
	if runID == "" {
		run, err = db.LatestRun(ctx)
	} else {
		run, err = db.GetRun(ctx, runID)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		msg := "no runs recorded"
		if runID != "" {
			msg = fmt.Sprintf("run %s not found", runID)
		}
		if outErr := f.Error(ErrCodeNotFound, msg, nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, msg, err)
	}
	if err != nil {
		return reportError(f, &CommandError{Code: ErrCodeStore, Message: "read run", Path: opts.Database, Err: err})
	}

	nodeName := graphfile.NormalizeName(opts.Node)
	result := TraceResult{
		Run:    summarize(run),
		Events: []TimelineEntry{},
		Stats:  TraceStats{ByKind: map[string]int{}},
	}
	if !f.isJSON() {
		writeRunHeader(f.Writer, result.Run)
	}

	// Replay re-emits in seq order; seq here is the position in the run so
	// filtered output keeps the recorded numbering.
	var seq int64
	em := trace.NewEmitter()
	em.Subscribe(func(ev trace.Event) {
		seq++
		result.Stats.ByKind[ev.Kind().String()]++
		if !keepKind(ev.Kind()) {
			return
		}
		entry := newTimelineEntry(seq, ev, run.Label)
		if nodeName != "" && entry.Node != nodeName {
			return
		}
		result.Events = append(result.Events, entry)
		if !f.isJSON() {
			fmt.Fprintf(f.Writer, "%4d  %s\n", entry.Seq, entry.Detail)
		}
	})
	n, err := db.Replay(ctx, run.ID, em)
	if err != nil {
		return reportError(f, &CommandError{Code: ErrCodeStore, Message: "read events", Path: opts.Database, Err: err})
	}
	result.Stats.Total = n
	result.Stats.Shown = len(result.Events)

	if f.isJSON() {
		return f.Success(result)
	}
	if result.Stats.Shown != n {
		fmt.Fprintf(f.Writer, "(%d of %d events shown)\n", result.Stats.Shown, n)
	}
	return nil
}

func kindFilter(names []string) (func(trace.Kind) bool, error) {
	if len(names) == 0 {
		return func(trace.Kind) bool { return true }, nil
	}
	want := make(map[trace.Kind]bool, len(names))
	for _, name := range names {
		k, err := trace.ParseKind(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		want[k] = true
	}
	return func(k trace.Kind) bool { return want[k] }, nil
}

func listRuns(ctx context.Context, f *OutputFormatter, db *store.Store) error {
	runs, err := db.ListRuns(ctx)
	if err != nil {
		return reportError(f, &CommandError{Code: ErrCodeStore, Message: "list runs", Err: err})
	}
	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, summarize(r))
	}
	if f.isJSON() {
		return f.Success(summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(f.Writer, "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMODE\tSTARTED")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Status, s.Mode, s.StartedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// summarize converts a stored run. Runs are listed without labels, so the
// start node falls back to its short id there.
func summarize(r store.Run) RunSummary {
	start := "<all>"
	if !r.StartNode.IsZero() {
		start = r.Label(r.StartNode)
	}
	return RunSummary{
		ID:         r.ID,
		GraphHash:  r.GraphHash,
		Start:      start,
		Mode:       r.Mode,
		Status:     string(r.Status),
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

func writeRunHeader(w io.Writer, r RunSummary) {
	fmt.Fprintf(w, "run %s\n", r.ID)
	fmt.Fprintf(w, "  status: %s  mode: %s  start: %s\n", r.Status, r.Mode, r.Start)
	if r.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", r.Error)
	}
}
