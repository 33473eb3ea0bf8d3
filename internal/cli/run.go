package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/execgraph/internal/engine"
	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/graphfile"
	"github.com/roach88/execgraph/internal/host"
	"github.com/roach88/execgraph/internal/store"
	"github.com/roach88/execgraph/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Start       string
	Mode        string
	Breakpoints []string
	Timeout     time.Duration

	Database     string
	OTLPEndpoint string
	NATSURL      string
	NATSPrefix   string
}

// RunResult is the data of a run response.
type RunResult struct {
	Graph       string            `json:"graph"`
	RunID       string            `json:"run_id"`
	RecordedAs  string            `json:"recorded_as,omitempty"`
	Start       string            `json:"start"`
	Mode        string            `json:"mode"`
	Status      string            `json:"status"`
	Executed    []string          `json:"executed"`
	Failures    map[string]string `json:"failures"`
	Unexecuted  []string          `json:"unexecuted"`
	Cancelled   bool              `json:"cancelled"`
	Error       string            `json:"error,omitempty"`
	Events      []TimelineEntry   `json:"events"`
	Breakpoints []string          `json:"breakpoints,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <graph>",
		Short: "Execute a graph",
		Long: `Run validates a graph and executes it in dependency order, printing
the trace as it happens.

In automatic mode every node runs without pausing. In development mode
commands are read from stdin (step, run, pause, break, start, confirm,
status, quit; see "help") and breakpoints pause before a node executes.

The trace can also be recorded to SQLite (--db), exported as OpenTelemetry
spans (--otlp-endpoint) and published to NATS (--nats-url).

Exit codes: 0 success, 1 invalid graph, failed node or cycle, 2 command error.

Examples:
  execgraph run ./graphs/sum.yaml
  execgraph run ./graphs/sum.yaml --start double --db ./runs.db
  execgraph run ./graphs/sum.cue --mode development --break sum`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGraph(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "execute only the subgraph reachable from this node")
	cmd.Flags().StringVar(&opts.Mode, "mode", "automatic", "run mode (automatic|development)")
	cmd.Flags().StringArrayVar(&opts.Breakpoints, "break", nil, "pause before this node in development mode (repeatable)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "cancel the run after this long (0 = no limit)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the trace to this SQLite database")
	cmd.Flags().StringVar(&opts.OTLPEndpoint, "otlp-endpoint", "", "export spans to this OTLP/HTTP collector (host:port)")
	cmd.Flags().StringVar(&opts.NATSURL, "nats-url", "", "publish trace events to this NATS server")
	cmd.Flags().StringVar(&opts.NATSPrefix, "nats-subject-prefix", telemetry.DefaultSubjectPrefix, "subject prefix for published events")

	return cmd
}

func runGraph(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.logger(f.GetErrWriter())

	mode, err := engine.ParseRunMode(opts.Mode)
	if err != nil {
		if outErr := f.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "invalid --mode", err)
	}

	reg := opts.registry()
	lg, err := graphfile.Load(path, reg)
	if err != nil {
		return reportError(f, err)
	}

	// Names on the command line are resolved before anything runs.
	var start graph.NodeID
	if opts.Start != "" {
		if start, err = lg.Lookup(opts.Start); err != nil {
			return reportError(f, err)
		}
	}
	breaks := make([]graph.NodeID, 0, len(opts.Breakpoints))
	for _, name := range opts.Breakpoints {
		id, err := lg.Lookup(name)
		if err != nil {
			return reportError(f, err)
		}
		breaks = append(breaks, id)
	}

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	ctrl := engine.NewController(
		engine.WithInitialMode(mode),
		engine.WithControllerLogger(logger),
	)
	h, err := host.NewFromFactory(lg.Model, reg.Factory(),
		host.WithController(ctrl),
		host.WithLogger(logger),
		host.WithRunIDGenerator(runIDs),
	)
	if err != nil {
		if exitErr, ok := reportValidationError(f, lg, err); ok {
			return exitErr
		}
		if outErr := f.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "build nodes", err)
	}

	if _, err := h.TrySetStartNode(start); err != nil {
		return WrapExitError(ExitCommandError, "set start node", err)
	}
	for _, id := range breaks {
		h.Debug().AddBreakpoint(id)
	}

	out := &lockedWriter{w: f.Writer}
	tl := newTimeline(out, lg.Label, !f.isJSON())
	unsubscribe := h.Subscribe(tl.Record)
	defer unsubscribe()

	sk, err := openSinks(ctx, sinkConfig{
		DBPath:       opts.Database,
		OTLPEndpoint: opts.OTLPEndpoint,
		NATSURL:      opts.NATSURL,
		NATSPrefix:   opts.NATSPrefix,
	}, h, lg, logger)
	if err != nil {
		return reportError(f, err)
	}
	recordedAs := sk.recordedRunID()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var (
		report engine.Report
		runErr error
	)
	if mode == engine.Development {
		f.VerboseLog("development mode: reading commands from stdin")
		var sessOut io.Writer = out
		if f.isJSON() {
			sessOut = f.GetErrWriter()
		}
		sess := newSession(h, lg, sessOut)
		report, runErr = sess.Run(ctx, cmd.InOrStdin())
	} else {
		if err := h.Start(ctx); err != nil {
			_ = sk.close(store.StatusFailed, err)
			return WrapExitError(ExitCommandError, "start run", err)
		}
		report, runErr = h.Wait(ctx)
		if ctx.Err() != nil {
			// Wait gave up on ctx; stop the run and take its real report.
			h.Stop()
			report, runErr = h.LastReport()
		}
	}

	status := runStatus(report, runErr)
	if err := sk.close(status, runErr); err != nil {
		logger.Warn("trace sinks reported errors", "error", err)
	}

	result := newRunResult(lg, mode, report, runErr, status, tl.Entries())
	result.RecordedAs = recordedAs
	result.Breakpoints = labels(lg, h.Debug().Breakpoints())
	if f.isJSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		writeRunSummary(out, result)
	}

	if exitErr := runExitError(mode, report, runErr); exitErr != nil {
		return exitErr
	}
	return nil
}

// runStatus maps a finished run onto the stored status.
func runStatus(r engine.Report, err error) store.RunStatus {
	switch {
	case r.Cancelled:
		return store.StatusCancelled
	case err != nil, len(r.Failures) > 0, len(r.Unexecuted) > 0:
		return store.StatusFailed
	default:
		return store.StatusSucceeded
	}
}

// runExitError decides the exit code. A development session that the user
// quit is not a failure; an automatic run cut short by a signal or
// timeout is.
func runExitError(mode engine.RunMode, r engine.Report, err error) error {
	switch {
	case engine.IsCycleError(err):
		return WrapExitError(ExitFailure, "cycle detected", err)
	case err != nil:
		return WrapExitError(ExitFailure, "run failed", err)
	case len(r.Failures) > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d node(s) failed", len(r.Failures)))
	case r.Cancelled && mode == engine.Automatic:
		return NewExitError(ExitFailure, "run cancelled")
	}
	return nil
}

func newRunResult(lg *graphfile.Graph, mode engine.RunMode, r engine.Report, err error, status store.RunStatus, events []TimelineEntry) RunResult {
	res := RunResult{
		Graph:      lg.Name,
		RunID:      r.RunID,
		Start:      lg.Label(r.StartNode),
		Mode:       mode.String(),
		Status:     string(status),
		Executed:   labels(lg, r.Executed),
		Failures:   make(map[string]string, len(r.Failures)),
		Unexecuted: labels(lg, r.Unexecuted),
		Cancelled:  r.Cancelled,
		Events:     events,
	}
	for id, ferr := range r.Failures {
		res.Failures[lg.Label(id)] = ferr.Error()
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func labels(lg *graphfile.Graph, ids []graph.NodeID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, lg.Label(id))
	}
	return out
}

func writeRunSummary(w io.Writer, r RunResult) {
	fmt.Fprintf(w, "run %s: %s (%d executed, %d failed, %d unexecuted)\n",
		r.RunID, r.Status, len(r.Executed), len(r.Failures), len(r.Unexecuted))

	names := make([]string, 0, len(r.Failures))
	for name := range r.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  failed %s: %s\n", name, r.Failures[name])
	}
	if len(r.Unexecuted) > 0 {
		fmt.Fprintf(w, "  unexecuted: %s\n", strings.Join(r.Unexecuted, ", "))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", r.Error)
	}
	if r.RecordedAs != "" {
		fmt.Fprintf(w, "  recorded as %s\n", r.RecordedAs)
	}
}
