package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/graphfile"
	"github.com/roach88/execgraph/internal/validator"
)

// ValidationResult is the data of a validate response.
type ValidationResult struct {
	Graph       string            `json:"graph"`
	Valid       bool              `json:"valid"`
	Nodes       int               `json:"nodes"`
	Links       int               `json:"links"`
	Fingerprint string            `json:"fingerprint"`
	Errors      []ValidationIssue `json:"errors"`
	Warnings    []CycleIssue      `json:"warnings"`
}

// ValidationIssue is a validator error with node names resolved.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// CycleIssue is a cycle warning with node names resolved.
type CycleIssue struct {
	Path  []string `json:"path"`
	Level string   `json:"level"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph>",
		Short: "Check a graph definition without running it",
		Long: `Validate loads a graph file and checks every link: both endpoints
exist, the source is an output and the target an input, the data types are
compatible and single ports have at most one connection.

Cycles are reported as warnings.

Exit codes: 0 valid, 1 invalid graph, 2 unreadable file.

Examples:
  execgraph validate ./graphs/sum.yaml
  execgraph validate ./graphs/sum.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	lg, err := graphfile.Load(path, opts.registry())
	if err != nil {
		return reportError(f, err)
	}
	f.VerboseLog("loaded %d node(s), %d link(s) from %s", lg.Model.Len(), len(lg.Model.Links()), path)

	result := checkGraph(lg)
	if f.Format == "json" {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		writeValidationText(f.Writer, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("graph %s is invalid: %d error(s)", path, len(result.Errors)))
	}
	return nil
}

// checkGraph runs the validator and cycle analysis over a loaded graph.
func checkGraph(lg *graphfile.Graph) ValidationResult {
	hash, _ := lg.Model.Fingerprint()
	result := ValidationResult{
		Graph:       lg.Name,
		Nodes:       lg.Model.Len(),
		Links:       len(lg.Model.Links()),
		Fingerprint: hash,
		Errors:      []ValidationIssue{},
		Warnings:    []CycleIssue{},
	}
	for _, ve := range validator.Validate(lg.Model, validator.DefaultCompatibility{}) {
		result.Errors = append(result.Errors, toIssue(ve, lg.Label))
	}
	for _, w := range validator.AnalyzeCycles(lg.Model) {
		issue := CycleIssue{Level: w.Level}
		for _, id := range w.Path {
			issue.Path = append(issue.Path, lg.Label(id))
		}
		result.Warnings = append(result.Warnings, issue)
	}
	result.Valid = len(result.Errors) == 0
	return result
}

func toIssue(ve validator.ValidationError, label func(graph.NodeID) string) ValidationIssue {
	issue := ValidationIssue{Code: ve.Code, Message: ve.Message}
	if ve.Link != nil {
		issue.Link = fmt.Sprintf("%s.%s -> %s.%s",
			label(ve.Link.FromNode), ve.Link.FromPort, label(ve.Link.ToNode), ve.Link.ToPort)
	}
	return issue
}

func writeValidationText(w io.Writer, r ValidationResult) {
	for _, e := range r.Errors {
		if e.Link != "" {
			fmt.Fprintf(w, "✗ [%s] %s: %s\n", e.Code, e.Link, e.Message)
		} else {
			fmt.Fprintf(w, "✗ [%s] %s\n", e.Code, e.Message)
		}
	}
	for _, c := range r.Warnings {
		fmt.Fprintf(w, "! %s: cycle %s\n", c.Level, strings.Join(c.Path, " -> "))
	}
	if r.Valid {
		fmt.Fprintf(w, "✓ graph %q valid (%d nodes, %d links)\n", r.Graph, r.Nodes, r.Links)
		return
	}
	fmt.Fprintf(w, "graph %q invalid: %d error(s)\n", r.Graph, len(r.Errors))
}

// reportError prints a coded failure and maps it to ExitCommandError.
func reportError(f *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		code = coded.ErrorCode()
	}
	if outErr := f.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCommandError, code, err)
}

// reportValidationError prints an AggregateError from host construction.
// Returns false when err is not a validation failure.
func reportValidationError(f *OutputFormatter, lg *graphfile.Graph, err error) (error, bool) {
	var agg *validator.AggregateError
	if !errors.As(err, &agg) {
		return nil, false
	}
	issues := make([]ValidationIssue, 0, len(agg.Errors))
	for _, ve := range agg.Errors {
		issues = append(issues, toIssue(ve, lg.Label))
	}
	if f.Format == "json" {
		if outErr := f.Error(ErrCodeValidation, "graph validation failed", issues); outErr != nil {
			return outErr, true
		}
	} else {
		for _, is := range issues {
			fmt.Fprintf(f.Writer, "✗ [%s] %s: %s\n", is.Code, is.Link, is.Message)
		}
	}
	return WrapExitError(ExitFailure, "graph validation failed", err), true
}
