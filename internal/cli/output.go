package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/graphfile"
	"github.com/roach88/execgraph/internal/trace"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // success
	ExitFailure      = 1 // invalid graph, failed node, cycle
	ExitCommandError = 2 // bad path, unreadable file, database error
)

// Error codes of command failures outside graph loading. Load failures
// carry graphfile codes.
const (
	ErrCodeGeneric    = "E001" // generic/unknown error
	ErrCodeNotFound   = graphfile.CodeNotFound
	ErrCodeStore      = "E020" // trace database error
	ErrCodeTelemetry  = "E021" // exporter setup failed
	ErrCodeValidation = "E210" // graph rejected by the validator; details carry E2xx codes
)

// CommandError is a coded failure of a command's own resources.
type CommandError struct {
	Code    string
	Message string
	Path    string
	Err     error
}

func (e *CommandError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ErrorCode returns Code.
func (e *CommandError) ErrorCode() string { return e.Code }

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err; ExitFailure for plain errors
// and ExitSuccess for nil.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// Success writes data. Text mode prints it with fmt.Println.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a coded error. Details are printed in text mode only when
// verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a diagnostic line when verbose. It never writes to
// Writer in JSON mode.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter, falling back to Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// lockedWriter serializes writes from the trace goroutine and the command
// goroutine so lines never interleave.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// TimelineEntry is one printed trace line.
type TimelineEntry struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`
	Node   string `json:"node,omitempty"`
	Detail string `json:"detail"`
}

func newTimelineEntry(seq int64, ev trace.Event, label func(graph.NodeID) string) TimelineEntry {
	e := TimelineEntry{
		Seq:    seq,
		Kind:   ev.Kind().String(),
		Detail: trace.Describe(ev, label),
	}
	if !ev.NodeID().IsZero() {
		e.Node = label(ev.NodeID())
	}
	return e
}

// timeline prints events as numbered lines in text mode and collects them
// for the JSON result otherwise.
type timeline struct {
	mu      sync.Mutex
	out     io.Writer
	label   func(graph.NodeID) string
	echo    bool
	seq     int64
	entries []TimelineEntry
}

func newTimeline(out io.Writer, label func(graph.NodeID) string, echo bool) *timeline {
	return &timeline{out: out, label: label, echo: echo, entries: []TimelineEntry{}}
}

// Record has the trace.Subscriber signature.
func (t *timeline) Record(ev trace.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	e := newTimelineEntry(t.seq, ev, t.label)
	t.entries = append(t.entries, e)
	if t.echo {
		fmt.Fprintf(t.out, "%4d  %s\n", e.Seq, e.Detail)
	}
}

func (t *timeline) Entries() []TimelineEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TimelineEntry(nil), t.entries...)
}
