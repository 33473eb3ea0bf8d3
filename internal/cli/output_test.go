package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/trace"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]int{"nodes": 4}))
	resp := decodeResponse(t, buf)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"nodes": float64(4)}, resp.Data)
	assert.Nil(t, resp.Error)

	buf.Reset()
	require.NoError(t, f.Error(ErrCodeValidation, "graph is invalid", []string{"E207: sum.a"}))
	resp = decodeResponse(t, buf)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "graph is invalid", resp.Error.Message)
	assert.Equal(t, []any{"E207: sum.a"}, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		write   func(f *OutputFormatter) error
		want    string
	}{
		{
			name:  "success",
			write: func(f *OutputFormatter) error { return f.Success("graph valid") },
			want:  "graph valid\n",
		},
		{
			name:  "error hides details",
			write: func(f *OutputFormatter) error { return f.Error("E005", "graph file not found", "sum.yaml") },
			want:  "Error [E005]: graph file not found\n",
		},
		{
			name:    "verbose error shows details",
			verbose: true,
			write:   func(f *OutputFormatter) error { return f.Error("E005", "graph file not found", "sum.yaml") },
			want:    "Error [E005]: graph file not found\nDetails: sum.yaml\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}
			require.NoError(t, tt.write(f))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	f.VerboseLog("loading %s", "sum.yaml")
	assert.Empty(t, errOut.String())

	f.Verbose = true
	f.VerboseLog("loading %s", "sum.yaml")
	assert.Equal(t, "loading sum.yaml\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestCommandError(t *testing.T) {
	cause := errors.New("disk full")
	err := &CommandError{Code: ErrCodeStore, Message: "cannot open trace database", Path: "runs.db", Err: cause}

	assert.Equal(t, "E020: runs.db: cannot open trace database: disk full", err.Error())
	assert.Equal(t, ErrCodeStore, err.ErrorCode())
	assert.ErrorIs(t, err, cause)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "run failed", errors.New("boom")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestReportErrorUsesErrorCode(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	err := reportError(f, &CommandError{Code: ErrCodeNotFound, Message: "database not found", Path: "x.db"})
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)

	buf.Reset()
	err = reportError(f, errors.New("uncoded"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, ErrCodeGeneric, resp.Error.Code)
}

func TestTimeline(t *testing.T) {
	a := graph.NodeIDFromName("a")
	b := graph.NodeIDFromName("b")
	names := map[graph.NodeID]string{a: "a", b: "b"}
	label := func(id graph.NodeID) string { return names[id] }

	buf := &bytes.Buffer{}
	tl := newTimeline(buf, label, true)
	tl.Record(trace.NewNodeEnter(a))
	tl.Record(trace.NewFlow(a, b))

	assert.Equal(t, "   1  enter a\n   2  flow a -> b\n", buf.String())

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, TimelineEntry{Seq: 2, Kind: "flow", Node: "a", Detail: "flow a -> b"}, entries[1])
}

func TestTimelineQuiet(t *testing.T) {
	buf := &bytes.Buffer{}
	tl := newTimeline(buf, func(graph.NodeID) string { return "n" }, false)
	tl.Record(trace.NewNodeLeave(graph.NodeIDFromName("n")))

	assert.Empty(t, buf.String())
	assert.Len(t, tl.Entries(), 1)
}
