package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	graphPath := filepath.Join(dir, "g.yaml")
	require.NoError(t, os.WriteFile(graphPath, []byte("name: g\nnodes: []\n"), 0644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, `
name: demo
description: "demo scenario"
graph: g.yaml
start: a
timeout: 2s
expect:
  status: succeeded
  executed: [a, b]
assertions:
  - type: output
    port: b.out
    value: 2
`)

	sc, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", sc.Name)
	assert.Equal(t, "demo scenario", sc.Description)
	assert.Equal(t, filepath.Join(dir, "g.yaml"), sc.Graph)
	assert.Equal(t, "a", sc.Start)
	assert.Equal(t, 2*time.Second, sc.Timeout)
	assert.Equal(t, []string{"a", "b"}, sc.Expect.Executed)
	assert.Nil(t, sc.Expect.Failed)
	require.Len(t, sc.Assertions, 1)
	assert.Equal(t, AssertOutput, sc.Assertions[0].Type)
	assert.Equal(t, 2, sc.Assertions[0].Value)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MissingGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\ngraph: absent.yaml\nexpect:\n  status: succeeded\n"), 0644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph file not found")
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing name", "graph: g.yaml\nexpect: {status: succeeded}\n", "name is required"},
		{"missing graph", "name: x\nexpect: {status: succeeded}\n", "graph is required"},
		{"missing status", "name: x\ngraph: g.yaml\n", "expect.status is required"},
		{"bad status", "name: x\ngraph: g.yaml\nexpect: {status: maybe}\n", `expect.status "maybe"`},
		{"unknown field", "name: x\ngraph: g.yaml\nflow: []\nexpect: {status: succeeded}\n", "failed to parse YAML"},
		{"negative timeout", "name: x\ngraph: g.yaml\ntimeout: -1s\nexpect: {status: succeeded}\n", "timeout must be non-negative"},
		{
			"unknown assertion",
			"name: x\ngraph: g.yaml\nexpect: {status: succeeded}\nassertions:\n  - type: final_state\n",
			`unknown assertion type "final_state"`,
		},
		{
			"kind required",
			"name: x\ngraph: g.yaml\nexpect: {status: succeeded}\nassertions:\n  - type: trace_count\n    count: 1\n",
			"kind is required for trace_count",
		},
		{
			"bad kind",
			"name: x\ngraph: g.yaml\nexpect: {status: succeeded}\nassertions:\n  - type: trace_contains\n    kind: invocation\n",
			"assertions[0]",
		},
		{
			"short order",
			"name: x\ngraph: g.yaml\nexpect: {status: succeeded}\nassertions:\n  - type: trace_order\n    events: [node_enter a]\n",
			"at least two events",
		},
		{
			"bad output port",
			"name: x\ngraph: g.yaml\nexpect: {status: succeeded}\nassertions:\n  - type: output\n    port: out\n",
			`port "out"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestScenarioTimeoutDefault(t *testing.T) {
	assert.Equal(t, DefaultTimeout, (&Scenario{}).timeout())
	assert.Equal(t, time.Second, (&Scenario{Timeout: time.Second}).timeout())
}
