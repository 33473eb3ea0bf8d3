package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Sum(t *testing.T) {
	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden_Sum -update
	result, err := RunWithGolden(t, loadTestScenario(t, "sum_full"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	snap := TraceSnapshot{
		ScenarioName: "x",
		Status:       StatusSucceeded,
		Trace: []TraceEvent{
			{Seq: 1, Kind: "flow", Node: "a", To: "b", Detail: "flow a -> b"},
		},
	}
	first, err := MarshalSnapshot(snap)
	require.NoError(t, err)
	second, err := MarshalSnapshot(snap)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `"detail": "flow a -> b"`)
	assert.NotContains(t, string(first), "run_id")
	assert.True(t, first[len(first)-1] == '\n')
}
