package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/execgraph/internal/graph"
)

func TestRuntimeError_Helpers(t *testing.T) {
	id := graph.NodeIDFromName("a")

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"cycle", NewCycleError([]graph.NodeID{id}), IsCycleError},
		{"not found", NewNodeNotFoundError(id, "graph"), IsNodeNotFound},
		{"mismatch", NewNodeMismatchError(id, graph.NewNodeID()), IsNodeMismatch},
		{"unresolved", NewUnresolvedTypeError(id, "Nope"), IsUnresolvedType},
		{"spent", NewSpentError(), IsSpent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)), "errors.As must see through wrapping")
			assert.False(t, tt.check(fmt.Errorf("plain")))
		})
	}
}

func TestRuntimeError_Message(t *testing.T) {
	id := graph.NodeIDFromName("a")
	err := NewCycleError([]graph.NodeID{id})
	assert.Contains(t, err.Error(), "CYCLE_DETECTED")
	assert.Contains(t, err.Error(), id.Short())

	assert.Equal(t, "SCHEDULER_SPENT: scheduler already ran; build a new one", NewSpentError().Error())
}
