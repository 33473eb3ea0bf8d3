package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/execgraph/internal/graph"
)

func TestDataStore_FansOutToAllRoutes(t *testing.T) {
	a, b, c := graph.NodeIDFromName("a"), graph.NodeIDFromName("b"), graph.NodeIDFromName("c")
	s := NewDataStore([]graph.LinkModel{
		{FromNode: a, FromPort: "out", ToNode: b, ToPort: "in"},
		{FromNode: a, FromPort: "out", ToNode: c, ToPort: "x"},
	})

	n := s.SetOutput(a, "out", graph.NewDataValue(7, graph.TypeInt, nil))
	assert.Equal(t, 2, n)
	assert.Equal(t, 7, s.GetInput(b, "in").Value())
	assert.Equal(t, 7, s.GetInput(c, "x").Value())
	assert.Len(t, s.Routes(a, "out"), 2)
}

func TestDataStore_UnwrittenSlotIsZero(t *testing.T) {
	s := NewDataStore(nil)
	id := graph.NodeIDFromName("a")

	v := s.GetInput(id, "in")
	assert.True(t, v.IsZero())
	_, ok := s.Lookup(id, "in")
	assert.False(t, ok)
}

func TestDataStore_UnroutedOutputIsDropped(t *testing.T) {
	s := NewDataStore(nil)
	id := graph.NodeIDFromName("a")
	assert.Equal(t, 0, s.SetOutput(id, "out", graph.NewDataValue(1, graph.TypeInt, nil)))
	assert.True(t, s.GetInput(id, "out").IsZero(), "outputs are not readable as inputs")
}

func TestDataStore_LastWriteWins(t *testing.T) {
	a, b := graph.NodeIDFromName("a"), graph.NodeIDFromName("b")
	s := NewDataStore([]graph.LinkModel{{FromNode: a, FromPort: "out", ToNode: b, ToPort: "in"}})

	s.SetOutput(a, "out", graph.NewDataValue("first", graph.TypeString, nil))
	s.SetOutput(a, "out", graph.NewDataValue("second", graph.TypeString, nil))
	assert.Equal(t, "second", s.GetInput(b, "in").Value())
}

func TestDataStore_InputsSnapshot(t *testing.T) {
	a, b := graph.NodeIDFromName("a"), graph.NodeIDFromName("b")
	s := NewDataStore([]graph.LinkModel{{FromNode: a, FromPort: "out", ToNode: b, ToPort: "x"}})
	s.SetOutput(a, "out", graph.NewDataValue(1, graph.TypeInt, nil))

	in := s.Inputs(b, []string{"x", "y"})
	assert.Len(t, in, 1)
	assert.Equal(t, 1, in["x"].Value())
}
