package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/execgraph/internal/graph"
)

func passNode(name string) graph.NodeModel {
	return node(name, in("in", graph.TypeAny), out("out", graph.TypeAny))
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	g := mustGraph(t,
		[]graph.NodeModel{passNode("a"), passNode("b"), passNode("c")},
		[]graph.LinkModel{link("a", "out", "b", "in"), link("a", "out", "c", "in"), link("b", "out", "c", "in")},
	)
	assert.Empty(t, AnalyzeCycles(g))
}

func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
	assert.Empty(t, AnalyzeCycles(mustGraph(t, []graph.NodeModel{passNode("a")}, nil)))
}

func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	g := mustGraph(t,
		[]graph.NodeModel{passNode("a"), passNode("b"), passNode("c")},
		[]graph.LinkModel{link("a", "out", "b", "in"), link("b", "out", "a", "in"), link("b", "out", "c", "in")},
	)
	warnings := AnalyzeCycles(g)
	require.Len(t, warnings, 1)

	w := warnings[0]
	assert.Equal(t, "warning", w.Level)
	require.Len(t, w.Path, 3)
	assert.Equal(t, w.Path[0], w.Path[2], "path closes on its first node")
	assert.ElementsMatch(t,
		[]graph.NodeID{graph.NodeIDFromName("a"), graph.NodeIDFromName("b")},
		w.Path[:2])
	assert.Contains(t, w.Message, "dependency cycle")
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	g := mustGraph(t,
		[]graph.NodeModel{passNode("a")},
		[]graph.LinkModel{link("a", "out", "a", "in")},
	)
	warnings := AnalyzeCycles(g)
	require.Len(t, warnings, 1)
	a := graph.NodeIDFromName("a")
	assert.Equal(t, []graph.NodeID{a, a}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "links to itself")
}

func TestAnalyzeCycles_Deterministic(t *testing.T) {
	g := mustGraph(t,
		[]graph.NodeModel{passNode("a"), passNode("b"), passNode("c"), passNode("d")},
		[]graph.LinkModel{
			link("a", "out", "b", "in"), link("b", "out", "a", "in"),
			link("c", "out", "d", "in"), link("d", "out", "c", "in"),
		},
	)
	first := AnalyzeCycles(g)
	require.Len(t, first, 2)
	for range 10 {
		assert.Equal(t, first, AnalyzeCycles(g))
	}
}
