package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/execgraph/internal/engine"
	"github.com/roach88/execgraph/internal/graph"
)

func TestGraphBuilderAndProbe(t *testing.T) {
	b := NewGraphBuilder().Pass("a", "b").Chain("a", "b")
	g := b.Build(t)
	require.Equal(t, 2, g.Len())
	require.Len(t, g.Links(), 1)

	p := NewProbe()
	rec := &TraceRecorder{}
	s, err := engine.NewScheduler(g, p.Nodes(g), nil, nil, graph.NodeID{},
		engine.WithRunIDGenerator(NewFixedRunIDGenerator("")))
	require.NoError(t, err)
	s.Trace().Subscribe(rec.Record)

	report, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "test-run", report.RunID)
	assert.Equal(t, []graph.NodeID{ID("a"), ID("b")}, p.Executed())
	assert.Equal(t, p.Executed(), rec.Entered())
	assert.Equal(t, []string{"enter a", "leave a", "flow a -> b", "enter b", "leave b"}, rec.Lines(b.Label()))

	p.Reset()
	assert.Empty(t, p.Executed())
}
