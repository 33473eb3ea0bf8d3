package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/execgraph/internal/graph"
)

// GraphBuilder assembles a GraphModel from node names. Node ids are
// derived from names with graph.NodeIDFromName.
type GraphBuilder struct {
	nodes []graph.NodeModel
	links []graph.LinkModel
	names map[graph.NodeID]string
}

// NewGraphBuilder returns an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{names: make(map[graph.NodeID]string)}
}

// ID returns the id used for name.
func ID(name string) graph.NodeID {
	return graph.NodeIDFromName(name)
}

// Node adds a node with explicit ports.
func (b *GraphBuilder) Node(name, runtimeType string, ports ...graph.PortMetadata) *GraphBuilder {
	id := ID(name)
	b.names[id] = name
	b.nodes = append(b.nodes, graph.NodeModel{ID: id, RuntimeType: runtimeType, Ports: ports})
	return b
}

// NodeWith adds a node with properties.
func (b *GraphBuilder) NodeWith(name, runtimeType string, props map[string]any, ports ...graph.PortMetadata) *GraphBuilder {
	b.Node(name, runtimeType, ports...)
	b.nodes[len(b.nodes)-1].Properties = props
	return b
}

// Pass adds a node with an "in" input and an "out" output, both of type any.
func (b *GraphBuilder) Pass(names ...string) *GraphBuilder {
	for _, n := range names {
		b.Node(n, "Pass", In("in", graph.TypeAny), Out("out", graph.TypeAny))
	}
	return b
}

// Link adds a link written "from.port", "to.port".
func (b *GraphBuilder) Link(from, to string) *GraphBuilder {
	fn, fp, _ := strings.Cut(from, ".")
	tn, tp, _ := strings.Cut(to, ".")
	b.links = append(b.links, graph.LinkModel{FromNode: ID(fn), FromPort: fp, ToNode: ID(tn), ToPort: tp})
	return b
}

// Chain links consecutive Pass nodes out -> in.
func (b *GraphBuilder) Chain(names ...string) *GraphBuilder {
	for i := 1; i < len(names); i++ {
		b.Link(names[i-1]+".out", names[i]+".in")
	}
	return b
}

// Build returns the graph, failing the test on error.
func (b *GraphBuilder) Build(t testing.TB) *graph.GraphModel {
	t.Helper()
	g, err := graph.NewGraphModel(b.nodes, b.links)
	require.NoError(t, err)
	return g
}

// Names maps ids back to the names they were built from.
func (b *GraphBuilder) Names() map[graph.NodeID]string {
	out := make(map[graph.NodeID]string, len(b.names))
	for k, v := range b.names {
		out[k] = v
	}
	return out
}

// Label returns a trace.Describe label function over the builder's names.
func (b *GraphBuilder) Label() func(graph.NodeID) string {
	names := b.Names()
	return func(id graph.NodeID) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id.Short()
	}
}

// In declares a data input port.
func In(name string, t graph.DataTypeID) graph.PortMetadata {
	return graph.PortMetadata{Name: name, Direction: graph.Input, Kind: graph.Data, DataType: t}
}

// Out declares a data output port.
func Out(name string, t graph.DataTypeID) graph.PortMetadata {
	return graph.PortMetadata{Name: name, Direction: graph.Output, Kind: graph.Data, DataType: t}
}
