package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/execgraph/internal/graph"
)

func in(name string, t graph.DataTypeID) graph.PortMetadata {
	return graph.PortMetadata{Name: name, Direction: graph.Input, Kind: graph.Data, DataType: t}
}

func out(name string, t graph.DataTypeID) graph.PortMetadata {
	return graph.PortMetadata{Name: name, Direction: graph.Output, Kind: graph.Data, DataType: t}
}

func node(name string, ports ...graph.PortMetadata) graph.NodeModel {
	return graph.NodeModel{ID: graph.NodeIDFromName(name), RuntimeType: "Test", Ports: ports}
}

func link(from, fromPort, to, toPort string) graph.LinkModel {
	return graph.LinkModel{
		FromNode: graph.NodeIDFromName(from), FromPort: fromPort,
		ToNode: graph.NodeIDFromName(to), ToPort: toPort,
	}
}

func mustGraph(t *testing.T, nodes []graph.NodeModel, links []graph.LinkModel) *graph.GraphModel {
	t.Helper()
	g, err := graph.NewGraphModel(nodes, links)
	require.NoError(t, err)
	return g
}

func codes(errs []ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidate_ValidGraph(t *testing.T) {
	g := mustGraph(t,
		[]graph.NodeModel{
			node("a", out("out", graph.TypeInt)),
			node("b", in("in", graph.TypeFloat), out("out", graph.TypeFloat)),
			node("c", in("in", graph.TypeAny)),
		},
		[]graph.LinkModel{link("a", "out", "b", "in"), link("b", "out", "c", "in")},
	)
	assert.Empty(t, Validate(g, nil))
	assert.NoError(t, ValidateOrError(g, DefaultCompatibility{}))
}

func TestValidate_Errors(t *testing.T) {
	nodes := []graph.NodeModel{
		node("a", out("out", graph.TypeString), in("in", graph.TypeString)),
		node("b", in("in", graph.TypeInt), out("out", graph.TypeInt)),
	}

	tests := []struct {
		name string
		link graph.LinkModel
		want string
	}{
		{"missing source node", link("ghost", "out", "b", "in"), ErrMissingSourceNode},
		{"missing target node", link("a", "out", "ghost", "in"), ErrMissingTargetNode},
		{"missing source port", link("a", "nope", "b", "in"), ErrMissingSourcePort},
		{"missing target port", link("b", "out", "a", "nope"), ErrMissingTargetPort},
		{"incompatible types", link("a", "out", "b", "in"), ErrIncompatibleTypes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustGraph(t, nodes, []graph.LinkModel{tt.link})
			assert.Equal(t, []string{tt.want}, codes(Validate(g, nil)))
		})
	}
}

func TestValidate_WrongDirections(t *testing.T) {
	g := mustGraph(t,
		[]graph.NodeModel{
			node("a", in("x", graph.TypeInt)),
			node("b", out("y", graph.TypeInt)),
		},
		[]graph.LinkModel{link("a", "x", "b", "y")},
	)
	assert.Equal(t, []string{ErrSourceNotOutput, ErrTargetNotInput}, codes(Validate(g, nil)))
}

func TestValidate_SinglePort(t *testing.T) {
	single := in("in", graph.TypeInt)
	single.Single = true
	g := mustGraph(t,
		[]graph.NodeModel{
			node("a", out("out", graph.TypeInt)),
			node("b", out("out", graph.TypeInt)),
			node("c", single),
		},
		[]graph.LinkModel{link("a", "out", "c", "in"), link("b", "out", "c", "in")},
	)
	errs := Validate(g, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrSinglePortFanout, errs[0].Code)
	assert.Equal(t, "in", errs[0].Port)
	assert.Contains(t, errs[0].Message, "has 2")
}

func TestValidate_SingleOutputFanout(t *testing.T) {
	single := out("out", graph.TypeInt)
	single.Single = true
	g := mustGraph(t,
		[]graph.NodeModel{
			node("a", single),
			node("b", in("in", graph.TypeInt)),
			node("c", in("in", graph.TypeInt)),
		},
		[]graph.LinkModel{link("a", "out", "b", "in"), link("a", "out", "c", "in")},
	)
	assert.Equal(t, []string{ErrSinglePortFanout}, codes(Validate(g, nil)))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	g := mustGraph(t,
		[]graph.NodeModel{node("a", out("out", graph.TypeString)), node("b", in("in", graph.TypeInt))},
		[]graph.LinkModel{
			link("ghost", "out", "b", "in"),
			link("a", "out", "b", "in"),
			link("a", "missing", "b", "in"),
		},
	)
	assert.Equal(t, []string{ErrMissingSourceNode, ErrIncompatibleTypes, ErrMissingSourcePort}, codes(Validate(g, nil)))
}

func TestValidate_NilGraph(t *testing.T) {
	assert.Equal(t, []string{ErrNilGraph}, codes(Validate(nil, nil)))
}

func TestValidateOrError_Aggregate(t *testing.T) {
	g := mustGraph(t,
		[]graph.NodeModel{node("a", out("out", graph.TypeString)), node("b", in("in", graph.TypeInt))},
		[]graph.LinkModel{link("a", "out", "b", "in")},
	)
	err := ValidateOrError(g, nil)
	require.Error(t, err)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 1)
	assert.Contains(t, err.Error(), "graph validation failed with 1 error(s)")

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, ErrIncompatibleTypes, ve.Code)
}

func TestValidate_RulesExtendPolicy(t *testing.T) {
	g := mustGraph(t,
		[]graph.NodeModel{node("a", out("out", graph.TypeString)), node("b", in("in", graph.TypeInt))},
		[]graph.LinkModel{link("a", "out", "b", "in")},
	)
	assert.NotEmpty(t, Validate(g, nil))

	rules := NewRules(nil).Allow(graph.TypeString, graph.TypeInt)
	assert.Empty(t, Validate(g, rules))
}

func TestDefaultCompatibility(t *testing.T) {
	c := DefaultCompatibility{}
	tests := []struct {
		from, to graph.DataTypeID
		want     bool
	}{
		{graph.TypeString, graph.TypeString, true},
		{graph.TypeString, graph.TypeAny, true},
		{graph.TypeInt, graph.TypeFloat, true},
		{graph.TypeFloat, graph.TypeInt, false},
		{graph.TypeString, graph.TypeInt, false},
		{graph.TypeAny, graph.TypeInt, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.CanAssign(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCompatibilityFunc(t *testing.T) {
	never := CompatibilityFunc(func(graph.DataTypeID, graph.DataTypeID) bool { return false })
	g := mustGraph(t,
		[]graph.NodeModel{node("a", out("out", graph.TypeInt)), node("b", in("in", graph.TypeInt))},
		[]graph.LinkModel{link("a", "out", "b", "in")},
	)
	assert.Equal(t, []string{ErrIncompatibleTypes}, codes(Validate(g, never)))
}
