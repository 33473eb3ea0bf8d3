package validator

import (
	"fmt"
	"strings"

	"github.com/roach88/execgraph/internal/graph"
)

// Validation error codes (E200-E299)
const (
	ErrNilGraph          = "E200" // no graph given
	ErrMissingSourceNode = "E201" // link source node not in graph
	ErrMissingTargetNode = "E202" // link target node not in graph
	ErrMissingSourcePort = "E203" // link source port not on node
	ErrMissingTargetPort = "E204" // link target port not on node
	ErrSourceNotOutput   = "E205" // link source port is not an output
	ErrTargetNotInput    = "E206" // link target port is not an input
	ErrIncompatibleTypes = "E207" // port data types not assignable
	ErrSinglePortFanout  = "E208" // single port has more than one connection
)

// ValidationError describes one problem found in a graph.
type ValidationError struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Link    *graph.LinkModel `json:"link,omitempty"`
	Node    graph.NodeID     `json:"node,omitzero"`
	Port    string           `json:"port,omitempty"`
}

func linkError(code string, l graph.LinkModel, node graph.NodeID, port, format string, args ...any) ValidationError {
	return ValidationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Link:    &l,
		Node:    node,
		Port:    port,
	}
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// AggregateError carries every ValidationError of a rejected graph.
type AggregateError struct {
	Errors []ValidationError
}

func (e *AggregateError) Error() string {
	lines := make([]string, 0, len(e.Errors)+1)
	lines = append(lines, fmt.Sprintf("graph validation failed with %d error(s):", len(e.Errors)))
	for _, ve := range e.Errors {
		lines = append(lines, "  "+ve.Error())
	}
	return strings.Join(lines, "\n")
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, ve := range e.Errors {
		out[i] = ve
	}
	return out
}

type portKey struct {
	node graph.NodeID
	port string
	dir  graph.PortDirection
}

// Validate checks every link of g and every single-connection port.
// A nil policy means DefaultCompatibility. Validate has no side effects.
func Validate(g *graph.GraphModel, policy Compatibility) []ValidationError {
	if g == nil {
		return []ValidationError{{Code: ErrNilGraph, Message: "graph is nil"}}
	}
	if policy == nil {
		policy = DefaultCompatibility{}
	}

	var errs []ValidationError
	counts := make(map[portKey]int)

	for _, l := range g.Links() {
		from, ok := g.Node(l.FromNode)
		if !ok {
			errs = append(errs, linkError(ErrMissingSourceNode, l, l.FromNode, "",
				"missing source node %s", l.FromNode))
			continue
		}
		to, ok := g.Node(l.ToNode)
		if !ok {
			errs = append(errs, linkError(ErrMissingTargetNode, l, l.ToNode, "",
				"missing target node %s", l.ToNode))
			continue
		}

		fromPort, ok := from.Port(l.FromPort, graph.Output)
		if !ok {
			errs = append(errs, linkError(ErrMissingSourcePort, l, from.ID, l.FromPort,
				"missing source port %q on node %s", l.FromPort, from.ID))
			continue
		}
		toPort, ok := to.Port(l.ToPort, graph.Input)
		if !ok {
			errs = append(errs, linkError(ErrMissingTargetPort, l, to.ID, l.ToPort,
				"missing target port %q on node %s", l.ToPort, to.ID))
			continue
		}

		if fromPort.Direction != graph.Output {
			errs = append(errs, linkError(ErrSourceNotOutput, l, from.ID, fromPort.Name,
				"port %s.%s must be Output for link %s", from.ID, fromPort.Name, l))
		}
		if toPort.Direction != graph.Input {
			errs = append(errs, linkError(ErrTargetNotInput, l, to.ID, toPort.Name,
				"port %s.%s must be Input for link %s", to.ID, toPort.Name, l))
		}
		if !policy.CanAssign(fromPort.DataType, toPort.DataType) {
			errs = append(errs, linkError(ErrIncompatibleTypes, l, to.ID, toPort.Name,
				"incompatible data types: %s.%s (%s) -> %s.%s (%s)",
				from.ID, fromPort.Name, fromPort.DataType, to.ID, toPort.Name, toPort.DataType))
		}

		counts[portKey{from.ID, fromPort.Name, fromPort.Direction}]++
		counts[portKey{to.ID, toPort.Name, toPort.Direction}]++
	}

	for _, n := range g.Nodes() {
		for _, p := range n.Ports {
			if !p.Single {
				continue
			}
			if c := counts[portKey{n.ID, p.Name, p.Direction}]; c > 1 {
				errs = append(errs, ValidationError{
					Code:    ErrSinglePortFanout,
					Message: fmt.Sprintf("port %s.%s allows a single connection but has %d", n.ID, p.Name, c),
					Node:    n.ID, Port: p.Name,
				})
			}
		}
	}

	return errs
}

// ValidateOrError returns an *AggregateError when Validate finds anything.
func ValidateOrError(g *graph.GraphModel, policy Compatibility) error {
	if errs := Validate(g, policy); len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
