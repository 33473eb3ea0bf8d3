package trace

import (
	"fmt"
	"time"

	"github.com/roach88/execgraph/internal/graph"
)

// Kind identifies an event variant.
type Kind int

const (
	KindNodeEnter Kind = iota + 1
	KindNodeLeave
	KindDataWrite
	KindFlow
	KindExecutionReset
	KindNodeError
)

var kindNames = map[Kind]string{
	KindNodeEnter:      "node_enter",
	KindNodeLeave:      "node_leave",
	KindDataWrite:      "data_write",
	KindFlow:           "flow",
	KindExecutionReset: "execution_reset",
	KindNodeError:      "node_error",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown trace kind %q", s)
}

// Event is a sealed interface; only the variants in this file implement it.
// Consumers dispatch with a type switch.
type Event interface {
	Kind() Kind
	NodeID() graph.NodeID
	Timestamp() time.Time
	traceEvent()
}

// Header carries the fields shared by every variant.
type Header struct {
	Node graph.NodeID
	At   time.Time
}

// NodeID returns the node the event is about.
func (h Header) NodeID() graph.NodeID { return h.Node }

// Timestamp returns when the event was created.
func (h Header) Timestamp() time.Time { return h.At }

func (Header) traceEvent() {}

func header(id graph.NodeID) Header {
	return Header{Node: id, At: time.Now().UTC()}
}

// NodeEnter marks the scheduler entering a node, before it executes.
type NodeEnter struct{ Header }

// NodeLeave marks the end of a node's execution, successful or not.
type NodeLeave struct{ Header }

// DataWrite records a value committed to an output port.
type DataWrite struct {
	Header
	Port  string
	Value graph.DataValue
}

// Flow records the scheduler releasing an edge from Node to To.
type Flow struct {
	Header
	To graph.NodeID
}

// ExecutionReset marks a confirmed restart. Node is the new start node
// (zero for the full graph).
type ExecutionReset struct {
	Header
	EpochFrom int64
	EpochTo   int64
}

// NodeError records a node failure.
type NodeError struct {
	Header
	Message string
}

func (NodeEnter) Kind() Kind      { return KindNodeEnter }
func (NodeLeave) Kind() Kind      { return KindNodeLeave }
func (DataWrite) Kind() Kind      { return KindDataWrite }
func (Flow) Kind() Kind           { return KindFlow }
func (ExecutionReset) Kind() Kind { return KindExecutionReset }
func (NodeError) Kind() Kind      { return KindNodeError }

// NewNodeEnter creates a NodeEnter stamped with the current time.
func NewNodeEnter(id graph.NodeID) NodeEnter {
	return NodeEnter{Header: header(id)}
}

// NewNodeLeave creates a NodeLeave stamped with the current time.
func NewNodeLeave(id graph.NodeID) NodeLeave {
	return NodeLeave{Header: header(id)}
}

// NewDataWrite creates a DataWrite stamped with the current time.
func NewDataWrite(id graph.NodeID, port string, v graph.DataValue) DataWrite {
	return DataWrite{Header: header(id), Port: port, Value: v}
}

// NewFlow creates a Flow from one node to another.
func NewFlow(from, to graph.NodeID) Flow {
	return Flow{Header: header(from), To: to}
}

// NewExecutionReset creates an ExecutionReset for the given start node.
func NewExecutionReset(start graph.NodeID, from, to int64) ExecutionReset {
	return ExecutionReset{Header: header(start), EpochFrom: from, EpochTo: to}
}

// NewNodeError creates a NodeError with the given message.
func NewNodeError(id graph.NodeID, msg string) NodeError {
	return NodeError{Header: header(id), Message: msg}
}

// Describe renders the variant-specific part of an event as a short string.
// label maps node ids to display names; it may be nil.
func Describe(ev Event, label func(graph.NodeID) string) string {
	if label == nil {
		label = func(id graph.NodeID) string { return id.Short() }
	}
	switch e := ev.(type) {
	case NodeEnter:
		return fmt.Sprintf("enter %s", label(e.Node))
	case NodeLeave:
		return fmt.Sprintf("leave %s", label(e.Node))
	case DataWrite:
		return fmt.Sprintf("write %s.%s = %v (%s)", label(e.Node), e.Port, e.Value.Value(), e.Value.Type())
	case Flow:
		return fmt.Sprintf("flow %s -> %s", label(e.Node), label(e.To))
	case ExecutionReset:
		start := "<all>"
		if !e.Node.IsZero() {
			start = label(e.Node)
		}
		return fmt.Sprintf("reset epoch %d -> %d start=%s", e.EpochFrom, e.EpochTo, start)
	case NodeError:
		return fmt.Sprintf("error %s: %s", label(e.Node), e.Message)
	default:
		return fmt.Sprintf("unknown event %T", ev)
	}
}
