package engine

import (
	"context"
	"iter"
	"maps"

	"github.com/roach88/execgraph/internal/graph"
	"github.com/roach88/execgraph/internal/trace"
)

// Node is the contract every node implementation satisfies.
//
// Execute runs once per scheduler run. Returning an error (or panicking)
// records a failure for this node; downstream nodes still run.
type Node interface {
	ID() graph.NodeID
	Execute(ctx context.Context, rc RuntimeContext) error
}

// Factory builds the implementation for one node model.
type Factory func(graph.NodeModel) (Node, error)

// RuntimeContext is what a node sees while it executes.
type RuntimeContext interface {
	// NodeID returns the id of the executing node.
	NodeID() graph.NodeID

	// RunMode returns the controller mode at the time the node was entered.
	RunMode() RunMode

	// Inputs returns the input values written before the node was entered.
	// The map is a copy; unwritten ports are absent.
	Inputs() map[string]graph.DataValue

	// Input returns one input, falling back to the live DataStore when the
	// port is not in the snapshot.
	Input(port string) graph.DataValue

	// Properties returns the node's configuration from its NodeModel.
	Properties() map[string]any

	// SetOutput commits a value to an output port and emits a DataWrite.
	SetOutput(port string, v graph.DataValue)

	// WriteOutputStream commits each value of seq in turn, stopping early if
	// ctx is done.
	WriteOutputStream(ctx context.Context, port string, seq iter.Seq[graph.DataValue]) error

	// Emit publishes a custom trace event.
	Emit(ev trace.Event)
}

type runtimeContext struct {
	id     graph.NodeID
	mode   RunMode
	inputs map[string]graph.DataValue
	props  map[string]any
	store  *DataStore
	trace  *trace.Emitter
}

func (c *runtimeContext) NodeID() graph.NodeID { return c.id }
func (c *runtimeContext) RunMode() RunMode     { return c.mode }

func (c *runtimeContext) Inputs() map[string]graph.DataValue {
	return maps.Clone(c.inputs)
}

func (c *runtimeContext) Input(port string) graph.DataValue {
	if v, ok := c.inputs[port]; ok {
		return v
	}
	return c.store.GetInput(c.id, port)
}

func (c *runtimeContext) Properties() map[string]any {
	return maps.Clone(c.props)
}

func (c *runtimeContext) SetOutput(port string, v graph.DataValue) {
	c.store.SetOutput(c.id, port, v)
	c.trace.Emit(trace.NewDataWrite(c.id, port, v))
}

func (c *runtimeContext) WriteOutputStream(ctx context.Context, port string, seq iter.Seq[graph.DataValue]) error {
	for v := range seq {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.SetOutput(port, v)
	}
	return nil
}

func (c *runtimeContext) Emit(ev trace.Event) {
	c.trace.Emit(ev)
}

// FuncNode adapts a function to the Node interface.
type FuncNode struct {
	NodeID graph.NodeID
	Fn     func(ctx context.Context, rc RuntimeContext) error
}

// NewFuncNode returns a Node that calls fn.
func NewFuncNode(id graph.NodeID, fn func(ctx context.Context, rc RuntimeContext) error) *FuncNode {
	return &FuncNode{NodeID: id, Fn: fn}
}

func (n *FuncNode) ID() graph.NodeID { return n.NodeID }

func (n *FuncNode) Execute(ctx context.Context, rc RuntimeContext) error {
	if n.Fn == nil {
		return nil
	}
	return n.Fn(ctx, rc)
}
