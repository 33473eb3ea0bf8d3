package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/execgraph/internal/graph"
)

// RuntimeError represents an error detected while building or running a
// Scheduler.
//
// Runtime errors include:
//   - Cycle detection: active nodes left unexecuted after the ready queue drained
//   - Node lookup: a graph node has no implementation, or a start node is unknown
//   - Mismatch: a node implementation reports an id that is not in the graph
//   - Unresolved type: no factory is registered for a node's runtime type
//   - Spent: Run called twice on the same Scheduler
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Nodes lists the affected nodes, in graph declaration order.
	Nodes []graph.NodeID

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeCycleDetected  RuntimeErrorCode = "CYCLE_DETECTED"
	ErrCodeNodeNotFound   RuntimeErrorCode = "NODE_NOT_FOUND"
	ErrCodeNodeMismatch   RuntimeErrorCode = "NODE_MISMATCH"
	ErrCodeUnresolvedType RuntimeErrorCode = "UNRESOLVED_TYPE"
	ErrCodeDuplicateNode  RuntimeErrorCode = "DUPLICATE_NODE"
	ErrCodeSchedulerSpent RuntimeErrorCode = "SCHEDULER_SPENT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if len(e.Nodes) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	ids := make([]string, len(e.Nodes))
	for i, id := range e.Nodes {
		ids[i] = id.Short()
	}
	return fmt.Sprintf("%s: %s (nodes=%s)", e.Code, e.Message, strings.Join(ids, ","))
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsCycleError reports whether err is a cycle detection error.
func IsCycleError(err error) bool { return hasCode(err, ErrCodeCycleDetected) }

// IsNodeNotFound reports whether err is a missing node error.
func IsNodeNotFound(err error) bool { return hasCode(err, ErrCodeNodeNotFound) }

// IsNodeMismatch reports whether err is a node id mismatch error.
func IsNodeMismatch(err error) bool { return hasCode(err, ErrCodeNodeMismatch) }

// IsUnresolvedType reports whether err is an unresolved runtime type error.
func IsUnresolvedType(err error) bool { return hasCode(err, ErrCodeUnresolvedType) }

// IsSpent reports whether err was returned by a second Run on a Scheduler.
func IsSpent(err error) bool { return hasCode(err, ErrCodeSchedulerSpent) }

// NewCycleError reports active nodes that never became ready.
func NewCycleError(unexecuted []graph.NodeID) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCycleDetected,
		Message: fmt.Sprintf("%d active node(s) never became ready; the active subgraph has a cycle", len(unexecuted)),
		Nodes:   unexecuted,
	}
}

// NewNodeNotFoundError reports a node id absent from the graph or the
// implementation set.
func NewNodeNotFoundError(id graph.NodeID, where string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNodeNotFound,
		Message: fmt.Sprintf("node %s not found in %s", id, where),
		Nodes:   []graph.NodeID{id},
	}
}

// NewNodeMismatchError reports a factory that built a node under a
// different id than the model it was given.
func NewNodeMismatchError(want, got graph.NodeID) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNodeMismatch,
		Message: fmt.Sprintf("node implementation id %s does not match model id %s", got, want),
		Nodes:   []graph.NodeID{want},
		Details: map[string]string{"got": got.String()},
	}
}

// NewUnresolvedTypeError reports a runtime type with no registered
// constructor.
func NewUnresolvedTypeError(id graph.NodeID, runtimeType string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnresolvedType,
		Message: fmt.Sprintf("no node constructor for runtime type %q", runtimeType),
		Nodes:   []graph.NodeID{id},
		Details: map[string]string{"runtime_type": runtimeType},
	}
}

// NewDuplicateNodeError reports two implementations for one node id.
func NewDuplicateNodeError(id graph.NodeID) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDuplicateNode,
		Message: fmt.Sprintf("duplicate node implementation for %s", id),
		Nodes:   []graph.NodeID{id},
	}
}

// NewSpentError reports a Scheduler that has already run.
func NewSpentError() *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeSchedulerSpent,
		Message: "scheduler already ran; build a new one",
	}
}

// NodePanicError wraps a value recovered from a panicking node.
type NodePanicError struct {
	Node  graph.NodeID
	Value any
}

func (e *NodePanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.Node.Short(), e.Value)
}
