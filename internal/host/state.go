package host

import "fmt"

// ExecutionState is the host-level lifecycle state, orthogonal to the
// controller's RunMode.
type ExecutionState int

const (
	Idle ExecutionState = iota + 1
	Executing
	// PendingRestart forbids Start until the pending start-node change is
	// confirmed or rejected.
	PendingRestart
)

func (s ExecutionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Executing:
		return "executing"
	case PendingRestart:
		return "pending_restart"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StartNodeResult is the outcome of TrySetStartNode.
type StartNodeResult int

const (
	// Applied means the new start node is in effect.
	Applied StartNodeResult = iota + 1
	// RequireRestartConfirm means a run is in flight; the change is pending
	// until confirmed or rejected.
	RequireRestartConfirm
	// StartNodeRejected means the node is not in the graph.
	StartNodeRejected
)

func (r StartNodeResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case RequireRestartConfirm:
		return "require_restart_confirm"
	case StartNodeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("start_node_result(%d)", int(r))
	}
}
