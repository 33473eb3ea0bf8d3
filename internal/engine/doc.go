// Package engine implements the execution core of execgraph.
//
// The engine runs a directed graph of nodes in dependency order. It is made
// of five cooperating parts:
//
// Controller:
// The run-mode/token state machine. In Automatic mode nodes run back to
// back; in Development mode each Step grants exactly one node permission to
// run. WaitIfNeeded is the single point where the execution goroutine
// blocks.
//
// DebugController:
// A breakpoint set plus an enabled flag. Breakpoints are honoured only in
// Development mode.
//
// DataStore:
// A routing table built from the graph links. Writing an output fans the
// value out to every connected input slot; the last write wins.
//
// Scheduler:
// A serialized Kahn traversal restricted to the active set (the nodes
// forward-reachable from an optional start node). One node executes at a
// time. Node failures become NodeError traces and never unwind the loop;
// successors still advance because progress requires completion, not
// success.
//
// Clock:
// A monotonic logical counter used for step tokens and execution epochs.
//
// Thread-safety model:
//   - Scheduler.Run: exactly one goroutine, once per Scheduler
//   - Controller and DebugController methods: safe from any goroutine
//   - DataStore: safe from any goroutine
package engine
