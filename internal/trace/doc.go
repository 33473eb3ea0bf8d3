// Package trace provides the observability bus of the execution engine.
//
// Events form a closed set: NodeEnter, NodeLeave, DataWrite, Flow,
// ExecutionReset and NodeError. Each carries a NodeID and a timestamp.
// Events are append-only and never retracted.
//
// The Emitter buffers every event in an unbounded FIFO queue and delivers
// it synchronously to live subscribers on the emitting goroutine. A
// panicking subscriber is recovered and logged; observability must never
// crash execution.
package trace
