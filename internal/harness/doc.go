// Package harness runs graph scenarios as executable tests.
//
// A scenario names a graph file, an optional start node and the outcome
// the run must have. The harness executes the graph on a real host with a
// fixed run id, records the trace and checks it.
//
// # Scenario Format
//
//	name: sum_from_constants
//	description: "constants flow through Sum into Double"
//	graph: ../graphs/sum.yaml   # relative to the scenario file
//	start: sum                  # optional; default is the whole graph
//	timeout: 5s                 # optional; default DefaultTimeout
//	expect:
//	  status: succeeded         # succeeded, failed, cancelled, cycle or invalid
//	  executed: [a, b, sum, double]
//	  failed: []
//	assertions:
//	  - type: output
//	    port: double.out
//	    value: 14
//	  - type: trace_order
//	    events: ["node_enter a", "node_enter sum", "node_leave double"]
//
// # Assertion Types
//
//   - trace_contains: an event of kind (and node, port, value) occurred
//   - trace_order: events occurred in the given relative order
//   - trace_count: exactly count events of kind (and node) occurred
//   - output: the last value written to node.port
//
// Traces are compared against golden files with AssertGolden; the
// snapshot leaves out timestamps so it is identical across runs.
package harness
