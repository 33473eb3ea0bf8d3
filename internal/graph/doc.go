// Package graph provides the declarative model of an execution graph.
//
// This package contains value types only. All other internal packages
// import graph; graph imports nothing internal, so it stays the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NodeID is a 128-bit value compared by value and used as a map key
//   - DataValue is immutable once constructed
//   - GraphModel is an immutable snapshot; constructing one rejects duplicate node ids
//   - Type compatibility is policy-driven and lives outside this package
package graph
