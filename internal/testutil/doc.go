// Package testutil holds helpers shared by package tests: a graph builder
// keyed by node names, probe nodes that record execution, a trace
// recorder, and deterministic id and sequence sources.
package testutil
