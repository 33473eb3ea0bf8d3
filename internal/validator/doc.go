// Package validator checks a GraphModel for structural and type soundness
// before a Scheduler is built from it.
//
// Validate never fails fast: it returns every problem found. Links are
// checked for missing nodes, missing ports, wrong port directions and
// incompatible data types; ports flagged single are checked for more than
// one connection. ValidateOrError folds the list into an AggregateError.
//
// AnalyzeCycles is a separate static pass that reports dependency cycles as
// warnings. A cyclic active subgraph can never fully execute, so callers
// usually surface these alongside validation errors.
package validator
