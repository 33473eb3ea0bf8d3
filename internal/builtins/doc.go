// Package builtins provides a small reference node set: Constant, Concat,
// Sum, Multiply, Double and Delay. Register adds them to a registry.
package builtins
