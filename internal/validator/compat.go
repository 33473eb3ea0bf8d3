package validator

import (
	"sync"

	"github.com/roach88/execgraph/internal/graph"
)

// Compatibility decides whether a value of type from may flow into a port
// of type to.
type Compatibility interface {
	CanAssign(from, to graph.DataTypeID) bool
}

// CompatibilityFunc adapts a function to Compatibility.
type CompatibilityFunc func(from, to graph.DataTypeID) bool

func (f CompatibilityFunc) CanAssign(from, to graph.DataTypeID) bool { return f(from, to) }

// DefaultCompatibility accepts identical types, anything into any, and int
// into float.
type DefaultCompatibility struct{}

func (DefaultCompatibility) CanAssign(from, to graph.DataTypeID) bool {
	switch {
	case from == to:
		return true
	case to == graph.TypeAny:
		return true
	case from == graph.TypeInt && to == graph.TypeFloat:
		return true
	default:
		return false
	}
}

// Rules extends a base policy with explicit from -> to allowances.
// It is safe for concurrent use.
type Rules struct {
	base Compatibility

	mu    sync.RWMutex
	allow map[[2]graph.DataTypeID]struct{}
}

// NewRules returns a rule table on top of base. A nil base means
// DefaultCompatibility.
func NewRules(base Compatibility) *Rules {
	if base == nil {
		base = DefaultCompatibility{}
	}
	return &Rules{base: base, allow: make(map[[2]graph.DataTypeID]struct{})}
}

// Allow permits from -> to. It returns r for chaining.
func (r *Rules) Allow(from, to graph.DataTypeID) *Rules {
	r.mu.Lock()
	r.allow[[2]graph.DataTypeID{from, to}] = struct{}{}
	r.mu.Unlock()
	return r
}

func (r *Rules) CanAssign(from, to graph.DataTypeID) bool {
	if r.base.CanAssign(from, to) {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.allow[[2]graph.DataTypeID{from, to}]
	return ok
}
