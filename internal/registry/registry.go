// Package registry maps runtime-type selectors to node constructors.
//
// The table is filled explicitly at startup (see package builtins); the
// engine only ever sees the resulting engine.Factory.
package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/execgraph/internal/engine"
	"github.com/roach88/execgraph/internal/graph"
)

// Constructor builds a node for one model.
type Constructor func(graph.NodeModel) (engine.Node, error)

// Entry describes one registered node type.
type Entry struct {
	// Name is the runtime-type selector carried by NodeModel.RuntimeType.
	Name string

	// Description is shown by tooling.
	Description string

	// Ports are the default port declarations for models that omit them.
	Ports []graph.PortMetadata

	// PortsFor, when set, derives the defaults from a model's properties
	// and takes precedence over Ports.
	PortsFor func(props map[string]any) []graph.PortMetadata

	New Constructor
}

// DefaultPorts returns the ports a model with props gets when it declares
// none.
func (e Entry) DefaultPorts(props map[string]any) []graph.PortMetadata {
	if e.PortsFor != nil {
		return e.PortsFor(props)
	}
	return e.Ports
}

// Registry is a concurrency-safe selector table.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds e. Names must be unique and non-empty.
func (r *Registry) Register(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("registry: empty node type name")
	}
	if e.New == nil {
		return fmt.Errorf("registry: node type %q has no constructor", e.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[e.Name]; dup {
		return fmt.Errorf("registry: node type %q already registered", e.Name)
	}
	e.Ports = slices.Clone(e.Ports)
	r.entries[e.Name] = e
	return nil
}

// MustRegister is Register that panics on error, for static tables.
func (r *Registry) MustRegister(e Entry) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if ok {
		e.Ports = slices.Clone(e.Ports)
	}
	return e, ok
}

// Names returns the registered selectors sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Create builds the node for m. It fails when the runtime type is unknown,
// the constructor fails or returns nil, or the node reports another id.
func (r *Registry) Create(m graph.NodeModel) (engine.Node, error) {
	e, ok := r.Lookup(m.RuntimeType)
	if !ok {
		return nil, engine.NewUnresolvedTypeError(m.ID, m.RuntimeType)
	}
	n, err := e.New(m)
	if err != nil {
		return nil, fmt.Errorf("create %s node %s: %w", m.RuntimeType, m.ID.Short(), err)
	}
	if n == nil {
		return nil, fmt.Errorf("create %s node %s: constructor returned nil", m.RuntimeType, m.ID.Short())
	}
	if n.ID() != m.ID {
		return nil, engine.NewNodeMismatchError(m.ID, n.ID())
	}
	return n, nil
}

// Factory returns Create as an engine.Factory.
func (r *Registry) Factory() engine.Factory {
	return r.Create
}
