package graph

import (
	"fmt"
	"maps"
	"slices"
)

// PortDirection says whether a port consumes or produces values.
type PortDirection int

const (
	// Input ports receive values routed from upstream outputs.
	Input PortDirection = iota + 1
	// Output ports publish values to every linked input.
	Output
)

// String returns "input" or "output".
func (d PortDirection) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// PortKind separates data ports from control ports.
type PortKind int

const (
	// Data ports carry DataValues.
	Data PortKind = iota + 1
	// Control ports carry ordering only.
	Control
)

// String returns "data" or "control".
func (k PortKind) String() string {
	switch k {
	case Data:
		return "data"
	case Control:
		return "control"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PortMetadata describes a named attachment point on a node.
// Name is unique per node and direction. Single caps the port at one link.
type PortMetadata struct {
	Name      string
	Direction PortDirection
	Kind      PortKind
	DataType  DataTypeID
	Single    bool
}

// NodeModel is the declarative description of one node.
//
// RuntimeType selects the implementation; resolving it is the job of a
// registry outside the engine. Properties carry per-node configuration
// (for example the value a constant node emits).
type NodeModel struct {
	ID          NodeID
	RuntimeType string
	Ports       []PortMetadata
	Properties  map[string]any
}

// Port finds a port by name, preferring the requested direction.
// When only a port of the other direction carries the name it is returned,
// so callers can report a direction mismatch instead of a missing port.
func (n NodeModel) Port(name string, want PortDirection) (PortMetadata, bool) {
	var fallback *PortMetadata
	for i := range n.Ports {
		if n.Ports[i].Name != name {
			continue
		}
		if n.Ports[i].Direction == want {
			return n.Ports[i], true
		}
		if fallback == nil {
			fallback = &n.Ports[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return PortMetadata{}, false
}

// InputPorts returns the names of the node's input ports in declaration order.
func (n NodeModel) InputPorts() []string {
	var names []string
	for _, p := range n.Ports {
		if p.Direction == Input {
			names = append(names, p.Name)
		}
	}
	return names
}

// LinkModel connects an output port to an input port.
type LinkModel struct {
	FromNode NodeID
	FromPort string
	ToNode   NodeID
	ToPort   string
}

// String renders the link as "from.port -> to.port" using short ids.
func (l LinkModel) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", l.FromNode.Short(), l.FromPort, l.ToNode.Short(), l.ToPort)
}

// DuplicateNodeError is returned when two nodes share an id.
type DuplicateNodeError struct {
	ID NodeID
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node id %s in graph model", e.ID)
}

// GraphModel is an immutable snapshot of nodes and links.
//
// It is the sole input to validation and to scheduler topology builds.
// Node order is declaration order and is preserved everywhere ordering
// matters (ready-queue seeding, reports).
type GraphModel struct {
	nodes []NodeModel
	links []LinkModel
	index map[NodeID]int
}

// NewGraphModel builds a GraphModel. Nodes, their ports and properties and
// the link list are copied so the caller's slices can be reused freely.
//
// Returns *DuplicateNodeError when two nodes share an id. Links are not
// checked here; that is the validator's job.
func NewGraphModel(nodes []NodeModel, links []LinkModel) (*GraphModel, error) {
	g := &GraphModel{
		nodes: make([]NodeModel, 0, len(nodes)),
		links: slices.Clone(links),
		index: make(map[NodeID]int, len(nodes)),
	}
	for _, n := range nodes {
		if _, dup := g.index[n.ID]; dup {
			return nil, &DuplicateNodeError{ID: n.ID}
		}
		n.Ports = slices.Clone(n.Ports)
		n.Properties = maps.Clone(n.Properties)
		g.index[n.ID] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}
	return g, nil
}

// Nodes returns the nodes in declaration order.
// The returned slice is a copy; port slices are shared and must not be modified.
func (g *GraphModel) Nodes() []NodeModel {
	return slices.Clone(g.nodes)
}

// Links returns a copy of the links in declaration order.
func (g *GraphModel) Links() []LinkModel {
	return slices.Clone(g.links)
}

// Node looks up a node by id.
func (g *GraphModel) Node(id NodeID) (NodeModel, bool) {
	i, ok := g.index[id]
	if !ok {
		return NodeModel{}, false
	}
	return g.nodes[i], true
}

// Has reports whether the graph contains a node with the given id.
func (g *GraphModel) Has(id NodeID) bool {
	_, ok := g.index[id]
	return ok
}

// Len returns the number of nodes.
func (g *GraphModel) Len() int {
	return len(g.nodes)
}
