package engine

import (
	"sync"

	"github.com/roach88/execgraph/internal/graph"
)

// PortRef addresses one port of one node.
type PortRef struct {
	Node graph.NodeID
	Port string
}

// DataStore routes values from output ports to the input slots linked to
// them.
//
// The routing table is fixed at construction. Values live in a concurrent
// map keyed by the destination slot; a later write to the same slot
// replaces the earlier one. Reading a slot that was never written yields
// the zero DataValue.
type DataStore struct {
	routes map[PortRef][]PortRef
	values sync.Map // PortRef -> graph.DataValue
}

// NewDataStore builds the routing table from links. Links are routed in
// the order given.
func NewDataStore(links []graph.LinkModel) *DataStore {
	s := &DataStore{routes: make(map[PortRef][]PortRef)}
	for _, l := range links {
		from := PortRef{Node: l.FromNode, Port: l.FromPort}
		s.routes[from] = append(s.routes[from], PortRef{Node: l.ToNode, Port: l.ToPort})
	}
	return s
}

// SetOutput writes v to every slot routed from (node, port) and returns
// the number of slots written. An unrouted output is dropped.
func (s *DataStore) SetOutput(node graph.NodeID, port string, v graph.DataValue) int {
	targets := s.routes[PortRef{Node: node, Port: port}]
	for _, to := range targets {
		s.values.Store(to, v)
	}
	return len(targets)
}

// GetInput returns the value in slot (node, port), or the zero DataValue.
func (s *DataStore) GetInput(node graph.NodeID, port string) graph.DataValue {
	v, _ := s.Lookup(node, port)
	return v
}

// Lookup returns the value in slot (node, port) and whether it was written.
func (s *DataStore) Lookup(node graph.NodeID, port string) (graph.DataValue, bool) {
	v, ok := s.values.Load(PortRef{Node: node, Port: port})
	if !ok {
		return graph.DataValue{}, false
	}
	return v.(graph.DataValue), true
}

// Inputs returns a snapshot of the written input slots among ports.
func (s *DataStore) Inputs(node graph.NodeID, ports []string) map[string]graph.DataValue {
	out := make(map[string]graph.DataValue, len(ports))
	for _, p := range ports {
		if v, ok := s.Lookup(node, p); ok {
			out[p] = v
		}
	}
	return out
}

// Routes returns the destinations fed by (node, port).
func (s *DataStore) Routes(node graph.NodeID, port string) []PortRef {
	r := s.routes[PortRef{Node: node, Port: port}]
	out := make([]PortRef, len(r))
	copy(out, r)
	return out
}
