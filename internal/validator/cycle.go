package validator

import (
	"fmt"
	"strings"

	"github.com/roach88/execgraph/internal/graph"
)

// CycleWarning describes a dependency cycle among nodes. Nodes on a cycle
// never reach in-degree zero, so a run whose active set includes them ends
// with those nodes unexecuted.
type CycleWarning struct {
	Path    []graph.NodeID `json:"path"` // first node repeated at the end
	Message string         `json:"message"`
	Level   string         `json:"level"`
}

// AnalyzeCycles finds strongly connected components of the link graph
// (Tarjan) and reports every component of size > 1 and every self-loop.
// Nodes are visited in declaration order so the result is deterministic.
func AnalyzeCycles(g *graph.GraphModel) []CycleWarning {
	if g == nil || len(g.Links()) == 0 {
		return nil
	}

	adj := make(map[graph.NodeID][]graph.NodeID)
	for _, l := range g.Links() {
		if g.Has(l.FromNode) && g.Has(l.ToNode) {
			adj[l.FromNode] = append(adj[l.FromNode], l.ToNode)
		}
	}

	var order []graph.NodeID
	for _, n := range g.Nodes() {
		order = append(order, n.ID)
	}

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(order, adj) {
		if len(scc) > 1 || hasSelfLoop(scc[0], adj) {
			warnings = append(warnings, sccToWarning(scc, adj))
		}
	}
	return warnings
}

func hasSelfLoop(id graph.NodeID, adj map[graph.NodeID][]graph.NodeID) bool {
	for _, n := range adj[id] {
		if n == id {
			return true
		}
	}
	return false
}

func tarjanSCC(order []graph.NodeID, adj map[graph.NodeID][]graph.NodeID) [][]graph.NodeID {
	var (
		index   = 0
		stack   []graph.NodeID
		indices = make(map[graph.NodeID]int)
		lowlink = make(map[graph.NodeID]int)
		onStack = make(map[graph.NodeID]bool)
		sccs    [][]graph.NodeID
	)

	var strongConnect func(graph.NodeID)
	strongConnect = func(v graph.NodeID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []graph.NodeID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, v := range order {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}

// sccToWarning walks edges inside the component from its root until it
// returns to the root.
func sccToWarning(scc []graph.NodeID, adj map[graph.NodeID][]graph.NodeID) CycleWarning {
	// Tarjan pops the root last.
	start := scc[len(scc)-1]
	if len(scc) == 1 {
		return CycleWarning{
			Path:    []graph.NodeID{start, start},
			Message: fmt.Sprintf("node %s links to itself", start.Short()),
			Level:   "warning",
		}
	}

	members := make(map[graph.NodeID]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}

	path := []graph.NodeID{start}
	visited := map[graph.NodeID]bool{}
	current := start
	for {
		visited[current] = true
		var next graph.NodeID
		found := false
		for _, n := range adj[current] {
			if members[n] && (!visited[n] || n == start) {
				next, found = n, true
				break
			}
		}
		if !found {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = id.Short()
	}
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("dependency cycle: %s", strings.Join(parts, " -> ")),
		Level:   "warning",
	}
}
