package testutil

import (
	"context"
	"sync"

	"github.com/roach88/execgraph/internal/engine"
	"github.com/roach88/execgraph/internal/graph"
)

// Probe builds nodes that record their execution. Hooks let a test make a
// node fail, block or write outputs.
type Probe struct {
	mu    sync.Mutex
	ran   []graph.NodeID
	hooks map[graph.NodeID]func(context.Context, engine.RuntimeContext) error

	// Ran receives each node id as it starts executing.
	Ran chan graph.NodeID
}

// NewProbe returns a probe with a buffered Ran channel.
func NewProbe() *Probe {
	return &Probe{
		hooks: make(map[graph.NodeID]func(context.Context, engine.RuntimeContext) error),
		Ran:   make(chan graph.NodeID, 256),
	}
}

// Hook sets the behaviour of one node.
func (p *Probe) Hook(id graph.NodeID, fn func(context.Context, engine.RuntimeContext) error) {
	p.mu.Lock()
	p.hooks[id] = fn
	p.mu.Unlock()
}

// Nodes returns one recording node per graph node.
func (p *Probe) Nodes(g *graph.GraphModel) []engine.Node {
	var out []engine.Node
	for _, m := range g.Nodes() {
		n, _ := p.Factory()(m)
		out = append(out, n)
	}
	return out
}

// Factory returns an engine.Factory producing recording nodes.
func (p *Probe) Factory() engine.Factory {
	return func(m graph.NodeModel) (engine.Node, error) {
		id := m.ID
		return engine.NewFuncNode(id, func(ctx context.Context, rc engine.RuntimeContext) error {
			p.mu.Lock()
			p.ran = append(p.ran, id)
			hook := p.hooks[id]
			p.mu.Unlock()

			select {
			case p.Ran <- id:
			default:
			}
			if hook != nil {
				return hook(ctx, rc)
			}
			return nil
		}), nil
	}
}

// Executed returns every id that executed, in order.
func (p *Probe) Executed() []graph.NodeID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]graph.NodeID(nil), p.ran...)
}

// Reset forgets recorded executions.
func (p *Probe) Reset() {
	p.mu.Lock()
	p.ran = nil
	p.mu.Unlock()
	for {
		select {
		case <-p.Ran:
		default:
			return
		}
	}
}
