package engine

import (
	"bytes"
	"slices"
	"sync"

	"github.com/roach88/execgraph/internal/graph"
)

// DebugController holds breakpoints and an enabled flag. Its lock is
// independent of the Controller's.
type DebugController struct {
	mu          sync.RWMutex
	enabled     bool
	breakpoints map[graph.NodeID]struct{}
}

// NewDebugController returns an enabled controller with no breakpoints.
func NewDebugController() *DebugController {
	return &DebugController{
		enabled:     true,
		breakpoints: make(map[graph.NodeID]struct{}),
	}
}

func (d *DebugController) Enable() {
	d.mu.Lock()
	d.enabled = true
	d.mu.Unlock()
}

func (d *DebugController) Disable() {
	d.mu.Lock()
	d.enabled = false
	d.mu.Unlock()
}

func (d *DebugController) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// AddBreakpoint sets a breakpoint and reports whether it was new.
func (d *DebugController) AddBreakpoint(id graph.NodeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.breakpoints[id]; ok {
		return false
	}
	d.breakpoints[id] = struct{}{}
	return true
}

// RemoveBreakpoint clears a breakpoint and reports whether it existed.
func (d *DebugController) RemoveBreakpoint(id graph.NodeID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.breakpoints[id]; !ok {
		return false
	}
	delete(d.breakpoints, id)
	return true
}

func (d *DebugController) ClearBreakpoints() {
	d.mu.Lock()
	clear(d.breakpoints)
	d.mu.Unlock()
}

// Breakpoints returns the breakpoint ids sorted by byte value.
func (d *DebugController) Breakpoints() []graph.NodeID {
	d.mu.RLock()
	out := make([]graph.NodeID, 0, len(d.breakpoints))
	for id := range d.breakpoints {
		out = append(out, id)
	}
	d.mu.RUnlock()

	slices.SortFunc(out, func(a, b graph.NodeID) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}

// ShouldBreak reports enabled AND id is a breakpoint.
func (d *DebugController) ShouldBreak(id graph.NodeID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.enabled {
		return false
	}
	_, ok := d.breakpoints[id]
	return ok
}
