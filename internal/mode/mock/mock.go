// Package mock provides a test double for the mode.Graph interface.
//
// Graph records which reconfiguration each call requested and flags any
// overlap between calls, which the controller must never allow.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/zentra/internal/mode"
	"github.com/MrWong99/zentra/internal/params"
)

// Call is one recorded graph call.
type Call struct {
	// Kind is "use", "live" or "rebuild".
	Kind   string
	Params *params.Set
}

// Graph is a mock implementation of mode.Graph.
type Graph struct {
	mu sync.Mutex

	// LiveErr is returned by ApplyLiveTunables.
	LiveErr error

	// RebuildErr is returned by RebuildGraph.
	RebuildErr error

	// RebuildDelay makes RebuildGraph take this long.
	RebuildDelay time.Duration

	// Calls records every call in order.
	Calls []Call

	inflight   atomic.Int32
	overlapped atomic.Bool
}

var _ mode.Graph = (*Graph)(nil)

func (g *Graph) enter() {
	if g.inflight.Add(1) > 1 {
		g.overlapped.Store(true)
	}
}

func (g *Graph) leave() { g.inflight.Add(-1) }

func (g *Graph) record(kind string, p *params.Set) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, Call{Kind: kind, Params: p})
}

// Use records a pointer swap.
func (g *Graph) Use(p *params.Set) {
	g.enter()
	defer g.leave()
	g.record("use", p)
}

// ApplyLiveTunables records a live retune.
func (g *Graph) ApplyLiveTunables(_ context.Context, p *params.Set) error {
	g.enter()
	defer g.leave()
	g.record("live", p)
	return g.LiveErr
}

// RebuildGraph records a rebuild.
func (g *Graph) RebuildGraph(ctx context.Context, p *params.Set) error {
	g.enter()
	defer g.leave()
	if g.RebuildDelay > 0 {
		select {
		case <-time.After(g.RebuildDelay):
		case <-ctx.Done():
		}
	}
	g.record("rebuild", p)
	return g.RebuildErr
}

// Kinds returns the recorded call kinds in order.
func (g *Graph) Kinds() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.Calls))
	for i, c := range g.Calls {
		out[i] = c.Kind
	}
	return out
}

// Count returns how many calls of kind were recorded.
func (g *Graph) Count(kind string) int {
	n := 0
	for _, k := range g.Kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// Overlapped reports whether two calls were ever in flight at once.
func (g *Graph) Overlapped() bool { return g.overlapped.Load() }
