package mode

import (
	"context"

	"github.com/MrWong99/zentra/internal/params"
)

// Graph is the capture processing graph the controller reconfigures on each
// transition. Every method makes p the current parameter set; they differ in
// how much of the graph they touch.
type Graph interface {
	// Use swaps the parameter set without touching any node.
	Use(p *params.Set)

	// ApplyLiveTunables retunes existing nodes (filter cutoffs, analyser
	// size) without interrupting capture.
	ApplyLiveTunables(ctx context.Context, p *params.Set) error

	// RebuildGraph tears the graph down and builds it again for p.
	RebuildGraph(ctx context.Context, p *params.Set) error
}
