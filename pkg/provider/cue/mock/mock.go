// Package mock provides a recording mock implementation of [cue.Player].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/zentra/pkg/audio"
	"github.com/MrWong99/zentra/pkg/provider/cue"
)

// Player is a mock implementation of [cue.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by every Play call.
	PlayErr error

	// Played records the tones passed to Play, in order.
	Played []audio.Tone
}

var _ cue.Player = (*Player)(nil)

// Play implements [cue.Player].
func (p *Player) Play(_ context.Context, tone audio.Tone) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Played = append(p.Played, tone)
	return p.PlayErr
}

// Tones returns a copy of the recorded tones.
func (p *Player) Tones() []audio.Tone {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audio.Tone, len(p.Played))
	copy(out, p.Played)
	return out
}
