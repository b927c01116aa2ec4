// Package cue defines the audible-cue sink: a short tone-generation
// collaborator invoked on mode changes. Cues are feedback only; a failing or
// missing player never affects capture or transcription.
package cue

import (
	"context"
	"time"

	"github.com/MrWong99/zentra/pkg/audio"
)

// Player plays a single tone. Implementations must be safe for concurrent
// use and must respect ctx cancellation.
type Player interface {
	Play(ctx context.Context, tone audio.Tone) error
}

// Success is played when the assistant arms for a command.
var Success = audio.Tone{FrequencyHz: 480, Duration: 200 * time.Millisecond, Gain: 0.12}

// Failure is played when a command could not be delivered.
var Failure = audio.Tone{FrequencyHz: 240, Duration: 200 * time.Millisecond, Gain: 0.12}

// Nop is a [Player] that discards every cue.
type Nop struct{}

var _ Player = Nop{}

// Play implements [Player].
func (Nop) Play(context.Context, audio.Tone) error { return nil }
