package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/zentra/pkg/audio"
	"github.com/MrWong99/zentra/pkg/provider/cue"
)

// playerBlock is the number of samples written per output call.
const playerBlock = 512

var _ cue.Player = (*Player)(nil)

// Player plays [audio.Tone] cues on the default output device. Plays are
// serialised; a second cue waits for the first to finish.
type Player struct {
	mu sync.Mutex
}

// NewPlayer creates a tone player.
func NewPlayer() *Player {
	return &Player{}
}

// Play implements [cue.Player]. It blocks until the tone has been written to
// the device or ctx is cancelled.
func (p *Player) Play(ctx context.Context, tone audio.Tone) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := acquire(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, release())
	}()

	dev, err := pa.DefaultOutputDevice()
	if err != nil {
		return fmt.Errorf("portaudio: default output device: %w", err)
	}
	rate := int(dev.DefaultSampleRate)
	samples := tone.Synthesize(rate)

	buf := make([]float32, playerBlock)
	stream, err := pa.OpenDefaultStream(0, 1, float64(rate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	for off := 0; off < len(samples); off += playerBlock {
		if err := ctx.Err(); err != nil {
			_ = stream.Stop()
			return err
		}
		n := copy(buf, samples[off:])
		clear(buf[n:])
		if err := stream.Write(); err != nil {
			_ = stream.Stop()
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: stop output stream: %w", err)
	}
	return nil
}
