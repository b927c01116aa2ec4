package audio

import (
	"math"
	"time"
)

// toneRamp is the linear fade applied at both ends of a synthesized tone to
// avoid audible clicks.
const toneRamp = 10 * time.Millisecond

// Tone describes a short sine cue.
type Tone struct {
	// FrequencyHz is the pitch of the cue.
	FrequencyHz float64

	// Duration is the total length including fade-in and fade-out.
	Duration time.Duration

	// Gain is the peak amplitude in [0, 1].
	Gain float64
}

// Synthesize renders the tone as mono float32 samples at sampleRate. The
// first and last 10 ms (or half the tone, whichever is shorter) are ramped
// linearly.
func (t Tone) Synthesize(sampleRate int) []float32 {
	n := DurationSamples(t.Duration, sampleRate)
	if n == 0 {
		return nil
	}
	ramp := min(DurationSamples(toneRamp, sampleRate), n/2)
	gain := math.Max(0, math.Min(1, t.Gain))
	out := make([]float32, n)
	step := 2 * math.Pi * t.FrequencyHz / float64(sampleRate)

	for i := range n {
		env := 1.0
		switch {
		case ramp > 0 && i < ramp:
			env = float64(i) / float64(ramp)
		case ramp > 0 && i >= n-ramp:
			env = float64(n-1-i) / float64(ramp)
		}
		out[i] = float32(gain * env * math.Sin(step*float64(i)))
	}
	return out
}
