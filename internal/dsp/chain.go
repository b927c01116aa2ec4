// Package dsp implements the fixed-topology filter chain that conditions raw
// microphone frames before voice-activity analysis: a high-pass biquad, a
// low-pass biquad and an optional spectral analyser fed from the filtered
// signal.
//
// Cutoff frequencies and analyser resolution may be retuned on a running
// chain with [Chain.ApplyLive]. Enabling or disabling the prefilter or the
// analyser changes the topology and requires a new chain.
package dsp

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/zentra/internal/params"
)

// Chain is one instance of the capture graph's conditioning stage. It is not
// safe for concurrent use.
type Chain struct {
	sampleRate int
	prefilter  bool
	hp, lp     *biquad
	analyser   *Analyser
	bypass     bool
	out        []float32
}

// Build constructs a chain for audio at sampleRate using the topology and
// tunables of p. It fails if any node cannot be designed for that rate.
func Build(sampleRate int, p *params.Set) (*Chain, error) {
	c := &Chain{sampleRate: sampleRate, prefilter: p.EnablePrefilter}

	if p.EnablePrefilter {
		hp, err := newBiquad(highPass, p.HighPassHz, sampleRate)
		if err != nil {
			return nil, err
		}
		lp, err := newBiquad(lowPass, p.LowPassHz, sampleRate)
		if err != nil {
			return nil, err
		}
		c.hp, c.lp = hp, lp
	}

	if p.EnableSpectral {
		a, err := NewAnalyser(p.FFTSize)
		if err != nil {
			return nil, err
		}
		c.analyser = a
	}
	return c, nil
}

// New is like [Build] but never fails: when node construction fails it logs
// the error and returns a bypass chain that passes raw frames straight
// through without spectral analysis.
func New(sampleRate int, p *params.Set) *Chain {
	c, err := Build(sampleRate, p)
	if err != nil {
		slog.Warn("dsp: filter chain construction failed, using unfiltered path",
			"profile", p.Name,
			"sample_rate", sampleRate,
			"err", err,
		)
		return Bypass(sampleRate)
	}
	return c
}

// Bypass returns a chain without any nodes.
func Bypass(sampleRate int) *Chain {
	return &Chain{sampleRate: sampleRate, bypass: true}
}

// SampleRate returns the rate the chain was designed for.
func (c *Chain) SampleRate() int { return c.sampleRate }

// Bypassed reports whether the chain is the unfiltered fallback.
func (c *Chain) Bypassed() bool { return c.bypass }

// Prefiltered reports whether frames pass through the high/low-pass pair.
func (c *Chain) Prefiltered() bool { return c.hp != nil }

// Analyser returns the spectral analyser, or nil if the chain has none.
func (c *Chain) Analyser() *Analyser { return c.analyser }

// Process filters in and feeds the result to the analyser. The returned
// slice is owned by the chain and valid until the next call; in is never
// modified.
func (c *Chain) Process(in []float32) []float32 {
	if c.hp == nil {
		if c.analyser != nil {
			c.analyser.Write(in)
		}
		return in
	}
	if cap(c.out) < len(in) {
		c.out = make([]float32, len(in))
	}
	out := c.out[:len(in)]
	c.hp.process(in, out)
	c.lp.process(out, out)
	if c.analyser != nil {
		c.analyser.Write(out)
	}
	return out
}

// ApplyLive retunes cutoffs and analyser resolution from p without touching
// the topology. It returns an error if p requires a different topology or
// describes a node that cannot be designed; the chain is then unchanged.
func (c *Chain) ApplyLive(p *params.Set) error {
	if c.bypass {
		return nil
	}
	if p.EnablePrefilter != c.Prefiltered() || p.EnableSpectral != (c.analyser != nil) {
		return errors.New("dsp: live update cannot change chain topology")
	}

	if c.hp != nil {
		hp, lp := *c.hp, *c.lp
		if err := hp.design(highPass, p.HighPassHz, c.sampleRate); err != nil {
			return err
		}
		if err := lp.design(lowPass, p.LowPassHz, c.sampleRate); err != nil {
			return err
		}
		*c.hp, *c.lp = hp, lp
	}

	if c.analyser != nil && c.analyser.Size() != p.FFTSize {
		if err := c.analyser.Resize(p.FFTSize); err != nil {
			return fmt.Errorf("dsp: resize analyser: %w", err)
		}
	}
	return nil
}

// Reset clears filter delay lines and analyser history.
func (c *Chain) Reset() {
	if c.hp != nil {
		c.hp.reset()
		c.lp.reset()
	}
	if c.analyser != nil {
		c.analyser.Reset()
	}
}

// Close releases the chain's nodes. A closed chain behaves like a bypass
// chain.
func (c *Chain) Close() error {
	c.hp, c.lp = nil, nil
	c.analyser = nil
	c.out = nil
	c.bypass = true
	return nil
}
