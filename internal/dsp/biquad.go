package dsp

import (
	"fmt"
	"math"
)

// butterworthQ gives a maximally flat second-order response.
const butterworthQ = math.Sqrt2 / 2

// biquad is a direct form I second-order IIR section designed with the
// Audio EQ Cookbook formulas. State carries across Process calls so that a
// stream of frames is filtered as one continuous signal.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

type filterKind int

const (
	highPass filterKind = iota
	lowPass
)

func (k filterKind) String() string {
	if k == highPass {
		return "highpass"
	}
	return "lowpass"
}

// newBiquad designs a filter of the given kind. cutoff must lie strictly
// between 0 and the Nyquist frequency.
func newBiquad(kind filterKind, cutoff float64, sampleRate int) (*biquad, error) {
	f := &biquad{}
	if err := f.design(kind, cutoff, sampleRate); err != nil {
		return nil, err
	}
	return f, nil
}

// design recomputes the coefficients in place, keeping the delay line so a
// live retune does not click.
func (f *biquad) design(kind filterKind, cutoff float64, sampleRate int) error {
	nyquist := float64(sampleRate) / 2
	if sampleRate <= 0 || cutoff <= 0 || cutoff >= nyquist {
		return fmt.Errorf("dsp: %s cutoff %g Hz outside (0, %g) Hz", kind, cutoff, nyquist)
	}

	w0 := 2 * math.Pi * cutoff / float64(sampleRate)
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * butterworthQ)
	a0 := 1 + alpha

	var b0, b1, b2 float64
	switch kind {
	case highPass:
		b0 = (1 + cosw) / 2
		b1 = -(1 + cosw)
		b2 = (1 + cosw) / 2
	case lowPass:
		b0 = (1 - cosw) / 2
		b1 = 1 - cosw
		b2 = (1 - cosw) / 2
	}

	f.b0, f.b1, f.b2 = b0/a0, b1/a0, b2/a0
	f.a1 = -2 * cosw / a0
	f.a2 = (1 - alpha) / a0
	return nil
}

// process filters in into out. in and out may alias.
func (f *biquad) process(in, out []float32) {
	for i, s := range in {
		x := float64(s)
		y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
		f.x2, f.x1 = f.x1, x
		f.y2, f.y1 = f.y1, y
		out[i] = float32(y)
	}
}

func (f *biquad) reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}
