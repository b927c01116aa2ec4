package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyser keeps the most recent FFT-size window of filtered samples and
// exposes its magnitude spectrum. It is not safe for concurrent use; the
// capture consumer loop is its only caller.
type Analyser struct {
	size   int
	ring   []float64
	pos    int
	window []float64
	fft    *fourier.FFT
	frame  []float64
	coeffs []complex128
	mags   []float64
}

// NewAnalyser creates an analyser with the given FFT size, which must be a
// power of two of at least 32.
func NewAnalyser(size int) (*Analyser, error) {
	a := &Analyser{}
	if err := a.Resize(size); err != nil {
		return nil, err
	}
	return a, nil
}

// Size returns the FFT size.
func (a *Analyser) Size() int { return a.size }

// Resize changes the FFT size. The sample history is discarded.
func (a *Analyser) Resize(size int) error {
	if size < 32 || size&(size-1) != 0 {
		return fmt.Errorf("dsp: analyser size %d is not a power of two >= 32", size)
	}
	a.size = size
	a.ring = make([]float64, size)
	a.pos = 0
	a.window = blackman(size)
	a.fft = fourier.NewFFT(size)
	a.frame = make([]float64, size)
	a.coeffs = make([]complex128, size/2+1)
	a.mags = make([]float64, size/2)
	return nil
}

// Write appends samples to the history window, overwriting the oldest.
func (a *Analyser) Write(samples []float32) {
	for _, s := range samples {
		a.ring[a.pos] = float64(s)
		a.pos++
		if a.pos == a.size {
			a.pos = 0
		}
	}
}

// Magnitudes returns the Blackman-windowed magnitude spectrum of the current
// history window as Size()/2 bins, bin i centred on i*sampleRate/Size() Hz.
// The returned slice is reused by the next call.
func (a *Analyser) Magnitudes() []float64 {
	n := copy(a.frame, a.ring[a.pos:])
	copy(a.frame[n:], a.ring[:a.pos])
	for i := range a.frame {
		a.frame[i] *= a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)
	for i := range a.mags {
		a.mags[i] = cmplx.Abs(a.coeffs[i]) / float64(a.size)
	}
	return a.mags
}

// Reset clears the sample history.
func (a *Analyser) Reset() {
	clear(a.ring)
	a.pos = 0
}

// blackman returns the classic Blackman window of length n.
func blackman(n int) []float64 {
	const a0, a1, a2 = 0.42, 0.5, 0.08
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}
