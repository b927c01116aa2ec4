// Package vad implements the two voice-activity qualifiers used by the
// segmenter: an amplitude gate over the raw frame and a spectral gate over
// the filtered signal's band energy.
//
// Both gates read their thresholds from the [params.Set] passed on each
// call, so a mode switch takes effect on the very next frame.
package vad

import (
	"math"

	"github.com/MrWong99/zentra/internal/params"
	"github.com/MrWong99/zentra/pkg/audio"
)

// AmplitudeGate qualifies a frame as voiced when its RMS reaches the
// configured threshold. It is stateless.
type AmplitudeGate struct{}

// IsActive reports whether RMS(frame) >= p.VADRMS. The boundary is
// inclusive.
func (AmplitudeGate) IsActive(frame []float32, p *params.Set) bool {
	return audio.RMS(frame) >= p.VADRMS
}

// Spectrum is the magnitude spectrum source the [SpectralGate] reads. Bin i
// of Magnitudes is centred on i*sampleRate/Size() Hz.
type Spectrum interface {
	Size() int
	Magnitudes() []float64
}

// SpectralGate qualifies speech onset by the share of spectral energy that
// falls into the vocal band.
type SpectralGate struct {
	spectrum   Spectrum
	sampleRate int
}

// NewSpectralGate creates a gate over spectrum for audio at sampleRate. A nil
// spectrum (no analyser in the graph) yields a gate that always passes.
func NewSpectralGate(spectrum Spectrum, sampleRate int) SpectralGate {
	return SpectralGate{spectrum: spectrum, sampleRate: sampleRate}
}

// IsVocalBand reports whether the in-band energy share reaches
// p.EnergyRatio. It always returns true when the gate is disabled in p or
// the graph has no analyser.
func (g SpectralGate) IsVocalBand(p *params.Set) bool {
	if !p.EnableSpectral || g.spectrum == nil {
		return true
	}
	r := BandRatio(g.spectrum.Magnitudes(), g.sampleRate, g.spectrum.Size(), p.BandLowHz, p.BandHighHz)
	return r >= p.EnergyRatio
}

// BandRatio returns the fraction of spectral energy (squared magnitude)
// between lowHz and highHz. Bin bounds are floor(lowHz/binHz) and
// min(len-1, ceil(highHz/binHz)) inclusive. A spectrum without energy has a
// ratio of zero.
func BandRatio(mags []float64, sampleRate, fftSize int, lowHz, highHz float64) float64 {
	if len(mags) == 0 || sampleRate <= 0 || fftSize <= 0 {
		return 0
	}
	binHz := float64(sampleRate) / float64(fftSize)
	lo := max(0, int(math.Floor(lowHz/binHz)))
	hi := min(len(mags)-1, int(math.Ceil(highHz/binHz)))

	var total, inBand float64
	for i, m := range mags {
		e := m * m
		total += e
		if i >= lo && i <= hi {
			inBand += e
		}
	}
	if total == 0 {
		return 0
	}
	return inBand / total
}
