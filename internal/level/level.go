// Package level applies loudness leveling and soft peak compression to a
// finished segment before it is transcribed.
package level

import (
	"math"

	"github.com/MrWong99/zentra/internal/params"
)

// Gain returns the leveling gain for a segment with the given RMS:
// min(MaxGain, TargetRMS/rms). A silent segment gets unity gain.
func Gain(rms float64, p *params.Set) float64 {
	if rms <= 0 {
		return 1
	}
	if rms <= p.TargetRMS/p.MaxGain {
		return p.MaxGain
	}
	return p.TargetRMS / rms
}

// Normalize returns a leveled copy of samples. Every sample is multiplied by
// [Gain]; magnitudes above CompThreshold are compressed by CompRatio with
// the sign preserved; the result is clamped to [-1, 1].
//
// When leveling is disabled in p, or rms is not positive, samples is
// returned unchanged.
func Normalize(samples []float32, rms float64, p *params.Set) []float32 {
	if !p.EnableLeveling || rms <= 0 {
		return samples
	}

	gain := Gain(rms, p)
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(shape(float64(s)*gain, p.CompThreshold, p.CompRatio))
	}
	return out
}

// shape compresses the part of |v| above threshold by ratio, then clamps.
func shape(v, threshold, ratio float64) float64 {
	if a := math.Abs(v); a > threshold {
		v = math.Copysign(threshold+(a-threshold)/ratio, v)
	}
	return math.Max(-1, math.Min(1, v))
}
