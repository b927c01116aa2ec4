package audio

import (
	"encoding/binary"
	"math"
)

// PCM16ToFloat32 converts little-endian 16-bit signed PCM bytes to float32
// samples normalised to [-1.0, 1.0]. A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToInt16 converts float32 samples to 16-bit integer sample values
// held in an int slice, the representation used by go-audio buffers.
// Values outside [-1, 1] are clamped.
func Float32ToInt16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int(v)
	}
	return out
}

// Float32ToPCM16 converts float32 samples to little-endian 16-bit signed PCM
// bytes. Values outside [-1, 1] are clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range Float32ToInt16(samples) {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Resample converts mono float32 samples from srcRate to dstRate using linear
// interpolation. The output holds floor(len(samples) * dstRate / srcRate)
// samples. If the rates match, or either rate is not positive, the input is
// returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstSamples := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	out := make([]float32, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)
	last := len(samples) - 1

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		if i0 > last {
			i0 = last
		}
		i1 := min(i0+1, last)
		frac := srcPos - float64(i0)
		out[i] = samples[i0] + (samples[i1]-samples[i0])*float32(frac)
	}
	return out
}

// RMS returns the root-mean-square amplitude of samples. An empty slice has
// an RMS of zero.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
