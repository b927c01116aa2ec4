package level_test

import (
	"math"
	"testing"

	"github.com/MrWong99/zentra/internal/level"
	"github.com/MrWong99/zentra/internal/params"
	"github.com/MrWong99/zentra/pkg/audio"
)

func TestGain(t *testing.T) {
	t.Parallel()

	p := params.DefaultWake() // target 0.08, max gain 6
	tests := []struct {
		name string
		rms  float64
		want float64
	}{
		{name: "loud segment attenuated", rms: 0.16, want: 0.5},
		{name: "moderate boost", rms: 0.04, want: 2},
		{name: "clamp boundary", rms: 0.08 / 6, want: 6},
		{name: "below clamp boundary", rms: 0.001, want: 6},
		{name: "silence", rms: 0, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := level.Gain(tt.rms, &p); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Gain(%v): got %v, want %v", tt.rms, got, tt.want)
			}
		})
	}
}

func TestNormalize_OutputBounded(t *testing.T) {
	t.Parallel()

	p := params.DefaultWake()
	p.CompRatio = 1 // no compression, only the clamp keeps values in range
	in := []float32{0.9, -0.9, 0.5, -0.01, 0}
	out := level.Normalize(in, audio.RMS(in)/10, &p)
	for i, v := range out {
		if v < -1 || v > 1 {
			t.Errorf("sample %d out of range: %v", i, v)
		}
	}
	if out[0] != 1 || out[1] != -1 {
		t.Errorf("expected hard clamp at the extremes, got %v, %v", out[0], out[1])
	}
}

func TestNormalize_SoftCompression(t *testing.T) {
	t.Parallel()

	p := params.DefaultWake() // threshold 0.6, ratio 3
	// rms 0.08 gives unity gain.
	out := level.Normalize([]float32{0.9, -0.9, 0.3}, 0.08, &p)
	want := []float32{0.7, -0.7, 0.3} // 0.6 + 0.3/3
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

func TestNormalize_MaxGainExact(t *testing.T) {
	t.Parallel()

	p := params.DefaultWake()
	rms := p.TargetRMS / p.MaxGain / 2
	in := []float32{0.01, -0.02}
	out := level.Normalize(in, rms, &p)
	for i := range in {
		if want := in[i] * float32(p.MaxGain); math.Abs(float64(out[i]-want)) > 1e-6 {
			t.Errorf("sample %d: got %v, want %v (max gain)", i, out[i], want)
		}
	}
}

func TestNormalize_DisabledPassesThrough(t *testing.T) {
	t.Parallel()

	p := params.DefaultWake()
	p.EnableLeveling = false
	in := []float32{0.001, 0.5}
	out := level.Normalize(in, 0.01, &p)
	if &out[0] != &in[0] {
		t.Error("disabled leveling must return the input unchanged")
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	p := params.DefaultWake()
	in := []float32{0.01, 0.02}
	level.Normalize(in, 0.015, &p)
	if in[0] != 0.01 || in[1] != 0.02 {
		t.Errorf("input mutated: %v", in)
	}
}
