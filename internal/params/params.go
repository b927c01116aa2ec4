// Package params defines [Set], the immutable bundle of tunables that drives
// the capture pipeline. One Set exists per assistant mode; the mode
// controller swaps the current pointer on every transition and never mutates
// a Set after construction.
package params

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultWakeWord is the trigger word used when none is configured.
const DefaultWakeWord = "Zentra"

// defaultCommands seeds the recogniser bias prompt.
var defaultCommands = []string{"light on", "light off", "austin fan on", "austin fan off"}

// Set is one tunable configuration. All durations are expressed in
// milliseconds or seconds to keep the YAML representation flat.
type Set struct {
	// Name identifies the bundle in logs and metrics (e.g. "wake", "active").
	Name string `yaml:"-"`

	// SampleRate is the rate finished segments are resampled to before
	// transcription.
	SampleRate int `yaml:"sample_rate"`

	// ── Voice activity and segmentation ──

	VADRMS        float64 `yaml:"vad_rms"`
	MinRMS        float64 `yaml:"min_rms"`
	MinSegSeconds float64 `yaml:"min_segment_seconds"`
	SilenceMs     int     `yaml:"silence_ms"`
	PreRollMs     int     `yaml:"preroll_ms"`
	PostRollMs    int     `yaml:"postroll_ms"`

	// ── Leveling and compression ──

	EnableLeveling bool    `yaml:"leveling"`
	TargetRMS      float64 `yaml:"target_rms"`
	MaxGain        float64 `yaml:"max_gain"`
	CompThreshold  float64 `yaml:"comp_threshold"`
	CompRatio      float64 `yaml:"comp_ratio"`

	// ── Prefilter ──

	EnablePrefilter bool    `yaml:"prefilter"`
	HighPassHz      float64 `yaml:"highpass_hz"`
	LowPassHz       float64 `yaml:"lowpass_hz"`

	// ── Spectral gate ──

	EnableSpectral bool    `yaml:"spectral_gate"`
	FFTSize        int     `yaml:"fft_size"`
	BandLowHz      float64 `yaml:"band_low_hz"`
	BandHighHz     float64 `yaml:"band_high_hz"`
	EnergyRatio    float64 `yaml:"energy_ratio"`

	// ── Recogniser ──

	ModelSize  string `yaml:"model_size"`
	Quantized  bool   `yaml:"quantized"`
	BiasPrompt string `yaml:"bias_prompt"`
}

// DefaultWake returns the wake-listening defaults. BiasPrompt is left empty;
// see [DefaultBiasPrompt].
func DefaultWake() Set {
	return Set{
		Name:            "wake",
		SampleRate:      16000,
		VADRMS:          0.010,
		MinRMS:          0.003,
		MinSegSeconds:   2.0,
		SilenceMs:       2000,
		PreRollMs:       300,
		PostRollMs:      200,
		EnableLeveling:  true,
		TargetRMS:       0.08,
		MaxGain:         6.0,
		CompThreshold:   0.6,
		CompRatio:       3.0,
		EnablePrefilter: true,
		HighPassHz:      100,
		LowPassHz:       3500,
		EnableSpectral:  true,
		FFTSize:         1024,
		BandLowHz:       120,
		BandHighHz:      3200,
		EnergyRatio:     0.40,
		ModelSize:       "tiny",
		Quantized:       true,
	}
}

// DefaultActive returns the command-mode defaults: a bare command is short
// and follows the wake cue closely, so segments may be shorter, endpointing
// is quicker and the onset spectral gate is off.
func DefaultActive() Set {
	s := DefaultWake()
	s.Name = "active"
	s.MinSegSeconds = 0.5
	s.SilenceMs = 1200
	s.EnableSpectral = false
	return s
}

// DefaultBiasPrompt builds the recogniser hint text: one line per known
// command, each prefixed with the wake word.
func DefaultBiasPrompt(wakeWord string) string {
	if wakeWord == "" {
		wakeWord = DefaultWakeWord
	}
	lines := make([]string, len(defaultCommands))
	for i, c := range defaultCommands {
		lines[i] = wakeWord + ", " + c
	}
	return strings.Join(lines, "\n")
}

// Silence is the silence duration that ends an utterance.
func (s *Set) Silence() time.Duration { return ms(s.SilenceMs) }

// PreRoll is the amount of audio retained before speech onset.
func (s *Set) PreRoll() time.Duration { return ms(s.PreRollMs) }

// PostRoll is the extra audio retained after the silence threshold.
func (s *Set) PostRoll() time.Duration { return ms(s.PostRollMs) }

// Endpoint is the silence span after which an open segment is finalized.
func (s *Set) Endpoint() time.Duration { return s.Silence() + s.PostRoll() }

// MinSegment is the shortest segment worth transcribing.
func (s *Set) MinSegment() time.Duration {
	return time.Duration(s.MinSegSeconds * float64(time.Second))
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Validate checks s for internal consistency and returns all problems found
// joined into a single error.
func (s *Set) Validate() error {
	var errs []error
	name := s.Name
	if name == "" {
		name = "profile"
	}
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: "+format, append([]any{name}, args...)...))
	}

	if s.SampleRate <= 0 {
		bad("sample_rate must be positive, got %d", s.SampleRate)
	}
	if s.VADRMS < 0 {
		bad("vad_rms must not be negative, got %g", s.VADRMS)
	}
	if s.MinRMS < 0 {
		bad("min_rms must not be negative, got %g", s.MinRMS)
	}
	if s.MinSegSeconds < 0 {
		bad("min_segment_seconds must not be negative, got %g", s.MinSegSeconds)
	}
	if s.SilenceMs <= 0 {
		bad("silence_ms must be positive, got %d", s.SilenceMs)
	}
	if s.PreRollMs < 0 || s.PostRollMs < 0 {
		bad("preroll_ms and postroll_ms must not be negative")
	}

	if s.EnableLeveling {
		if s.TargetRMS <= 0 {
			bad("target_rms must be positive, got %g", s.TargetRMS)
		}
		if s.MaxGain <= 0 {
			bad("max_gain must be positive, got %g", s.MaxGain)
		}
		if s.CompThreshold <= 0 || s.CompThreshold > 1 {
			bad("comp_threshold must be in (0, 1], got %g", s.CompThreshold)
		}
		if s.CompRatio < 1 {
			bad("comp_ratio must be at least 1, got %g", s.CompRatio)
		}
	}

	if s.EnablePrefilter {
		nyquist := float64(s.SampleRate) / 2
		if s.HighPassHz <= 0 || s.LowPassHz <= 0 {
			bad("highpass_hz and lowpass_hz must be positive")
		} else if s.HighPassHz >= s.LowPassHz {
			bad("highpass_hz (%g) must be below lowpass_hz (%g)", s.HighPassHz, s.LowPassHz)
		}
		if s.SampleRate > 0 && s.LowPassHz >= nyquist {
			bad("lowpass_hz (%g) must be below the Nyquist frequency (%g)", s.LowPassHz, nyquist)
		}
	}

	if s.EnableSpectral {
		if s.FFTSize < 32 || s.FFTSize&(s.FFTSize-1) != 0 {
			bad("fft_size must be a power of two of at least 32, got %d", s.FFTSize)
		}
		if s.BandLowHz < 0 || s.BandLowHz >= s.BandHighHz {
			bad("band_low_hz (%g) must be non-negative and below band_high_hz (%g)", s.BandLowHz, s.BandHighHz)
		}
		if s.EnergyRatio < 0 || s.EnergyRatio > 1 {
			bad("energy_ratio must be in [0, 1], got %g", s.EnergyRatio)
		}
	}

	return errors.Join(errs...)
}
