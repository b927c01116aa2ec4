package segment

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/zentra/internal/params"
	"github.com/MrWong99/zentra/internal/vad"
	"github.com/MrWong99/zentra/pkg/audio"
)

// State is the endpointing state.
type State int

const (
	// Idle means no speech is confirmed; frames feed the pre-roll ring.
	Idle State = iota
	// Capturing means a segment is open and accumulating.
	Capturing
	// Finalizing means the silence threshold was exceeded and the segment
	// is being detached. The segmenter leaves this state within the same
	// Push call.
	Finalizing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Finalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Discard explains why a closed segment never reached normalization.
type Discard string

const (
	DiscardNone     Discard = ""
	DiscardTooShort Discard = "too_short"
	DiscardTooQuiet Discard = "too_quiet"
)

// Outcome is the result of pushing one frame.
type Outcome struct {
	// Onset is true when this frame opened a new segment.
	Onset bool

	// Segment is set when this frame finalized a segment that passed the
	// duration and energy checks.
	Segment *Segment

	// Discarded is set when this frame finalized a segment that was
	// dropped as noise; Duration and RMS describe it.
	Discarded Discard
	Duration  time.Duration
	RMS       float64
}

// Status is a snapshot for progress displays.
type Status struct {
	State State

	// Buffered is the audio held in the open segment.
	Buffered time.Duration

	// SilenceLeft is how much more silence ends the segment. Zero when idle.
	SilenceLeft time.Duration
}

// Segmenter is the endpointing state machine. It is not safe for concurrent
// use; the capture consumer loop owns it.
type Segmenter struct {
	state      State
	ring       *Ring
	buf        Buffer
	rate       int
	lastSpeech time.Duration
	now        time.Duration

	amplitude vad.AmplitudeGate
	spectral  vad.SpectralGate
	newID     func() string
}

// Option is a functional option for [New].
type Option func(*Segmenter)

// WithIDFunc replaces the segment ID generator (random UUIDs by default).
func WithIDFunc(fn func() string) Option {
	return func(s *Segmenter) {
		s.newID = fn
	}
}

// New creates an idle segmenter. The spectral gate starts without an
// analyser and therefore passes; call [Segmenter.SetSpectralGate] once the
// filter chain exists.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		ring:  NewRing(0),
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetSpectralGate replaces the onset spectral gate, e.g. after the filter
// chain was rebuilt.
func (s *Segmenter) SetSpectralGate(g vad.SpectralGate) {
	s.spectral = g
}

// State returns the current state.
func (s *Segmenter) State() State { return s.state }

// Status returns progress information for the open segment.
func (s *Segmenter) Status(p *params.Set) Status {
	st := Status{State: s.state}
	if s.state != Capturing {
		return st
	}
	st.Buffered = audio.SamplesDuration(s.buf.Samples(), s.rate)
	st.SilenceLeft = max(0, p.Endpoint()-(s.now-s.lastSpeech))
	return st
}

// Push consumes one raw frame using the parameter set p, which the caller
// reads once per frame. The spectral gate is expected to have been fed the
// filtered version of the same frame already.
func (s *Segmenter) Push(f audio.Frame, p *params.Set) Outcome {
	s.rate = f.SampleRate
	s.now = f.End()

	switch s.state {
	case Idle:
		s.ring.SetBudget(audio.DurationSamples(p.PreRoll(), f.SampleRate))
		if s.amplitude.IsActive(f.Samples, p) && s.spectral.IsVocalBand(p) {
			s.buf.Reset()
			for _, pre := range s.ring.Drain() {
				s.buf.Append(pre)
			}
			s.buf.Append(f)
			s.lastSpeech = s.now
			s.state = Capturing
			return Outcome{Onset: true}
		}
		s.ring.Push(f)
		return Outcome{}

	case Capturing:
		s.buf.Append(f)
		if s.amplitude.IsActive(f.Samples, p) {
			s.lastSpeech = s.now
		}
		if s.now-s.lastSpeech > p.Endpoint() {
			s.state = Finalizing
			return s.finalize(p)
		}
		return Outcome{}
	}
	return Outcome{}
}

// finalize detaches the open segment, resets all buffers and returns to
// idle before the segment is checked.
func (s *Segmenter) finalize(p *params.Set) Outcome {
	start := s.buf.Start()
	pcm := audio.Resample(s.buf.Concat(), s.rate, p.SampleRate)
	s.Reset()

	dur := audio.SamplesDuration(len(pcm), p.SampleRate)
	rms := audio.RMS(pcm)

	switch {
	case dur < p.MinSegment():
		return Outcome{Discarded: DiscardTooShort, Duration: dur, RMS: rms}
	case rms < p.MinRMS:
		return Outcome{Discarded: DiscardTooQuiet, Duration: dur, RMS: rms}
	}

	return Outcome{Segment: &Segment{
		ID:         s.newID(),
		Samples:    pcm,
		SampleRate: p.SampleRate,
		Start:      start,
		Duration:   dur,
		RMS:        rms,
		Params:     p,
	}}
}

// Reset drops the open segment and the pre-roll and returns to idle.
func (s *Segmenter) Reset() {
	s.buf.Reset()
	s.ring.Reset()
	s.state = Idle
	s.lastSpeech = 0
}
