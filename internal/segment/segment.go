// Package segment turns a stream of gated audio frames into finished
// utterance segments.
//
// The [Segmenter] is a three-state machine. While idle it keeps a bounded
// pre-roll of recent frames. Speech onset requires both the amplitude gate
// and the spectral gate; once a segment is open every frame is appended and
// only the amplitude gate refreshes the last-speech position, so a spectral
// dip inside a voiced fricative never cuts the segment short. The segment is
// finalized when silence exceeds the endpoint (silence plus post-roll).
//
// All timing is measured in stream time derived from sample counts, which
// keeps the state machine deterministic and independent of scheduling jitter.
package segment

import (
	"time"

	"github.com/MrWong99/zentra/internal/params"
	"github.com/MrWong99/zentra/pkg/audio"
)

// Segment is a closed utterance ready for normalization and transcription.
// It is immutable once produced.
type Segment struct {
	// ID uniquely identifies the segment in logs, journals and recordings.
	ID string

	// Samples is the concatenated mono audio at SampleRate.
	Samples []float32

	// SampleRate is the target rate the audio was resampled to.
	SampleRate int

	// Start is the stream position of the first sample.
	Start time.Duration

	// Duration is the audio length.
	Duration time.Duration

	// RMS is the energy of Samples before any leveling.
	RMS float64

	// Params is the parameter set that was current when the segment closed.
	Params *params.Set
}

// Buffer accumulates the frames of one in-progress utterance. It is
// append-only while open.
type Buffer struct {
	frames  []audio.Frame
	samples int
}

// Append adds a frame to the end of the buffer.
func (b *Buffer) Append(f audio.Frame) {
	b.frames = append(b.frames, f)
	b.samples += len(f.Samples)
}

// Samples returns the total sample count.
func (b *Buffer) Samples() int { return b.samples }

// Len returns the number of frames.
func (b *Buffer) Len() int { return len(b.frames) }

// Start returns the stream position of the first buffered frame.
func (b *Buffer) Start() time.Duration {
	if len(b.frames) == 0 {
		return 0
	}
	return b.frames[0].Timestamp
}

// Concat returns all samples in order.
func (b *Buffer) Concat() []float32 {
	out := make([]float32, 0, b.samples)
	for _, f := range b.frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.frames = nil
	b.samples = 0
}
