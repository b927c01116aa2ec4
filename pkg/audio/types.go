package audio

import "time"

// Frame is one fixed-size block of mono float32 samples delivered by a
// capture source. Frames are the atomic unit of audio transport: they are
// read from the microphone, filtered, gated and finally consumed into either
// the pre-roll ring or an open segment buffer.
//
// Ownership of Samples transfers to whichever buffer consumes the frame.
// Producers must not reuse the backing array after handing a frame off.
type Frame struct {
	// Samples holds mono PCM in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz as reported by the capture device (e.g. 48000).
	SampleRate int

	// Seq is the arrival index of the frame within its capture session.
	Seq uint64

	// Timestamp is the stream position of the first sample, relative to the
	// start of the capture session. It is derived from the number of samples
	// delivered so far, not from the wall clock.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// End returns the stream position just past the last sample of the frame.
func (f Frame) End() time.Duration {
	return f.Timestamp + f.Duration()
}

// SamplesDuration converts a sample count at the given rate to a duration.
// A non-positive rate yields zero.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

// DurationSamples converts a duration to a whole number of samples at the
// given rate, rounding down.
func DurationSamples(d time.Duration, sampleRate int) int {
	if sampleRate <= 0 || d <= 0 {
		return 0
	}
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}
