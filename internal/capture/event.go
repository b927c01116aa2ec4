package capture

import (
	"time"

	"github.com/MrWong99/zentra/internal/segment"
)

// EventKind distinguishes pipeline notifications.
type EventKind int

const (
	// EventVAD reports a segmenter state change.
	EventVAD EventKind = iota
	// EventSegment reports a finalized segment.
	EventSegment
	// EventDiscard reports a segment dropped as noise.
	EventDiscard
	// EventTranscript reports a finished transcription.
	EventTranscript
)

// Event is a pipeline notification.
type Event struct {
	Kind      EventKind
	State     segment.State
	SegmentID string
	Text      string
	Reason    segment.Discard
	Duration  time.Duration
	RMS       float64
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Running    bool
	SampleRate int
	Profile    string

	State       segment.State
	Buffered    time.Duration
	SilenceLeft time.Duration

	// StreamTime is the position of the last processed sample.
	StreamTime time.Duration

	FramesDropped uint64
}
