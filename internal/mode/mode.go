// Package mode implements the two-state listening controller.
//
// In [Wake] mode the assistant listens for the wake word; in [Active] mode
// the next utterance is taken as a command. Each transcription is matched
// against the wake word and decides whether a command is submitted and which
// mode comes next. Every mode change swaps the parameter profile of the
// capture graph, rebuilding it only when the topology differs.
//
// All decisions and transitions run on one goroutine in arrival order, so
// overlapping requests can never interleave graph rebuilds.
package mode

import "errors"

// ErrStopped is returned by requests made after [Controller.Close].
var ErrStopped = errors.New("mode: controller stopped")

// Mode is the listening state.
type Mode int32

const (
	// Wake listens for the wake word, optionally followed by a command.
	Wake Mode = iota
	// Active takes the next utterance as a command.
	Active
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	switch m {
	case Wake:
		return "wake"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Action is what a transcription caused.
type Action int

const (
	// Ignored: the text was empty or did not address the assistant.
	Ignored Action = iota
	// Discarded: the text was a non-speech sound tag.
	Discarded
	// Armed: the wake word alone switched to Active.
	Armed
	// Submitted: a command was sent downstream.
	Submitted
)

// String returns the lowercase action name.
func (a Action) String() string {
	switch a {
	case Ignored:
		return "ignored"
	case Discarded:
		return "discarded"
	case Armed:
		return "armed"
	case Submitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Decision describes how one transcription was handled.
type Decision struct {
	Action Action

	// Command is the text submitted downstream when Action is Submitted.
	Command string

	// Matched reports a fuzzy wake-word hit.
	Matched bool

	// Mode is the mode after the decision took effect.
	Mode Mode
}
