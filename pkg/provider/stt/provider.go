// Package stt defines the Provider interface for batch speech-to-text
// backends.
//
// A provider receives one complete, normalized utterance at a time and
// returns its transcription. Segmentation and voice-activity detection
// happen upstream, so providers never buffer or endpoint audio themselves.
//
// Implementations must be safe for concurrent use, although the capture
// pipeline only ever has one request in flight.
package stt

import (
	"context"
	"time"
)

// Request is one utterance to transcribe.
type Request struct {
	// Samples is mono PCM in [-1, 1].
	Samples []float32

	// SampleRate of Samples in Hz. Whisper-family engines expect 16000.
	SampleRate int

	// Prompt is a short bias text that steers the recogniser toward expected
	// vocabulary. Empty means no bias.
	Prompt string

	// ConditionOnPrevious allows the engine to use text from earlier requests
	// as context. The capture pipeline always sends false so that one
	// misheard utterance cannot leak into the next.
	ConditionOnPrevious bool

	// Language is the BCP-47 language hint. Empty defers to the provider's
	// configured default.
	Language string
}

// Duration returns the audio length of the request.
func (r Request) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.Samples)) * time.Second / time.Duration(r.SampleRate)
}

// Result is the engine's answer for one request.
type Result struct {
	// Text is the best-effort transcription. It may be empty.
	Text string

	// Language is the detected or configured language, if reported.
	Language string
}

// Provider transcribes complete utterances.
type Provider interface {
	// Transcribe blocks until the engine returns or ctx is cancelled.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
