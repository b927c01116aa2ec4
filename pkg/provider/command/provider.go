// Package command defines the command sink: the collaborator that receives
// command text extracted from an utterance and forwards it to whatever acts
// on it (a home-automation agent, a chat backend, a log).
package command

import (
	"context"
	"log/slog"
)

// Sink delivers one command. Submit should return once the command has been
// accepted by the downstream system; the mode controller bounds it with a
// timeout and never waits on it for a transition.
type Sink interface {
	Submit(ctx context.Context, text string) error
}

// LogSink is a [Sink] that only logs commands. It is the default when no
// downstream agent is configured.
type LogSink struct {
	Logger *slog.Logger
}

var _ Sink = (*LogSink)(nil)

// Submit implements [Sink].
func (s *LogSink) Submit(ctx context.Context, text string) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "command", "text", text)
	return nil
}
