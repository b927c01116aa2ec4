// Package mock provides a recording mock implementation of [command.Sink].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/zentra/pkg/provider/command"
)

// Sink is a mock implementation of [command.Sink].
type Sink struct {
	mu sync.Mutex

	// SubmitErr is returned by every Submit call.
	SubmitErr error

	// Submitted records the command texts, in order.
	Submitted []string
}

var _ command.Sink = (*Sink)(nil)

// Submit implements [command.Sink].
func (s *Sink) Submit(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Submitted = append(s.Submitted, text)
	return s.SubmitErr
}

// Commands returns a copy of the recorded commands.
func (s *Sink) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Submitted))
	copy(out, s.Submitted)
	return out
}
