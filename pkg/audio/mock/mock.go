// Package mock provides an in-memory mock implementation of [audio.Source]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts and arguments, and it exposes exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{
//	    SampleRate: 16000,
//	    Blocks:     [][]float32{speech, speech, silence},
//	}
//	rate, err := src.Open(ctx, 1600)
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/zentra/pkg/audio"
)

// Source is a mock implementation of [audio.Source] that replays a scripted
// list of blocks. Once the script is exhausted, Read blocks until Stop is
// called unless CloseWhenDone is set, in which case it returns io.EOF.
type Source struct {
	mu sync.Mutex

	// SampleRate is returned by Open. Defaults to 16000 when zero.
	SampleRate int

	// Blocks is the script replayed by Read. Short blocks are zero padded.
	Blocks [][]float32

	// CloseWhenDone makes Read return io.EOF as soon as the script is
	// exhausted instead of blocking until Stop.
	CloseWhenDone bool

	// OpenErr is returned by Open.
	OpenErr error

	// StopErr is returned by Stop.
	StopErr error

	// CloseErr is returned by Close.
	CloseErr error

	// OpenCalls records the blockSize argument of each Open call.
	OpenCalls []int

	// ReadCount records how many blocks were delivered.
	ReadCount int

	// StopCount records how many times Stop was called.
	StopCount int

	// CloseCount records how many times Close was called.
	CloseCount int

	// Calls records every method name in invocation order.
	Calls []string

	next    int
	stopped chan struct{}
}

var _ audio.Source = (*Source)(nil)

// stopCh returns the stop channel of the current streaming run. Callers
// must hold s.mu.
func (s *Source) stopCh() chan struct{} {
	if s.stopped == nil {
		s.stopped = make(chan struct{})
	}
	return s.stopped
}

// Open implements [audio.Source]. Reopening after Stop resumes the script
// where it left off.
func (s *Source) Open(_ context.Context, blockSize int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, blockSize)
	s.Calls = append(s.Calls, "Open")
	if s.OpenErr != nil {
		return 0, s.OpenErr
	}
	s.stopped = make(chan struct{})
	if s.SampleRate == 0 {
		return 16000, nil
	}
	return s.SampleRate, nil
}

// Read implements [audio.Source].
func (s *Source) Read(buf []float32) error {
	s.mu.Lock()
	stopped := s.stopCh()
	select {
	case <-stopped:
		s.mu.Unlock()
		return io.EOF
	default:
	}
	if s.next < len(s.Blocks) {
		block := s.Blocks[s.next]
		s.next++
		s.ReadCount++
		s.mu.Unlock()
		n := copy(buf, block)
		clear(buf[n:])
		return nil
	}
	done := s.CloseWhenDone
	s.mu.Unlock()

	if done {
		return io.EOF
	}
	<-stopped
	return io.EOF
}

// Stop implements [audio.Source].
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCount++
	s.Calls = append(s.Calls, "Stop")
	stopped := s.stopCh()
	select {
	case <-stopped:
	default:
		close(stopped)
	}
	return s.StopErr
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	s.Calls = append(s.Calls, "Close")
	return s.CloseErr
}

// Remaining reports how many scripted blocks have not been read yet.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Blocks) - s.next
}

// CallLog returns a copy of Calls.
func (s *Source) CallLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Calls...)
}
