// Package portaudio provides microphone capture and tone playback on top of
// the PortAudio library.
//
// PortAudio must be initialised once per process before any stream is
// opened; this package reference-counts Initialize/Terminate so that a
// [Capture] and a [Player] can coexist and be closed in any order.
package portaudio

import (
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"
)

var (
	initMu   sync.Mutex
	initRefs int
)

// acquire initialises PortAudio on first use.
func acquire() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		if err := pa.Initialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	initRefs++
	return nil
}

// release terminates PortAudio when the last user is done.
func release() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		return nil
	}
	initRefs--
	if initRefs == 0 {
		if err := pa.Terminate(); err != nil {
			return fmt.Errorf("portaudio: terminate: %w", err)
		}
	}
	return nil
}
