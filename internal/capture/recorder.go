package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrWong99/zentra/internal/segment"
	"github.com/MrWong99/zentra/pkg/audio"
)

// Recorder stores leveled segments.
type Recorder interface {
	Record(ctx context.Context, seg *segment.Segment, pcm []float32) error
}

// DirRecorder writes each segment as a 16-bit mono WAV file named after the
// segment ID.
type DirRecorder struct {
	Dir string
}

var _ Recorder = (*DirRecorder)(nil)

// NewDirRecorder creates dir if needed.
func NewDirRecorder(dir string) (*DirRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: create recordings dir: %w", err)
	}
	return &DirRecorder{Dir: dir}, nil
}

// Record implements [Recorder].
func (r *DirRecorder) Record(_ context.Context, seg *segment.Segment, pcm []float32) error {
	return audio.WriteWAVFile(r.Path(seg.ID), pcm, seg.SampleRate)
}

// Path returns the file a segment with id is written to.
func (r *DirRecorder) Path(id string) string {
	return filepath.Join(r.Dir, id+".wav")
}
