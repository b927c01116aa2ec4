// Package journal keeps an append-only JSON-lines log of what the assistant
// heard and did: transcripts, mode changes and submitted commands.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// Entry kinds.
const (
	KindTranscript = "transcript"
	KindMode       = "mode"
	KindCommand    = "command"
)

// Entry is a single journal line.
type Entry struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Mode    string    `json:"mode,omitempty"`
	Segment string    `json:"segment,omitempty"`
	Text    string    `json:"text,omitempty"`

	// Match results for transcripts.
	Fuzzy          bool `json:"fuzzy,omitempty"`
	StrictFirst    bool `json:"strict_first,omitempty"`
	StrictContains bool `json:"strict_contains,omitempty"`

	// Command is the text sent downstream, if any.
	Command string `json:"command,omitempty"`
	Error   string `json:"error,omitempty"`
}

// File appends entries to a local file. Safe for concurrent use.
type File struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Open returns a File writing to path. The file is created on first Append.
func Open(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("journal: empty path")
	}
	return &File{path: path, now: time.Now}, nil
}

// Path returns the journal file path.
func (f *File) Path() string { return f.path }

// Append writes e as one line, stamping Time if unset.
func (f *File) Append(e Entry) error {
	if e.Time.IsZero() {
		e.Time = f.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open: %w", err)
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("journal: close: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest entries, oldest first. A missing
// file yields no entries. Malformed lines are skipped.
func (f *File) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	defer fh.Close()

	ring := make([]Entry, 0, n)
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		var e Entry
		if json.Unmarshal(sc.Bytes(), &e) != nil {
			continue
		}
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: read: %w", err)
	}
	return ring, nil
}
