package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultPollInterval = 2 * time.Second

// ReloadFunc receives the config that was in effect and the one that
// replaces it. The assistant uses it to swap profiles and the log level
// while capture keeps running.
type ReloadFunc func(old, next *Config)

// revision identifies one accepted version of the file on disk.
type revision struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// Watcher re-reads the assistant's config file on a fixed interval so that
// profile tuning can be edited without restarting capture. A revision is
// only handed to the ReloadFunc when its bytes changed and it passes
// [Validate]; a broken edit leaves the running profiles untouched.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc

	mu  sync.Mutex
	rev revision

	quit     chan struct{}
	quitOnce sync.Once
	exited   chan struct{}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets how often the file is checked. Default: 2s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher reads path once, failing if it does not hold a valid config,
// and then keeps checking it until Stop.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		onReload: onReload,
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	rev, err := readRevision(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.rev = rev

	go w.loop()
	return w, nil
}

// Current returns the config of the last accepted revision.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rev.cfg
}

// Stop ends polling. A reload that is being applied finishes first.
func (w *Watcher) Stop() {
	w.quitOnce.Do(func() { close(w.quit) })
	<-w.exited
}

func (w *Watcher) loop() {
	defer close(w.exited)
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		select {
		case <-w.quit:
			return
		case <-tick.C:
			w.reload()
		}
	}
}

// reload applies the file if it was touched, parses, and differs in content
// from the last accepted revision.
func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("profile reload: config file unavailable", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	touched := !info.ModTime().Equal(w.rev.mtime)
	w.mu.Unlock()
	if !touched {
		return
	}

	next, err := readRevision(w.path)
	if err != nil {
		slog.Warn("profile reload: edit rejected, profiles unchanged", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	prev := w.rev
	if next.sum == prev.sum {
		// Saved without changes.
		w.rev.mtime = next.mtime
		w.mu.Unlock()
		return
	}
	w.rev = next
	w.mu.Unlock()

	slog.Info("profile reload: new config accepted", "path", w.path)
	if w.onReload != nil {
		w.onReload(prev.cfg, next.cfg)
	}
}

func readRevision(path string) (revision, error) {
	info, err := os.Stat(path)
	if err != nil {
		return revision{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return revision{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return revision{}, err
	}
	return revision{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
