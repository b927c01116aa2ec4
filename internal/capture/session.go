// Package capture runs the microphone pipeline: a producer goroutine reads
// fixed-size blocks from an [audio.Source], a consumer goroutine filters them,
// runs the voice-activity gates and the segmenter, and every finalized
// segment is handed to a single post-processing worker that levels,
// optionally records, and transcribes it.
//
// Capture never waits on post-processing. Segments are post-processed one at
// a time in the order they were captured.
//
// The session also implements [mode.Graph]: parameter sets are swapped
// atomically and read once per frame, node settings are retuned through the
// consumer, and topology changes rebuild the whole pipeline.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/zentra/internal/mode"
	"github.com/MrWong99/zentra/internal/observe"
	"github.com/MrWong99/zentra/internal/params"
	"github.com/MrWong99/zentra/internal/segment"
	"github.com/MrWong99/zentra/pkg/audio"
)

// Start preconditions. The session stays stopped when Start returns one of
// these.
var (
	ErrInsecureContext  = errors.New("capture: microphone access requires a secure context")
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	ErrNoDevice         = errors.New("capture: no capture device")
	ErrAlreadyRunning   = errors.New("capture: session already running")
)

const (
	defaultBlockSize  = 4096
	defaultQueueDepth = 32
)

// Transcriber turns one leveled segment into text. It never fails; errors
// are reported as "".
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, rate int, p *params.Set) string
}

// TranscriptFunc receives each transcription in capture order. It runs on
// the post-processing worker; the next segment waits until it returns.
type TranscriptFunc func(ctx context.Context, seg *segment.Segment, text string)

// Config holds the session's collaborators and device settings.
type Config struct {
	// Source is the microphone. Required.
	Source audio.Source

	// Transcriber is required.
	Transcriber Transcriber

	// OnTranscript is called with every transcription, including empty ones.
	OnTranscript TranscriptFunc

	// Recorder, when set, stores every leveled segment.
	Recorder Recorder

	// BlockSize is the number of samples per capture block. Default: 4096.
	BlockSize int

	// QueueDepth bounds the frames waiting for the consumer. When full the
	// newest frame is dropped. Default: 32.
	QueueDepth int

	// SecureContext and PermissionGranted gate microphone access.
	SecureContext     bool
	PermissionGranted bool
}

// Option is a functional option for [New].
type Option func(*Session)

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithObserver registers fn to receive pipeline events. fn runs on the
// consumer and worker goroutines and must not block.
func WithObserver(fn func(Event)) Option {
	return func(s *Session) {
		s.observe = fn
	}
}

// WithSegmenterOptions passes options to every segmenter the session builds.
func WithSegmenterOptions(opts ...segment.Option) Option {
	return func(s *Session) {
		s.segOpts = opts
	}
}

// Session is one capture lifecycle. Start and Stop may be called repeatedly.
type Session struct {
	cfg     Config
	metrics *observe.Metrics
	observe func(Event)
	segOpts []segment.Option

	current atomic.Pointer[params.Set]
	status  atomic.Pointer[Status]
	dropped atomic.Uint64
	postRef atomic.Pointer[worker]

	// mu serializes Start, Stop and graph rebuilds.
	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	pipe    *pipeline
}

var _ mode.Graph = (*Session)(nil)

// New creates a stopped session whose first run uses p.
func New(cfg Config, p *params.Set, opts ...Option) (*Session, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("capture: source is required")
	}
	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("capture: transcriber is required")
	}
	if p == nil {
		return nil, fmt.Errorf("capture: initial parameters are required")
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaultBlockSize
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	s := &Session{cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.current.Store(p)
	s.status.Store(&Status{})
	return s, nil
}

// Current returns the parameter set frames are processed with.
func (s *Session) Current() *params.Set { return s.current.Load() }

// Running reports whether the session is started.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start checks the microphone preconditions, opens the source and starts
// the pipeline. The session runs until Stop is called or ctx is cancelled.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	switch {
	case !s.cfg.SecureContext:
		return s.startFailed(ErrInsecureContext)
	case !s.cfg.PermissionGranted:
		return s.startFailed(ErrPermissionDenied)
	}

	sctx, cancel := context.WithCancel(ctx)
	pl, err := s.openPipeline(sctx, s.current.Load())
	if err != nil {
		cancel()
		return s.startFailed(err)
	}

	s.ctx, s.cancel = sctx, cancel
	s.pipe = pl
	s.postRef.Store(startWorker(sctx, s.postProcess))
	s.running = true
	s.dropped.Store(0)
	s.metrics.CaptureRunning.Add(ctx, 1)
	slog.Info("capture started",
		"sample_rate", pl.rate,
		"block_size", s.cfg.BlockSize,
		"profile", s.current.Load().Name,
		"bypass", pl.chain.Bypassed(),
	)
	return nil
}

func (s *Session) startFailed(err error) error {
	slog.Error("capture could not start", "err", err)
	return err
}

// Stop tears the pipeline down: source stop, consumer exit, filter chain
// close, source close, buffer reset. Every step runs even if an earlier one
// failed; the joined errors are returned. Segments still queued for
// post-processing are dropped. Stop on a stopped session is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, pl := s.cancel, s.pipe
	s.pipe, s.cancel = nil, nil
	s.mu.Unlock()
	post := s.postRef.Swap(nil)

	// Cancelling first releases a worker blocked in a rebuild or callback.
	cancel()
	err := s.teardown(pl)
	if n := post.wait(); n > 0 {
		slog.Info("dropped queued segments on stop", "count", n)
	}
	s.status.Store(&Status{})
	s.metrics.CaptureRunning.Add(context.Background(), -1)
	if err != nil {
		slog.Warn("capture stopped with errors", "err", err)
	} else {
		slog.Info("capture stopped")
	}
	return err
}

// Use makes p current. It takes effect on the next frame.
func (s *Session) Use(p *params.Set) {
	s.current.Store(p)
}

// ApplyLiveTunables retunes the running filter chain for p without
// interrupting capture, falling back to a full rebuild when the chain cannot
// take p in place.
func (s *Session) ApplyLiveTunables(ctx context.Context, p *params.Set) error {
	s.mu.Lock()
	pl := s.pipe
	running := s.running
	if !running {
		s.current.Store(p)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if pl != nil {
		err := pl.retune(ctx, p)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		slog.Warn("live retune failed, rebuilding graph", "err", err)
	}
	return s.RebuildGraph(ctx, p)
}

// RebuildGraph stops the source and pipeline, then reopens them configured
// for p. Post-processing keeps running. On a stopped session it only makes
// p current.
func (s *Session) RebuildGraph(ctx context.Context, p *params.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Store(p)
	if !s.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	old := s.pipe
	s.pipe = nil
	if err := s.teardown(old); err != nil {
		slog.Warn("graph teardown reported errors", "err", err)
	}
	pl, err := s.openPipeline(s.ctx, p)
	if err != nil {
		slog.Error("graph rebuild failed, capture halted", "profile", p.Name, "err", err)
		return fmt.Errorf("capture: rebuild: %w", err)
	}
	s.pipe = pl
	slog.Info("graph rebuilt",
		"profile", p.Name,
		"prefilter", pl.chain.Prefiltered(),
		"analyser", pl.chain.Analyser() != nil,
	)
	return nil
}

// Healthy reports an error unless audio is flowing.
func (s *Session) Healthy(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.running:
		return errors.New("capture not running")
	case s.pipe == nil:
		return errors.New("capture graph down")
	case s.pipe.exited():
		return errors.New("audio source ended")
	}
	return nil
}

// Status returns the latest pipeline snapshot.
func (s *Session) Status() Status {
	st := *s.status.Load()
	st.FramesDropped = s.dropped.Load()
	return st
}

func (s *Session) emit(e Event) {
	if s.observe != nil {
		s.observe(e)
	}
}
