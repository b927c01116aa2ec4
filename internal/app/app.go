// Package app wires all Zentra subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts capture and the HTTP listener and blocks, and
// Shutdown tears everything down in order.
//
// Providers come from the caller (normally cmd/zentra via the config
// registry), so tests can pass mocks for every external collaborator.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/zentra/internal/capture"
	"github.com/MrWong99/zentra/internal/config"
	"github.com/MrWong99/zentra/internal/health"
	"github.com/MrWong99/zentra/internal/journal"
	"github.com/MrWong99/zentra/internal/mode"
	"github.com/MrWong99/zentra/internal/observe"
	"github.com/MrWong99/zentra/internal/resilience"
	"github.com/MrWong99/zentra/internal/segment"
	"github.com/MrWong99/zentra/internal/status"
	"github.com/MrWong99/zentra/internal/transcript"
	"github.com/MrWong99/zentra/internal/wake"
	"github.com/MrWong99/zentra/pkg/audio"
	"github.com/MrWong99/zentra/pkg/provider/command"
	"github.com/MrWong99/zentra/pkg/provider/cue"
	"github.com/MrWong99/zentra/pkg/provider/stt"
)

// Providers holds one interface value per external collaborator.
// STTFallback and Cue may be nil.
type Providers struct {
	Source      audio.Source
	STT         stt.Provider
	STTFallback stt.Provider
	Command     command.Sink
	Cue         cue.Player
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics    *observe.Metrics
	telemetry  *observe.Telemetry
	logLevel   *slog.LevelVar
	configPath string

	transcriber *resilience.Transcriber
	session     *capture.Session
	ctrl        *mode.Controller
	hub         *status.Hub
	journal     *journal.File
	handler     http.Handler
	listener    net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry serves t's Prometheus registry on /metrics.
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) { a.telemetry = t }
}

// WithLogLevel lets config reloads adjust the process log level.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithConfigWatch makes Run poll path and apply profile and log level
// changes while running.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithListener serves HTTP on l instead of listening on
// cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Nothing is started
// until [App.Run].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	switch {
	case providers == nil || providers.Source == nil:
		return nil, errors.New("app: audio source is required")
	case providers.STT == nil:
		return nil, errors.New("app: stt provider is required")
	case providers.Command == nil:
		return nil, errors.New("app: command sink is required")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.collectClosers()

	// ── 1. Journal ───────────────────────────────────────────────────────
	if path := cfg.Journal.Path; path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return nil, fmt.Errorf("app: open journal: %w", err)
		}
		a.journal = j
		slog.Info("utterance journal enabled", "path", path)
	}

	// ── 2. Transcription ─────────────────────────────────────────────────
	a.transcriber = resilience.NewTranscriber(cfg.Providers.STT.Name, providers.STT, resilience.BreakerConfig{})
	if providers.STTFallback != nil {
		a.transcriber.Add(cfg.Providers.STTFallback.Name, providers.STTFallback)
	}
	adapter := transcript.New(a.transcriber,
		transcript.WithName(cfg.Providers.STT.Name),
		transcript.WithLanguage(cfg.Providers.STT.Language),
		transcript.WithMetrics(a.metrics),
	)

	// ── 3. Capture session ───────────────────────────────────────────────
	var rec capture.Recorder
	if dir := cfg.Recordings.Dir; dir != "" {
		r, err := capture.NewDirRecorder(dir)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		rec = r
		slog.Info("segment recordings enabled", "dir", dir)
	}

	wakeSet, activeSet := cfg.Profiles.Sets()
	session, err := capture.New(capture.Config{
		Source:            providers.Source,
		Transcriber:       adapter,
		OnTranscript:      a.onTranscript,
		Recorder:          rec,
		BlockSize:         cfg.Capture.BlockSize,
		QueueDepth:        cfg.Capture.QueueDepth,
		SecureContext:     cfg.Capture.SecureContext,
		PermissionGranted: cfg.Capture.PermissionGranted,
	}, wakeSet,
		capture.WithMetrics(a.metrics),
		capture.WithObserver(a.onCaptureEvent),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.session = session

	// ── 4. Mode controller ───────────────────────────────────────────────
	ctrl, err := mode.New(mode.Config{
		Matcher: wake.New(cfg.WakeWord),
		Graph:   session,
		Sink:    providers.Command,
		Cues:    providers.Cue,
		Wake:    wakeSet,
		Active:  activeSet,
	},
		mode.WithMetrics(a.metrics),
		mode.WithObserver(a.onModeEvent),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.ctrl = ctrl

	// ── 5. Status feed and HTTP surface ──────────────────────────────────
	a.hub = status.NewHub(a.snapshot)
	a.handler = a.routes()

	return a, nil
}

// collectClosers registers Close for every provider that has one.
func (a *App) collectClosers() {
	seen := make(map[any]bool)
	for _, p := range []any{a.providers.STT, a.providers.STTFallback, a.providers.Command, a.providers.Cue} {
		c, ok := p.(io.Closer)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		a.closers = append(a.closers, c.Close)
	}
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	h := health.New(
		health.Checker{Name: "capture", Critical: true, Check: a.session.Healthy},
		health.Checker{Name: "transcription", Check: a.transcriptionHealthy},
	)
	h.Register(mux)

	if a.telemetry != nil {
		mux.Handle("GET /metrics", a.telemetry.MetricsHandler())
	}
	mux.Handle("GET /status", a.hub)
	if a.journal != nil {
		mux.HandleFunc("GET /journal", a.serveJournal)
	}
	return observe.Middleware(a.metrics)(mux)
}

// Handler returns the HTTP surface: probes, metrics, status feed, journal.
func (a *App) Handler() http.Handler { return a.handler }

// Controller returns the mode controller.
func (a *App) Controller() *mode.Controller { return a.ctrl }

// Session returns the capture session.
func (a *App) Session() *capture.Session { return a.session }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts capture, the HTTP listener and the config watcher, and blocks
// until ctx is cancelled or a component fails. When ctx is done Run returns
// context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	if err := a.session.Start(ctx); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.listener != nil || a.cfg.Server.ListenAddr != "" {
		srv := &http.Server{
			Handler:           a.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		ln := a.listener
		if ln == nil {
			var err error
			if ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr); err != nil {
				return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
			}
		}
		slog.Info("http listening", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, func(old, next *config.Config) {
			a.ApplyConfig(ctx, old, next)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			g.Go(func() error {
				<-ctx.Done()
				w.Stop()
				return nil
			})
		}
	}

	slog.Info("app running", "wake_word", a.cfg.WakeWord, "mode", a.ctrl.Mode())
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})
	return g.Wait()
}

// ApplyConfig applies the hot-reloadable parts of next: log level and both
// parameter profiles. Other changes are logged as needing a restart.
func (a *App) ApplyConfig(ctx context.Context, old, next *config.Config) {
	d := config.Diff(old, next)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ProfilesChanged() {
		wakeSet, activeSet := next.Profiles.Sets()
		if err := a.ctrl.Reload(ctx, wakeSet, activeSet); err != nil {
			slog.Warn("profile reload failed", "err", err)
		} else {
			slog.Info("profiles reloaded", "wake", d.WakeChanged, "active", d.ActiveChanged)
		}
	}
	if len(d.Restart) > 0 {
		slog.Warn("config changes take effect after restart", "sections", d.Restart)
	}
}

// ─── Event plumbing ──────────────────────────────────────────────────────────

// onTranscript runs on the capture worker, one segment at a time.
func (a *App) onTranscript(ctx context.Context, seg *segment.Segment, text string) {
	d, err := a.ctrl.Handle(ctx, text)
	if err != nil {
		observe.Logger(ctx).Debug("transcript not handled", "err", err)
		return
	}
	if a.journal == nil || strings.TrimSpace(text) == "" {
		return
	}
	strict := wake.Strict(text, a.cfg.WakeWord)
	err = a.journal.Append(journal.Entry{
		Kind:           journal.KindTranscript,
		Segment:        seg.ID,
		Mode:           d.Mode.String(),
		Text:           text,
		Fuzzy:          d.Matched,
		StrictFirst:    strict.FirstWord,
		StrictContains: strict.Contains,
		Command:        d.Command,
	})
	if err != nil {
		slog.Warn("journal append failed", "err", err)
	}
}

func (a *App) onCaptureEvent(e capture.Event) {
	m := status.Message{Segment: e.SegmentID}
	switch e.Kind {
	case capture.EventVAD:
		st := a.session.Status()
		m.Type = status.TypeVAD
		m.State = e.State.String()
		if e.State != segment.Idle {
			left := st.SilenceLeft.Seconds()
			m.Countdown = &left
			m.Buffered = st.Buffered.Seconds()
		}
	case capture.EventSegment:
		m.Type = status.TypeSegment
		m.DurationMs = e.Duration.Milliseconds()
		m.RMS = e.RMS
	case capture.EventDiscard:
		m.Type = status.TypeSegment
		m.Reason = string(e.Reason)
		m.DurationMs = e.Duration.Milliseconds()
		m.RMS = e.RMS
	case capture.EventTranscript:
		m.Type = status.TypeTranscript
		m.Text = e.Text
	default:
		return
	}
	a.hub.Publish(m)
}

func (a *App) onModeEvent(e mode.Event) {
	var (
		m     status.Message
		entry journal.Entry
	)
	switch e.Kind {
	case mode.EventMode:
		m = status.Message{Type: status.TypeMode, Mode: e.Mode.String(), Profile: a.ctrl.Current().Name}
		entry = journal.Entry{Kind: journal.KindMode, Mode: e.Mode.String()}
	case mode.EventCommand:
		m = status.Message{Type: status.TypeCommand, Mode: e.Mode.String(), Text: e.Text}
		entry = journal.Entry{Kind: journal.KindCommand, Mode: e.Mode.String(), Command: e.Text}
		if e.Err != nil {
			m.Error = e.Err.Error()
			entry.Error = e.Err.Error()
		}
	default:
		return
	}
	a.hub.Publish(m)
	if a.journal != nil {
		if err := a.journal.Append(entry); err != nil {
			slog.Warn("journal append failed", "err", err)
		}
	}
}

// snapshot is the first message every status client receives.
func (a *App) snapshot() status.Message {
	st := a.session.Status()
	m := status.Message{
		Mode:    a.ctrl.Mode().String(),
		Profile: a.ctrl.Current().Name,
		State:   st.State.String(),
	}
	if st.State != segment.Idle {
		left := st.SilenceLeft.Seconds()
		m.Countdown = &left
		m.Buffered = st.Buffered.Seconds()
	}
	return m
}

// transcriptionHealthy fails while every backend's breaker is open.
func (a *App) transcriptionHealthy(context.Context) error {
	for _, name := range a.transcriber.Backends() {
		if s, _ := a.transcriber.State(name); s != resilience.Open {
			return nil
		}
	}
	return errors.New("all transcription backends unavailable")
}

const defaultJournalLimit = 50

func (a *App) serveJournal(w http.ResponseWriter, r *http.Request) {
	n := defaultJournalLimit
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	entries, err := a.journal.Recent(n)
	if err != nil {
		observe.Logger(r.Context()).Warn("journal read failed", "err", err)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops capture, drains the controller and closes providers. It
// respects the context deadline: if ctx expires before all closers finish,
// the remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.session.Stop(); err != nil {
			slog.Warn("capture stop error", "err", err)
		}
		if err := a.ctrl.Close(); err != nil {
			slog.Warn("controller close error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
