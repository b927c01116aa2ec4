package mode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/zentra/internal/observe"
	"github.com/MrWong99/zentra/internal/params"
	"github.com/MrWong99/zentra/internal/wake"
	"github.com/MrWong99/zentra/pkg/audio"
	"github.com/MrWong99/zentra/pkg/provider/command"
	"github.com/MrWong99/zentra/pkg/provider/cue"
)

const defaultSubmitTimeout = 15 * time.Second

// Config holds the controller's collaborators. Matcher, Graph, Sink, Wake
// and Active are required.
type Config struct {
	Matcher *wake.Matcher
	Graph   Graph
	Sink    command.Sink

	// Cues plays the confirmation and failure tones. Nil plays nothing.
	Cues cue.Player

	// Wake and Active are the per-mode parameter profiles.
	Wake   *params.Set
	Active *params.Set
}

// EventKind distinguishes controller notifications.
type EventKind int

const (
	// EventMode reports a mode change.
	EventMode EventKind = iota
	// EventCommand reports a finished command submission.
	EventCommand
)

// Event is a notification for status displays and journals.
type Event struct {
	Kind EventKind
	Mode Mode
	// Text is the command for EventCommand.
	Text string
	// Err is the submission error for EventCommand.
	Err error
}

// Option is a functional option for [New].
type Option func(*Controller)

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithSubmitTimeout bounds each command submission. Default: 15s.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.submitTimeout = d
	}
}

// WithObserver registers fn to receive events. fn runs on controller
// goroutines and must not block or call back into the controller.
func WithObserver(fn func(Event)) Option {
	return func(c *Controller) {
		c.observe = fn
	}
}

type request struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan struct{}
}

// Controller serializes transcription handling and mode transitions on a
// single goroutine. Command submissions and cues run asynchronously so that
// a slow downstream never delays the next decision.
type Controller struct {
	matcher       *wake.Matcher
	graph         Graph
	sink          command.Sink
	cues          cue.Player
	metrics       *observe.Metrics
	submitTimeout time.Duration
	observe       func(Event)

	// Owned by the run goroutine.
	profiles [2]*params.Set

	mode    atomic.Int32
	current atomic.Pointer[params.Set]

	reqs     chan request
	quit     chan struct{}
	stopped  chan struct{}
	baseCtx  context.Context
	cancel   context.CancelFunc
	async    sync.WaitGroup
	stopOnce sync.Once
}

// New validates cfg and starts the controller in Wake mode with the wake
// profile current. It does not touch the graph; the capture session is
// expected to start with [Controller.Current].
func New(cfg Config, opts ...Option) (*Controller, error) {
	switch {
	case cfg.Matcher == nil:
		return nil, fmt.Errorf("mode: matcher is required")
	case cfg.Graph == nil:
		return nil, fmt.Errorf("mode: graph is required")
	case cfg.Sink == nil:
		return nil, fmt.Errorf("mode: command sink is required")
	case cfg.Wake == nil || cfg.Active == nil:
		return nil, fmt.Errorf("mode: both wake and active profiles are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		matcher:       cfg.Matcher,
		graph:         cfg.Graph,
		sink:          cfg.Sink,
		cues:          cfg.Cues,
		submitTimeout: defaultSubmitTimeout,
		reqs:          make(chan request),
		quit:          make(chan struct{}),
		stopped:       make(chan struct{}),
		baseCtx:       ctx,
		cancel:        cancel,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.cues == nil {
		c.cues = cue.Nop{}
	}
	c.profiles[Wake] = cfg.Wake
	c.profiles[Active] = cfg.Active
	c.mode.Store(int32(Wake))
	c.current.Store(cfg.Wake)

	go c.run()
	return c, nil
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode { return Mode(c.mode.Load()) }

// Current returns the parameter set of the current mode.
func (c *Controller) Current() *params.Set { return c.current.Load() }

// Handle matches text against the wake word and applies the resulting
// decision:
//
//  1. wake word followed by more text: the remainder is submitted and the
//     mode returns to Wake;
//  2. wake word alone while in Wake: switch to Active and play the
//     confirmation cue;
//  3. anything while in Active: the whole text is submitted and the mode
//     returns to Wake;
//  4. otherwise the text is ignored.
//
// Empty text and sound tags never change state.
//
// If ctx ends or the controller stops before the text was handled, Handle
// returns a zero Decision with the error. The text may still be handled
// afterwards; observers see the outcome.
func (c *Controller) Handle(ctx context.Context, text string) (Decision, error) {
	res := make(chan Decision, 1)
	if err := c.do(ctx, func(ctx context.Context) {
		res <- c.handle(ctx, text)
	}); err != nil {
		return Decision{}, err
	}
	return <-res, nil
}

// Transition switches to mode to, reconfiguring the graph as needed.
func (c *Controller) Transition(ctx context.Context, to Mode) error {
	if to != Wake && to != Active {
		return fmt.Errorf("mode: unknown mode %d", to)
	}
	return c.do(ctx, func(ctx context.Context) {
		c.transition(ctx, to)
	})
}

// Reload replaces both profiles and applies the one for the current mode.
func (c *Controller) Reload(ctx context.Context, wakeSet, activeSet *params.Set) error {
	if wakeSet == nil || activeSet == nil {
		return fmt.Errorf("mode: reload requires both profiles")
	}
	return c.do(ctx, func(ctx context.Context) {
		c.profiles[Wake] = wakeSet
		c.profiles[Active] = activeSet
		c.transition(ctx, c.Mode())
	})
}

// Close stops the controller, cancels pending submissions and cues, and
// waits for them to finish. It is idempotent.
func (c *Controller) Close() error {
	c.stopOnce.Do(func() {
		c.cancel()
		close(c.quit)
		<-c.stopped
		c.async.Wait()
	})
	return nil
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.quit:
			return
		case req := <-c.reqs:
			req.fn(req.ctx)
			close(req.done)
		}
	}
}

func (c *Controller) do(ctx context.Context, fn func(context.Context)) error {
	req := request{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case c.reqs <- req:
	case <-c.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-c.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) handle(ctx context.Context, text string) Decision {
	log := observe.Logger(ctx)
	text = strings.TrimSpace(text)
	if text == "" {
		return Decision{Action: Ignored, Mode: c.Mode()}
	}
	if wake.IsSoundTag(text) {
		log.Debug("sound tag discarded", "text", text)
		return Decision{Action: Discarded, Mode: c.Mode()}
	}
	text = wake.StripSoundTags(text)

	m := c.match(ctx, text)
	c.recordMatch(ctx, text, m)

	switch {
	case m.Matched && m.Remainder != "":
		c.submit(m.Remainder)
		c.transition(ctx, Wake)
		return Decision{Action: Submitted, Command: m.Remainder, Matched: true, Mode: Wake}

	case c.Mode() == Wake && m.Matched:
		c.transition(ctx, Active)
		c.play(cue.Success)
		return Decision{Action: Armed, Matched: true, Mode: Active}

	case c.Mode() == Active:
		c.submit(text)
		c.transition(ctx, Wake)
		return Decision{Action: Submitted, Command: text, Matched: m.Matched, Mode: Wake}
	}

	log.Debug("utterance ignored", "text", text)
	return Decision{Action: Ignored, Mode: c.Mode()}
}

// match runs the matcher, treating a panic as no match.
func (c *Controller) match(ctx context.Context, text string) (m wake.Match) {
	defer func() {
		if r := recover(); r != nil {
			observe.Logger(ctx).Error("wake matching panicked", "panic", r, "text", text)
			m = wake.Match{}
		}
	}()
	return c.matcher.Match(text)
}

func (c *Controller) recordMatch(ctx context.Context, text string, m wake.Match) {
	strict := wake.Strict(text, c.matcher.Word())
	kind := "none"
	switch {
	case strict.Contains:
		kind = "strict"
	case m.Matched:
		kind = "fuzzy"
	}
	c.metrics.RecordWakeMatch(ctx, kind)
	if m.Matched {
		observe.Logger(ctx).Debug("wake word matched",
			"token", m.Token,
			"distance", m.Distance,
			"first_word", strict.FirstWord,
			"remainder", m.Remainder,
		)
	}
}

// transition must run on the controller goroutine. Graph errors are logged
// and the new mode still takes effect; the graph stays on whatever the
// failed call left behind until the next transition.
func (c *Controller) transition(ctx context.Context, to Mode) {
	next := c.profiles[to]
	prev := c.current.Load()
	change := params.Diff(prev, next)
	log := observe.Logger(ctx)

	var err error
	switch change {
	case params.ChangeNone:
		c.graph.Use(next)
	case params.ChangeLive:
		err = c.graph.ApplyLiveTunables(ctx, next)
	case params.ChangeStructural:
		c.metrics.RecordRebuild(ctx, "transition")
		err = c.graph.RebuildGraph(ctx, next)
	}
	if err != nil {
		log.Error("graph reconfiguration failed", "to", to, "change", change, "err", err)
	}

	from := c.Mode()
	c.current.Store(next)
	c.mode.Store(int32(to))
	if from == to {
		return
	}
	c.metrics.RecordTransition(ctx, to.String(), change.String())
	log.Info("mode changed", "from", from, "to", to, "change", change)
	c.emit(Event{Kind: EventMode, Mode: to})
}

func (c *Controller) submit(text string) {
	c.async.Add(1)
	go func() {
		defer c.async.Done()
		ctx, cancel := context.WithTimeout(c.baseCtx, c.submitTimeout)
		defer cancel()

		err := c.sink.Submit(ctx, text)
		c.metrics.RecordCommand(ctx, err)
		if err != nil {
			slog.Warn("command submission failed", "text", text, "err", err)
			c.playSync(ctx, cue.Failure)
		} else {
			slog.Info("command submitted", "text", text)
		}
		c.emit(Event{Kind: EventCommand, Mode: c.Mode(), Text: text, Err: err})
	}()
}

func (c *Controller) play(tone audio.Tone) {
	c.async.Add(1)
	go func() {
		defer c.async.Done()
		c.playSync(c.baseCtx, tone)
	}()
}

func (c *Controller) playSync(ctx context.Context, tone audio.Tone) {
	if err := c.cues.Play(ctx, tone); err != nil {
		slog.Debug("cue playback failed", "hz", tone.FrequencyHz, "err", err)
	}
}

func (c *Controller) emit(e Event) {
	if c.observe != nil {
		c.observe(e)
	}
}
