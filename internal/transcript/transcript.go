// Package transcript adapts an [stt.Provider] to the capture pipeline's
// best-effort contract: every failure of the recogniser is logged and
// reported as "no text", never returned to the caller.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/zentra/internal/observe"
	"github.com/MrWong99/zentra/internal/params"
	"github.com/MrWong99/zentra/pkg/provider/stt"
)

// Option is a functional option for [New].
type Option func(*Adapter)

// WithName sets the provider label used in logs and metrics.
func WithName(name string) Option {
	return func(a *Adapter) {
		a.name = name
	}
}

// WithLanguage sets the language hint sent with every request.
func WithLanguage(lang string) Option {
	return func(a *Adapter) {
		a.language = lang
	}
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// WithTimeout bounds each transcription. Zero, the default, leaves the
// deadline to the provider.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// Adapter is safe for concurrent use if the wrapped provider is.
type Adapter struct {
	provider stt.Provider
	name     string
	language string
	timeout  time.Duration
	metrics  *observe.Metrics
}

// New wraps provider.
func New(provider stt.Provider, opts ...Option) *Adapter {
	a := &Adapter{provider: provider, name: "stt"}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Transcribe sends one normalized utterance at rate with the bias prompt
// from p and cross-segment conditioning disabled. It returns the trimmed
// text, or "" when the recogniser failed, panicked or heard nothing.
func (a *Adapter) Transcribe(ctx context.Context, samples []float32, rate int, p *params.Set) (text string) {
	ctx, span := observe.StartSpan(ctx, "transcript.transcribe")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", a.name),
		attribute.Float64("audio_seconds", float64(len(samples))/float64(max(rate, 1))),
	)

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcript: provider panic: %v", r)
			text = ""
		}
		a.metrics.RecordTranscription(ctx, a.name, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transcription failed")
			observe.Logger(ctx).Warn("transcription failed", "provider", a.name, "err", err)
		}
	}()

	res, err := a.provider.Transcribe(ctx, stt.Request{
		Samples:             samples,
		SampleRate:          rate,
		Prompt:              p.BiasPrompt,
		ConditionOnPrevious: false,
		Language:            a.language,
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(res.Text)
}
