package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/zentra/pkg/provider/stt"
)

// ErrAllFailed is returned when no backend produced a transcription.
var ErrAllFailed = errors.New("resilience: all transcribers failed")

type backend struct {
	name     string
	provider stt.Provider
	breaker  *Breaker
}

// Transcriber is an [stt.Provider] that tries its backends in registration
// order and returns the first successful result. Backends whose breaker is
// open are skipped without a call.
type Transcriber struct {
	cfg      BreakerConfig
	backends []backend
}

var _ stt.Provider = (*Transcriber)(nil)

// NewTranscriber creates a Transcriber with primary as the first backend.
// cfg is copied for every backend's breaker with Name replaced.
func NewTranscriber(name string, primary stt.Provider, cfg BreakerConfig) *Transcriber {
	t := &Transcriber{cfg: cfg}
	t.Add(name, primary)
	return t
}

// Add registers a further backend. It must not be called concurrently with
// Transcribe.
func (t *Transcriber) Add(name string, p stt.Provider) {
	cfg := t.cfg
	cfg.Name = "stt/" + name
	t.backends = append(t.backends, backend{name: name, provider: p, breaker: NewBreaker(cfg)})
}

// Backends returns the registered backend names in order.
func (t *Transcriber) Backends() []string {
	names := make([]string, len(t.backends))
	for i, b := range t.backends {
		names[i] = b.name
	}
	return names
}

// State returns the breaker state of the named backend.
func (t *Transcriber) State(name string) (State, bool) {
	for _, b := range t.backends {
		if b.name == name {
			return b.breaker.State(), true
		}
	}
	return Closed, false
}

// Transcribe implements [stt.Provider].
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	var errs []error
	for _, b := range t.backends {
		if err := ctx.Err(); err != nil {
			return stt.Result{}, err
		}
		var res stt.Result
		err := b.breaker.Do(func() error {
			var err error
			res, err = b.provider.Transcribe(ctx, req)
			return err
		})
		if err == nil {
			return res, nil
		}
		if errors.Is(err, ErrOpen) {
			slog.Debug("transcriber skipped", "backend", b.name)
		} else {
			slog.Warn("transcriber failed, trying next", "backend", b.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
	}
	return stt.Result{}, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
