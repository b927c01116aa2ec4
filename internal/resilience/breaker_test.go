package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/zentra/internal/resilience"
)

var errBackend = errors.New("backend down")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newBreaker(c *clock) *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerConfig{
		Name:      "test",
		Threshold: 2,
		Cooldown:  time.Minute,
		Now:       c.now,
	})
}

func fail() error { return errBackend }
func ok() error   { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Unix(0, 0)}
	b := newBreaker(c)

	_ = b.Do(fail)
	if got := b.State(); got != resilience.Closed {
		t.Fatalf("after one failure: got %v, want closed", got)
	}
	_ = b.Do(fail)
	if got := b.State(); got != resilience.Open {
		t.Fatalf("after two failures: got %v, want open", got)
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrOpen) || called {
		t.Errorf("open breaker: err %v, called %v", err, called)
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()

	b := newBreaker(&clock{t: time.Unix(0, 0)})
	_ = b.Do(fail)
	_ = b.Do(ok)
	_ = b.Do(fail)
	if got := b.State(); got != resilience.Closed {
		t.Errorf("got %v, want closed", got)
	}
}

func TestBreaker_Probe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		probe func() error
		want  resilience.State
	}{
		{name: "probe succeeds", probe: ok, want: resilience.Closed},
		{name: "probe fails", probe: fail, want: resilience.Open},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := &clock{t: time.Unix(0, 0)}
			b := newBreaker(c)
			_ = b.Do(fail)
			_ = b.Do(fail)

			c.advance(time.Minute)
			if got := b.State(); got != resilience.HalfOpen {
				t.Fatalf("after cooldown: got %v, want half-open", got)
			}
			_ = b.Do(tt.probe)
			if got := b.State(); got != tt.want {
				t.Errorf("after probe: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBreaker_CancellationNotCounted(t *testing.T) {
	t.Parallel()

	b := newBreaker(&clock{t: time.Unix(0, 0)})
	for range 5 {
		_ = b.Do(func() error { return context.Canceled })
	}
	if got := b.State(); got != resilience.Closed {
		t.Errorf("got %v, want closed", got)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := newBreaker(&clock{t: time.Unix(0, 0)})
	_ = b.Do(fail)
	_ = b.Do(fail)
	b.Reset()
	if got := b.State(); got != resilience.Closed {
		t.Errorf("got %v, want closed", got)
	}
}
