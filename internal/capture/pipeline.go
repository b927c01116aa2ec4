package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/zentra/internal/dsp"
	"github.com/MrWong99/zentra/internal/params"
	"github.com/MrWong99/zentra/internal/segment"
	"github.com/MrWong99/zentra/internal/vad"
	"github.com/MrWong99/zentra/pkg/audio"
)

type retuneReq struct {
	p   *params.Set
	res chan error
}

// pipeline is one open run of source, producer, chain and consumer. A
// rebuild replaces it wholesale.
type pipeline struct {
	rate   int
	chain  *dsp.Chain
	seg    *segment.Segmenter
	frames chan audio.Frame
	ctrl   chan retuneReq
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

func (pl *pipeline) exited() bool {
	select {
	case <-pl.done:
		return true
	default:
		return false
	}
}

// retune asks the consumer to apply p to the chain in place.
func (pl *pipeline) retune(ctx context.Context, p *params.Set) error {
	req := retuneReq{p: p, res: make(chan error, 1)}
	select {
	case pl.ctrl <- req:
	case <-pl.done:
		return errors.New("capture: pipeline not running")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openPipeline opens the source and starts producer and consumer for p.
// Callers hold s.mu.
func (s *Session) openPipeline(ctx context.Context, p *params.Set) (*pipeline, error) {
	rate, err := s.cfg.Source.Open(ctx, s.cfg.BlockSize)
	if err != nil {
		_ = s.cfg.Source.Close()
		switch {
		case errors.Is(err, audio.ErrNoDevice):
			return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
		case errors.Is(err, audio.ErrPermissionDenied):
			return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("capture: open source: %w", err)
	}

	chain := dsp.New(rate, p)
	seg := segment.New(s.segOpts...)
	var spectrum vad.Spectrum
	if a := chain.Analyser(); a != nil {
		spectrum = a
	}
	seg.SetSpectralGate(vad.NewSpectralGate(spectrum, rate))

	pctx, cancel := context.WithCancel(ctx)
	pl := &pipeline{
		rate:   rate,
		chain:  chain,
		seg:    seg,
		frames: make(chan audio.Frame, s.cfg.QueueDepth),
		ctrl:   make(chan retuneReq),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	pl.wg.Add(2)
	go func() {
		defer pl.wg.Done()
		s.produce(pl)
	}()
	go func() {
		defer pl.wg.Done()
		defer close(pl.done)
		s.consume(pctx, pl)
	}()
	return pl, nil
}

// teardown stops pl in a fixed order, continuing past failures. Callers
// hold s.mu or have exclusive ownership of pl.
func (s *Session) teardown(pl *pipeline) error {
	if pl == nil {
		return nil
	}
	var errs []error
	if err := s.cfg.Source.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop source: %w", err))
	}
	pl.cancel()
	pl.wg.Wait()
	if err := pl.chain.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chain: %w", err))
	}
	if err := s.cfg.Source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close source: %w", err))
	}
	pl.seg.Reset()
	for range pl.frames {
	}
	return errors.Join(errs...)
}

// produce reads blocks until the source ends. Frames that do not fit in the
// queue are dropped; stream time keeps advancing so that endpointing stays
// consistent with the audio actually heard.
func (s *Session) produce(pl *pipeline) {
	defer close(pl.frames)

	var (
		seq uint64
		pos int
	)
	for {
		buf := make([]float32, s.cfg.BlockSize)
		if err := s.cfg.Source.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("capture read failed", "err", err)
			}
			return
		}
		f := audio.Frame{
			Samples:    buf,
			SampleRate: pl.rate,
			Seq:        seq,
			Timestamp:  audio.SamplesDuration(pos, pl.rate),
		}
		seq++
		pos += len(buf)

		select {
		case pl.frames <- f:
		default:
			n := s.dropped.Add(1)
			s.metrics.FramesDropped.Add(context.Background(), 1)
			if n == 1 || n%100 == 0 {
				slog.Warn("capture frame queue full, dropping frames", "dropped", n)
			}
		}
	}
}

// consume owns the chain and the segmenter.
func (s *Session) consume(ctx context.Context, pl *pipeline) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-pl.ctrl:
			err := pl.chain.ApplyLive(req.p)
			if err == nil {
				s.current.Store(req.p)
			}
			req.res <- err
		case f, ok := <-pl.frames:
			if !ok {
				return
			}
			s.processFrame(ctx, pl, f)
		}
	}
}

func (s *Session) processFrame(ctx context.Context, pl *pipeline, f audio.Frame) {
	p := s.current.Load()
	// Gates and segment buffers see the filtered signal. The chain reuses
	// its output buffer, so a filtered frame gets its own copy.
	if filtered := pl.chain.Process(f.Samples); pl.chain.Prefiltered() {
		f.Samples = slices.Clone(filtered)
	}

	prev := pl.seg.State()
	out := pl.seg.Push(f, p)
	st := pl.seg.Status(p)
	s.status.Store(&Status{
		Running:     true,
		SampleRate:  pl.rate,
		Profile:     p.Name,
		State:       st.State,
		Buffered:    st.Buffered,
		SilenceLeft: st.SilenceLeft,
		StreamTime:  f.End(),
	})

	if now := pl.seg.State(); now != prev {
		s.emit(Event{Kind: EventVAD, State: now})
	}

	switch {
	case out.Onset:
		slog.Debug("speech onset", "at", f.Timestamp, "profile", p.Name)
	case out.Discarded != segment.DiscardNone:
		s.metrics.RecordDiscard(ctx, string(out.Discarded))
		slog.Debug("segment discarded",
			"reason", out.Discarded,
			"duration", out.Duration,
			"rms", out.RMS,
		)
		s.emit(Event{Kind: EventDiscard, Reason: out.Discarded, Duration: out.Duration, RMS: out.RMS})
	case out.Segment != nil:
		seg := out.Segment
		s.metrics.RecordSegment(ctx, p.Name, seg.Duration)
		slog.Info("segment finalized",
			"segment", seg.ID,
			"duration", seg.Duration.Round(time.Millisecond),
			"rms", seg.RMS,
		)
		s.emit(Event{Kind: EventSegment, SegmentID: seg.ID, Duration: seg.Duration, RMS: seg.RMS})
		if post := s.postQueue(); post != nil {
			post.push(seg)
		}
	}
}

// postQueue returns the worker without blocking on s.mu, which a rebuild
// may hold while waiting for this consumer to exit.
func (s *Session) postQueue() *worker {
	return s.postRef.Load()
}
