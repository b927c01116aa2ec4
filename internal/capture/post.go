package capture

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/zentra/internal/level"
	"github.com/MrWong99/zentra/internal/observe"
	"github.com/MrWong99/zentra/internal/segment"
)

// postProcess levels, records and transcribes one segment, then hands the
// text to the transcript callback. The parameter set is the one that was
// current when the segment closed.
func (s *Session) postProcess(ctx context.Context, seg *segment.Segment) {
	ctx = observe.WithSegment(ctx, seg.ID)
	ctx, span := observe.StartSpan(ctx, "capture.post_process")
	defer span.End()
	log := observe.Logger(ctx)

	p := seg.Params
	pcm := level.Normalize(seg.Samples, seg.RMS, p)
	span.SetAttributes(
		attribute.String("profile", p.Name),
		attribute.Float64("duration_s", seg.Duration.Seconds()),
		attribute.Float64("rms", seg.RMS),
	)

	if s.cfg.Recorder != nil {
		if err := s.cfg.Recorder.Record(ctx, seg, pcm); err != nil {
			log.Warn("segment recording failed", "err", err)
		}
	}

	text := s.cfg.Transcriber.Transcribe(ctx, pcm, seg.SampleRate, p)
	log.Info("segment transcribed", "text", text, "queued", s.queued())
	s.emit(Event{Kind: EventTranscript, SegmentID: seg.ID, Text: text, Duration: seg.Duration, RMS: seg.RMS})

	if s.cfg.OnTranscript != nil && ctx.Err() == nil {
		s.cfg.OnTranscript(ctx, seg, text)
	}
}

func (s *Session) queued() int {
	if w := s.postRef.Load(); w != nil {
		return w.pending()
	}
	return 0
}
