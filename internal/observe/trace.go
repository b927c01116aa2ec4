package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/zentra"

// Tracer returns the Zentra tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span. The caller must call span.End.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// TraceID returns the hex trace ID of the span in ctx, or "" when there is
// none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

type segmentKey struct{}

// WithSegment tags ctx with the ID of the segment being processed so that
// [Logger] includes it.
func WithSegment(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, segmentKey{}, id)
}

// SegmentID returns the segment ID stored by [WithSegment].
func SegmentID(ctx context.Context) string {
	id, _ := ctx.Value(segmentKey{}).(string)
	return id
}

// Logger returns the default logger enriched with the trace, span and
// segment identifiers found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := SegmentID(ctx); id != "" {
		l = l.With(slog.String("segment", id))
	}
	return l
}
