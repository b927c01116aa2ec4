// Package observe provides the observability primitives for Zentra:
// OpenTelemetry metrics and tracing, trace-aware logging, and an HTTP
// middleware that ties them together.
//
// Metrics are exported through the OpenTelemetry Prometheus bridge set up by
// [InitProvider] and scraped from /metrics. Tests should build their own
// [Metrics] with [NewMetrics] over a ManualReader instead of using
// [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/zentra"

// Metrics holds the application's metric instruments.
type Metrics struct {
	// --- Segmentation ---

	// SegmentsFinalized counts segments handed to post-processing, by mode.
	SegmentsFinalized metric.Int64Counter

	// SegmentsDiscarded counts closed segments dropped as noise, by reason
	// ("too_short", "too_quiet").
	SegmentsDiscarded metric.Int64Counter

	// SegmentDuration is the audio length of finalized segments.
	SegmentDuration metric.Float64Histogram

	// FramesDropped counts capture frames lost to a full frame queue.
	FramesDropped metric.Int64Counter

	// --- Recognition ---

	// STTDuration is transcription latency, by provider and status.
	STTDuration metric.Float64Histogram

	// STTErrors counts failed transcriptions, by provider.
	STTErrors metric.Int64Counter

	// WakeMatches counts transcriptions by wake-word outcome. Attribute
	// "kind" is one of "strict", "fuzzy" or "none".
	WakeMatches metric.Int64Counter

	// --- Control ---

	// Commands counts commands submitted downstream, by status.
	Commands metric.Int64Counter

	// ModeTransitions counts mode changes, by target mode and graph change
	// ("none", "live", "structural").
	ModeTransitions metric.Int64Counter

	// GraphRebuilds counts full processing graph rebuilds, by cause.
	GraphRebuilds metric.Int64Counter

	// CaptureRunning is 1 while a capture session is open.
	CaptureRunning metric.Int64UpDownCounter

	// --- HTTP ---

	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets in seconds, covering fast native inference through slow
// hosted transcription.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SegmentsFinalized, err = m.Int64Counter("zentra.segments.finalized",
		metric.WithDescription("Segments handed to transcription, by mode."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDiscarded, err = m.Int64Counter("zentra.segments.discarded",
		metric.WithDescription("Closed segments dropped as noise, by reason."),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("zentra.segment.duration",
		metric.WithDescription("Audio length of finalized segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 3, 5, 8, 13, 20, 30),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("zentra.capture.frames_dropped",
		metric.WithDescription("Capture frames dropped because the frame queue was full."),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("zentra.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTErrors, err = m.Int64Counter("zentra.stt.errors",
		metric.WithDescription("Failed transcriptions by provider."),
	); err != nil {
		return nil, err
	}
	if met.WakeMatches, err = m.Int64Counter("zentra.wake.matches",
		metric.WithDescription("Transcriptions by wake-word match kind."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("zentra.commands",
		metric.WithDescription("Commands submitted downstream by status."),
	); err != nil {
		return nil, err
	}
	if met.ModeTransitions, err = m.Int64Counter("zentra.mode.transitions",
		metric.WithDescription("Mode transitions by target mode and graph change."),
	); err != nil {
		return nil, err
	}
	if met.GraphRebuilds, err = m.Int64Counter("zentra.graph.rebuilds",
		metric.WithDescription("Full processing graph rebuilds by cause."),
	); err != nil {
		return nil, err
	}
	if met.CaptureRunning, err = m.Int64UpDownCounter("zentra.capture.running",
		metric.WithDescription("1 while a capture session is open."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("zentra.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] bound to the global
// meter provider, creating it on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegment records a finalized segment.
func (m *Metrics) RecordSegment(ctx context.Context, mode string, d time.Duration) {
	m.SegmentsFinalized.Add(ctx, 1, metric.WithAttributes(Attr("mode", mode)))
	m.SegmentDuration.Record(ctx, d.Seconds())
}

// RecordDiscard records a segment dropped for reason.
func (m *Metrics) RecordDiscard(ctx context.Context, reason string) {
	m.SegmentsDiscarded.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordTranscription records one transcription attempt.
func (m *Metrics) RecordTranscription(ctx context.Context, provider string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.STTErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider)))
	}
	m.STTDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		Attr("provider", provider),
		Attr("status", status),
	))
}

// RecordWakeMatch records the outcome of matching one transcription.
func (m *Metrics) RecordWakeMatch(ctx context.Context, kind string) {
	m.WakeMatches.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}

// RecordCommand records a downstream command submission.
func (m *Metrics) RecordCommand(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Commands.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordTransition records a mode change.
func (m *Metrics) RecordTransition(ctx context.Context, to, change string) {
	m.ModeTransitions.Add(ctx, 1, metric.WithAttributes(
		Attr("to", to),
		Attr("change", change),
	))
}

// RecordRebuild records a full graph rebuild.
func (m *Metrics) RecordRebuild(ctx context.Context, cause string) {
	m.GraphRebuilds.Add(ctx, 1, metric.WithAttributes(Attr("cause", cause)))
}
