package capture_test

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/zentra/internal/capture"
	"github.com/MrWong99/zentra/internal/observe"
	"github.com/MrWong99/zentra/internal/params"
	"github.com/MrWong99/zentra/internal/segment"
	"github.com/MrWong99/zentra/pkg/audio"
	audiomock "github.com/MrWong99/zentra/pkg/audio/mock"
)

const (
	rate  = 16000
	block = 1600 // 100 ms
)

func testParams() *params.Set {
	p := params.DefaultWake()
	p.VADRMS = 0.01
	p.MinRMS = 0.003
	p.MinSegSeconds = 0.5
	p.SilenceMs = 300
	p.PreRollMs = 200
	p.PostRollMs = 100
	p.EnableSpectral = false
	return &p
}

func silence() []float32 { return make([]float32, block) }

func speech() []float32 {
	out := make([]float32, block)
	for i := range out {
		out[i] = float32(0.2 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	return out
}

// utterance is n blocks of speech surrounded by enough silence to close it.
func utterance(n int) [][]float32 {
	var blocks [][]float32
	for range 3 {
		blocks = append(blocks, silence())
	}
	for range n {
		blocks = append(blocks, speech())
	}
	for range 6 {
		blocks = append(blocks, silence())
	}
	return blocks
}

type fakeTranscriber struct {
	mu    sync.Mutex
	texts []string
	gate  chan struct{}
	calls int
	rates []int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, samples []float32, rate int, _ *params.Set) string {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.rates = append(f.rates, rate)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil && i == 0 {
		select {
		case <-gate:
		case <-ctx.Done():
			return ""
		}
	}
	if i < len(f.texts) {
		return f.texts[i]
	}
	return ""
}

type result struct {
	seg  *segment.Segment
	text string
}

type harness struct {
	sess    *capture.Session
	src     *audiomock.Source
	stt     *fakeTranscriber
	results chan result
	p       *params.Set
}

func newHarness(t *testing.T, src *audiomock.Source, stt *fakeTranscriber, mutate func(*capture.Config)) *harness {
	t.Helper()

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := &harness{src: src, stt: stt, results: make(chan result, 8), p: testParams()}
	cfg := capture.Config{
		Source:      src,
		Transcriber: stt,
		OnTranscript: func(_ context.Context, seg *segment.Segment, text string) {
			h.results <- result{seg: seg, text: text}
		},
		BlockSize:         block,
		SecureContext:     true,
		PermissionGranted: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	sess, err := capture.New(cfg, h.p, capture.WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = sess.Stop() })
	h.sess = sess
	return h
}

func (h *harness) next(t *testing.T) result {
	t.Helper()
	select {
	case r := <-h.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a transcript")
		return result{}
	}
}

func TestSession_StartPreconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*capture.Config)
		openErr error
		want    error
	}{
		{name: "insecure context", mutate: func(c *capture.Config) { c.SecureContext = false }, want: capture.ErrInsecureContext},
		{name: "permission refused", mutate: func(c *capture.Config) { c.PermissionGranted = false }, want: capture.ErrPermissionDenied},
		{name: "no device", openErr: audio.ErrNoDevice, want: capture.ErrNoDevice},
		{name: "device permission", openErr: audio.ErrPermissionDenied, want: capture.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := &audiomock.Source{OpenErr: tt.openErr}
			h := newHarness(t, src, &fakeTranscriber{}, tt.mutate)

			err := h.sess.Start(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("Start: err = %v, want %v", err, tt.want)
			}
			if h.sess.Running() {
				t.Error("session running after failed start")
			}
			if tt.openErr != nil && src.CloseCount != 1 {
				t.Errorf("source closed %d times after failed open, want 1", src.CloseCount)
			}
		})
	}
}

func TestSession_AlreadyRunning(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &audiomock.Source{}, &fakeTranscriber{}, nil)
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.sess.Start(context.Background()); !errors.Is(err, capture.ErrAlreadyRunning) {
		t.Errorf("second Start: err = %v, want ErrAlreadyRunning", err)
	}
}

func TestSession_TranscribesUtterance(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{SampleRate: rate, Blocks: utterance(8)}
	h := newHarness(t, src, &fakeTranscriber{texts: []string{"zentra lights on"}}, nil)
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r := h.next(t)
	if r.text != "zentra lights on" {
		t.Errorf("text = %q", r.text)
	}
	// 2 pre-roll + 8 speech + 5 trailing blocks.
	if r.seg.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v, want 1.5s", r.seg.Duration)
	}
	if r.seg.Params != h.p {
		t.Error("segment does not carry the current parameter set")
	}
	if got := h.sess.Healthy(context.Background()); got != nil {
		t.Errorf("Healthy: %v", got)
	}
}

func TestSession_PostProcessingKeepsCaptureOrder(t *testing.T) {
	t.Parallel()

	blocks := append(utterance(6), utterance(7)...)
	src := &audiomock.Source{SampleRate: rate, Blocks: blocks}
	stt := &fakeTranscriber{texts: []string{"first", "second"}, gate: make(chan struct{})}
	h := newHarness(t, src, stt, nil)
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Capture drains the whole script while the first transcription is
	// still blocked.
	deadline := time.Now().Add(5 * time.Second)
	for src.Remaining() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("capture stalled behind post-processing")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(stt.gate)

	first, second := h.next(t), h.next(t)
	if first.text != "first" || second.text != "second" {
		t.Errorf("order = %q, %q", first.text, second.text)
	}
	if first.seg.Start >= second.seg.Start {
		t.Errorf("segments out of capture order: %v then %v", first.seg.Start, second.seg.Start)
	}
}

func TestSession_ResamplesForTranscription(t *testing.T) {
	t.Parallel()

	// 48 kHz device; 3x as many samples per 100 ms block.
	var blocks [][]float32
	for _, b := range utterance(8) {
		up := make([]float32, 3*len(b))
		for i := range up {
			up[i] = b[i/3]
		}
		blocks = append(blocks, up)
	}
	src := &audiomock.Source{SampleRate: 48000, Blocks: blocks}
	stt := &fakeTranscriber{texts: []string{"ok"}}
	h := newHarness(t, src, stt, func(c *capture.Config) { c.BlockSize = 3 * block })
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r := h.next(t)
	if r.seg.SampleRate != 16000 {
		t.Errorf("segment rate = %d, want 16000", r.seg.SampleRate)
	}
	stt.mu.Lock()
	defer stt.mu.Unlock()
	if stt.rates[0] != 16000 {
		t.Errorf("transcriber rate = %d, want 16000", stt.rates[0])
	}
}

func TestSession_StopTeardownOrder(t *testing.T) {
	t.Parallel()

	stopErr, closeErr := errors.New("stop failed"), errors.New("close failed")
	src := &audiomock.Source{StopErr: stopErr, CloseErr: closeErr}
	h := newHarness(t, src, &fakeTranscriber{}, nil)
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := h.sess.Stop()
	if !errors.Is(err, stopErr) || !errors.Is(err, closeErr) {
		t.Errorf("Stop: err = %v, want both teardown errors", err)
	}
	calls := src.CallLog()
	want := []string{"Open", "Stop", "Close"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
	if h.sess.Running() {
		t.Error("session still running")
	}
	if err := h.sess.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if err := h.sess.Healthy(context.Background()); err == nil {
		t.Error("stopped session reported healthy")
	}
}

func TestSession_GraphWhileStopped(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	h := newHarness(t, src, &fakeTranscriber{}, nil)

	a := params.DefaultActive()
	if err := h.sess.RebuildGraph(context.Background(), &a); err != nil {
		t.Fatalf("RebuildGraph: %v", err)
	}
	if h.sess.Current() != &a {
		t.Error("rebuild on stopped session did not store parameters")
	}
	w := params.DefaultWake()
	if err := h.sess.ApplyLiveTunables(context.Background(), &w); err != nil {
		t.Fatalf("ApplyLiveTunables: %v", err)
	}
	if h.sess.Current() != &w {
		t.Error("live update on stopped session did not store parameters")
	}
	if len(src.CallLog()) != 0 {
		t.Errorf("source touched: %v", src.CallLog())
	}
}

func TestSession_RebuildReopensSource(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	h := newHarness(t, src, &fakeTranscriber{}, nil)
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	next := *h.p
	next.EnableSpectral = true
	if err := h.sess.RebuildGraph(context.Background(), &next); err != nil {
		t.Fatalf("RebuildGraph: %v", err)
	}
	if h.sess.Current() != &next {
		t.Error("current not replaced")
	}
	if n := len(src.OpenCalls); n != 2 {
		t.Errorf("source opened %d times, want 2", n)
	}
	if err := h.sess.Healthy(context.Background()); err != nil {
		t.Errorf("Healthy after rebuild: %v", err)
	}
}

func TestSession_ApplyLiveTunables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*params.Set)
		wantOpens int
	}{
		{name: "cutoff change stays live", mutate: func(p *params.Set) { p.HighPassHz = 150 }, wantOpens: 1},
		{name: "topology change falls back to rebuild", mutate: func(p *params.Set) { p.EnablePrefilter = false }, wantOpens: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := &audiomock.Source{}
			h := newHarness(t, src, &fakeTranscriber{}, nil)
			if err := h.sess.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			next := *h.p
			tt.mutate(&next)
			if err := h.sess.ApplyLiveTunables(context.Background(), &next); err != nil {
				t.Fatalf("ApplyLiveTunables: %v", err)
			}
			if h.sess.Current() != &next {
				t.Error("current not replaced")
			}
			if n := len(src.OpenCalls); n != tt.wantOpens {
				t.Errorf("source opened %d times, want %d", n, tt.wantOpens)
			}
		})
	}
}

func TestSession_Use(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &audiomock.Source{}, &fakeTranscriber{}, nil)
	a := params.DefaultActive()
	h.sess.Use(&a)
	if h.sess.Current() != &a {
		t.Error("Use did not swap parameters")
	}
}

func TestSession_RecordsSegments(t *testing.T) {
	t.Parallel()

	rec, err := capture.NewDirRecorder(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirRecorder: %v", err)
	}
	src := &audiomock.Source{SampleRate: rate, Blocks: utterance(8)}
	h := newHarness(t, src, &fakeTranscriber{texts: []string{"x"}}, func(c *capture.Config) { c.Recorder = rec })
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r := h.next(t)
	info, err := os.Stat(rec.Path(r.seg.ID))
	if err != nil {
		t.Fatalf("recording missing: %v", err)
	}
	// 44-byte header plus 16-bit samples.
	if want := int64(44 + 2*len(r.seg.Samples)); info.Size() != want {
		t.Errorf("file size = %d, want %d", info.Size(), want)
	}
}

func TestSession_Events(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []capture.Event
	)
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, _ := observe.NewMetrics(mp)

	done := make(chan struct{})
	src := &audiomock.Source{SampleRate: rate, Blocks: utterance(8)}
	sess, err := capture.New(capture.Config{
		Source:            src,
		Transcriber:       &fakeTranscriber{texts: []string{"hi"}},
		OnTranscript:      func(context.Context, *segment.Segment, string) { close(done) },
		BlockSize:         block,
		SecureContext:     true,
		PermissionGranted: true,
	}, testParams(), capture.WithMetrics(m), capture.WithObserver(func(e capture.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = sess.Stop() })
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	var kinds []capture.EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	want := []capture.EventKind{capture.EventVAD, capture.EventVAD, capture.EventSegment, capture.EventTranscript}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
}

// rumble is n blocks of a 20 Hz hum, well below the default high-pass
// cutoff but loud enough to pass the amplitude gate unfiltered.
func rumble(n int) [][]float32 {
	blocks := make([][]float32, n)
	for b := range blocks {
		out := make([]float32, block)
		for i := range out {
			t := float64(b*block+i) / rate
			out[i] = float32(0.1 * math.Sin(2*math.Pi*20*t))
		}
		blocks[b] = out
	}
	return blocks
}

func TestSession_PrefilterGatesOnFilteredSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		prefilter bool
		want      time.Duration
	}{
		// Only the utterance survives: 2 pre-roll + 8 speech + 5 trailing.
		{name: "rumble removed by high-pass", prefilter: true, want: 1500 * time.Millisecond},
		// The rumble itself opens a segment: 2 pre-roll + 10 rumble + 5 trailing.
		{name: "rumble passes without prefilter", prefilter: false, want: 1700 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var blocks [][]float32
			for range 3 {
				blocks = append(blocks, silence())
			}
			blocks = append(blocks, rumble(10)...)
			for range 6 {
				blocks = append(blocks, silence())
			}
			blocks = append(blocks, utterance(8)...)

			p := testParams()
			p.EnablePrefilter = tt.prefilter
			p.HighPassHz = 100

			results := make(chan *segment.Segment, 4)
			sess, err := capture.New(capture.Config{
				Source:      &audiomock.Source{SampleRate: rate, Blocks: blocks},
				Transcriber: &fakeTranscriber{texts: []string{"first", "second"}},
				OnTranscript: func(_ context.Context, seg *segment.Segment, _ string) {
					results <- seg
				},
				BlockSize:         block,
				SecureContext:     true,
				PermissionGranted: true,
			}, p)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			t.Cleanup(func() { _ = sess.Stop() })
			if err := sess.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}

			select {
			case seg := <-results:
				if seg.Duration != tt.want {
					t.Errorf("first segment duration = %v, want %v", seg.Duration, tt.want)
				}
				if tt.prefilter && seg.RMS < 0.05 {
					t.Errorf("first segment rms = %v, want the speech level", seg.RMS)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("timed out waiting for a segment")
			}
		})
	}
}
