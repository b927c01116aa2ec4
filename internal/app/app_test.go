package app_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/zentra/internal/app"
	"github.com/MrWong99/zentra/internal/config"
	"github.com/MrWong99/zentra/internal/journal"
	"github.com/MrWong99/zentra/internal/mode"
	"github.com/MrWong99/zentra/internal/observe"
	"github.com/MrWong99/zentra/internal/status"
	audiomock "github.com/MrWong99/zentra/pkg/audio/mock"
	commandmock "github.com/MrWong99/zentra/pkg/provider/command/mock"
	"github.com/MrWong99/zentra/pkg/provider/cue"
	cuemock "github.com/MrWong99/zentra/pkg/provider/cue/mock"
	sttmock "github.com/MrWong99/zentra/pkg/provider/stt/mock"
)

const (
	rate  = 16000
	block = 1600
)

const testYAML = `
server:
  listen_addr: ""
wake_word: Zentra
capture:
  block_size: 1600
profiles:
  wake: &fast
    silence_ms: 300
    preroll_ms: 200
    postroll_ms: 100
    min_segment_seconds: 0.5
    spectral_gate: false
  active: *fast
providers:
  stt:
    name: mock
`

func silence() []float32 { return make([]float32, block) }

func speech() []float32 {
	out := make([]float32, block)
	for i := range out {
		out[i] = float32(0.2 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	return out
}

func utterances(n int) [][]float32 {
	var blocks [][]float32
	for range n {
		for range 3 {
			blocks = append(blocks, silence())
		}
		for range 6 {
			blocks = append(blocks, speech())
		}
		for range 6 {
			blocks = append(blocks, silence())
		}
	}
	return blocks
}

type fixture struct {
	app     *app.App
	cfg     *config.Config
	src     *audiomock.Source
	stt     *sttmock.Provider
	sink    *commandmock.Sink
	cues    *cuemock.Player
	journal string
}

func newFixture(t *testing.T, texts ...string) *fixture {
	t.Helper()

	cfg, err := config.LoadFromReader(strings.NewReader(testYAML))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	f := &fixture{
		cfg:     cfg,
		src:     &audiomock.Source{SampleRate: rate, Blocks: utterances(len(texts))},
		stt:     &sttmock.Provider{},
		sink:    &commandmock.Sink{},
		cues:    &cuemock.Player{},
		journal: filepath.Join(t.TempDir(), "journal.jsonl"),
	}
	for _, s := range texts {
		f.stt.Responses = append(f.stt.Responses, sttmock.Response{Text: s})
	}
	cfg.Journal.Path = f.journal

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	a, err := app.New(context.Background(), cfg, &app.Providers{
		Source:  f.src,
		STT:     f.stt,
		Command: f.sink,
		Cue:     f.cues,
	}, app.WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	f.app = a
	return f
}

// run starts the app and returns a function that stops it and reports
// Run's error.
func (f *fixture) run(t *testing.T) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.app.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-errc:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return")
			return nil
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	full := app.Providers{Source: &audiomock.Source{}, STT: &sttmock.Provider{}, Command: &commandmock.Sink{}}

	tests := []struct {
		name   string
		mutate func(p *app.Providers)
	}{
		{"source", func(p *app.Providers) { p.Source = nil }},
		{"stt", func(p *app.Providers) { p.STT = nil }},
		{"command", func(p *app.Providers) { p.Command = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := full
			tt.mutate(&p)
			if _, err := app.New(context.Background(), cfg, &p); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApp_WakeThenCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "Zentra", "turn on the lights")

	srv := httptest.NewServer(f.app.Handler())
	t.Cleanup(srv.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/status", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var snap status.Message
	if err := wsjson.Read(ctx, conn, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Type != status.TypeSnapshot || snap.Mode != "wake" {
		t.Errorf("snapshot = %+v", snap)
	}

	stop := f.run(t)

	// Follow the feed until the command arrives.
	var types []string
	for {
		var m status.Message
		if err := wsjson.Read(ctx, conn, &m); err != nil {
			t.Fatalf("read after %v: %v", types, err)
		}
		types = append(types, m.Type)
		if m.Type == status.TypeCommand {
			if m.Text != "turn on the lights" || m.Error != "" {
				t.Errorf("command event = %+v", m)
			}
			break
		}
	}
	for _, want := range []string{status.TypeVAD, status.TypeSegment, status.TypeTranscript, status.TypeMode} {
		if !slices.Contains(types, want) {
			t.Errorf("feed %v lacks %q", types, want)
		}
	}

	if got := f.sink.Commands(); !slices.Equal(got, []string{"turn on the lights"}) {
		t.Errorf("commands = %q", got)
	}
	waitFor(t, "mode back to wake", func() bool { return f.app.Controller().Mode() == mode.Wake })
	if tones := f.cues.Tones(); len(tones) != 1 || tones[0] != cue.Success {
		t.Errorf("cues = %+v, want one success tone", tones)
	}

	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}

	j, _ := journal.Open(f.journal)
	waitFor(t, "journal entries", func() bool {
		entries, _ := j.Recent(10)
		return len(entries) >= 5
	})
	entries, _ := j.Recent(10)
	kinds := map[string]int{}
	for _, e := range entries {
		kinds[e.Kind]++
		if e.Kind == journal.KindTranscript && e.Text == "Zentra" && (!e.Fuzzy || !e.StrictFirst) {
			t.Errorf("wake transcript entry = %+v", e)
		}
		if e.Kind == journal.KindTranscript && e.Text == "turn on the lights" && e.Command != e.Text {
			t.Errorf("command transcript entry = %+v", e)
		}
	}
	if kinds[journal.KindTranscript] != 2 || kinds[journal.KindMode] != 2 || kinds[journal.KindCommand] != 1 {
		t.Errorf("journal kinds = %v", kinds)
	}
}

func TestApp_Readiness(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := f.app.Handler()

	probe := func() int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return rec.Code
	}

	if code := probe(); code != http.StatusServiceUnavailable {
		t.Errorf("readyz before Run = %d, want 503", code)
	}
	stop := f.run(t)
	waitFor(t, "ready", func() bool { return probe() == http.StatusOK })
	_ = stop()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
}

func TestApp_JournalEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	h := f.app.Handler()

	tests := []struct {
		query string
		code  int
		body  string
	}{
		{query: "", code: http.StatusOK, body: "[]"},
		{query: "?n=3", code: http.StatusOK, body: "[]"},
		{query: "?n=zero", code: http.StatusBadRequest},
		{query: "?n=-1", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/journal"+tt.query, nil))
		if rec.Code != tt.code {
			t.Errorf("GET /journal%s = %d, want %d", tt.query, rec.Code, tt.code)
		}
		if tt.body != "" && strings.TrimSpace(rec.Body.String()) != tt.body {
			t.Errorf("GET /journal%s body = %q", tt.query, rec.Body.String())
		}
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	next, err := config.LoadFromReader(strings.NewReader(testYAML))
	if err != nil {
		t.Fatal(err)
	}
	next.Journal.Path = f.journal
	next.Profiles.Wake.VADRMS = 0.05

	f.app.ApplyConfig(context.Background(), f.cfg, next)

	cur := f.app.Controller().Current()
	if cur.VADRMS != 0.05 || cur.Name != "wake" {
		t.Errorf("current after reload = %+v", cur)
	}
	if f.app.Session().Current() != cur {
		t.Error("session not switched to the reloaded profile")
	}
}
