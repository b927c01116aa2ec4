package config_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/zentra/internal/config"
	"github.com/MrWong99/zentra/internal/params"
	"github.com/MrWong99/zentra/pkg/audio"
	"github.com/MrWong99/zentra/pkg/provider/command"
	"github.com/MrWong99/zentra/pkg/provider/cue"
	"github.com/MrWong99/zentra/pkg/provider/stt"
)

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
wake_word: Nova
capture:
  device: "USB Mic"
  block_size: 2048
profiles:
  wake:
    silence_ms: 1500
    spectral_gate: false
  active:
    min_segment_seconds: 0.3
providers:
  stt:
    name: whisper-native
    model: /models/ggml-tiny.bin
    language: en
  stt_fallback:
    name: whisper
    base_url: http://localhost:8081
  command:
    name: a2a
    base_url: http://localhost:10000
    options:
      auth_token: secret
  cue:
    name: portaudio
journal:
  path: /var/lib/zentra/journal.jsonl
`

func load(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()

	cfg := load(t, sampleYAML)

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.WakeWord != "Nova" {
		t.Errorf("wake_word = %q", cfg.WakeWord)
	}
	if cfg.Capture.Device != "USB Mic" || cfg.Capture.BlockSize != 2048 {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	// Omitted capture fields keep their defaults.
	if cfg.Capture.QueueDepth != 32 || !cfg.Capture.SecureContext || !cfg.Capture.PermissionGranted {
		t.Errorf("capture defaults lost: %+v", cfg.Capture)
	}
	if got := cfg.Providers.Command.Option("auth_token"); got != "secret" {
		t.Errorf("auth_token = %q", got)
	}
	if cfg.Providers.STT.Language != "en" {
		t.Errorf("stt.language = %q", cfg.Providers.STT.Language)
	}
	if cfg.Journal.Path == "" {
		t.Error("journal path lost")
	}
}

func TestLoadFromReader_ProfilesMergeWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := load(t, sampleYAML)
	wake, active := cfg.Profiles.Sets()

	want := params.DefaultWake()
	want.SilenceMs = 1500
	want.EnableSpectral = false
	want.BiasPrompt = params.DefaultBiasPrompt("Nova")
	if *wake != want {
		t.Errorf("wake profile = %+v\nwant %+v", *wake, want)
	}

	if active.Name != "active" || active.MinSegSeconds != 0.3 || active.SilenceMs != 1200 {
		t.Errorf("active profile = %+v", *active)
	}
	if !strings.HasPrefix(active.BiasPrompt, "Nova, ") {
		t.Errorf("active bias prompt = %q", active.BiasPrompt)
	}

	// Sets hands out copies.
	wake.SilenceMs = 1
	if cfg.Profiles.Wake.SilenceMs != 1500 {
		t.Error("Sets returned shared storage")
	}
}

func TestLoadFromReader_Minimal(t *testing.T) {
	t.Parallel()

	cfg := load(t, "providers:\n  stt:\n    name: whisper\n")
	if cfg.WakeWord != params.DefaultWakeWord {
		t.Errorf("wake_word = %q", cfg.WakeWord)
	}
	if cfg.Providers.Command.Name != "log" || cfg.Providers.Cue.Name != "none" {
		t.Errorf("provider defaults = %+v", cfg.Providers)
	}
	if cfg.Profiles.Wake.BiasPrompt != params.DefaultBiasPrompt(params.DefaultWakeWord) {
		t.Errorf("bias prompt = %q", cfg.Profiles.Wake.BiasPrompt)
	}
}

func TestLoadFromReader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantSub []string
	}{
		{
			name:    "unknown field",
			doc:     "bogus: 1\nproviders:\n  stt:\n    name: whisper\n",
			wantSub: []string{"bogus"},
		},
		{
			name:    "missing stt",
			doc:     "wake_word: Zentra\n",
			wantSub: []string{"providers.stt.name is required"},
		},
		{
			name: "collects every problem",
			doc: `
server:
  log_level: loud
capture:
  block_size: 0
  queue_depth: -1
profiles:
  wake:
    fft_size: 1000
providers:
  stt:
    name: whisper
  command:
    name: a2a
`,
			wantSub: []string{
				"server.log_level",
				"capture.block_size",
				"capture.queue_depth",
				"profiles.wake: fft_size",
				"providers.command.base_url",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			for _, sub := range tt.wantSub {
				if !strings.Contains(err.Error(), sub) {
					t.Errorf("error %q does not mention %q", err, sub)
				}
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level config.LogLevel
		valid bool
		slog  slog.Level
	}{
		{config.LogDebug, true, slog.LevelDebug},
		{config.LogInfo, true, slog.LevelInfo},
		{config.LogWarn, true, slog.LevelWarn},
		{config.LogError, true, slog.LevelError},
		{"verbose", false, slog.LevelInfo},
		{"", false, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.level.IsValid(); got != tt.valid {
			t.Errorf("%q.IsValid() = %v", tt.level, got)
		}
		if got := tt.level.Slog(); got != tt.slog {
			t.Errorf("%q.Slog() = %v", tt.level, got)
		}
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

type nopSTT struct{ entry config.ProviderEntry }

func (nopSTT) Transcribe(context.Context, stt.Request) (stt.Result, error) {
	return stt.Result{}, nil
}

type nopCue struct{}

func (nopCue) Play(context.Context, audio.Tone) error { return nil }

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterSTT("fake", func(e config.ProviderEntry) (stt.Provider, error) {
		return nopSTT{entry: e}, nil
	})
	reg.RegisterCommand("log", func(config.ProviderEntry) (command.Sink, error) {
		return &command.LogSink{}, nil
	})
	reg.RegisterCue("broken", func(config.ProviderEntry) (cue.Player, error) {
		return nil, errors.New("no device")
	})
	reg.RegisterCue("quiet", func(config.ProviderEntry) (cue.Player, error) {
		return nopCue{}, nil
	})

	p, err := reg.CreateSTT(config.ProviderEntry{Name: "fake", Model: "m"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p.(nopSTT).entry.Model != "m" {
		t.Error("factory did not receive the entry")
	}
	if _, err := reg.CreateCommand(config.ProviderEntry{Name: "log"}); err != nil {
		t.Errorf("CreateCommand: %v", err)
	}
	if _, err := reg.CreateCue(config.ProviderEntry{Name: "quiet"}); err != nil {
		t.Errorf("CreateCue: %v", err)
	}

	_, err = reg.CreateSTT(config.ProviderEntry{Name: "missing"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("missing stt err = %v", err)
	}
	if !strings.Contains(err.Error(), `stt/"missing"`) {
		t.Errorf("err = %q, want kind and name", err)
	}
	_, err = reg.CreateCue(config.ProviderEntry{Name: "broken"})
	if err == nil || errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("broken cue err = %v", err)
	}
}
