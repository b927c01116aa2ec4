// Command zentra is the entry point for the Zentra hands-free voice
// assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MrWong99/zentra/internal/app"
	"github.com/MrWong99/zentra/internal/config"
	"github.com/MrWong99/zentra/internal/observe"
	"github.com/MrWong99/zentra/pkg/audio/portaudio"
	"github.com/MrWong99/zentra/pkg/provider/command"
	"github.com/MrWong99/zentra/pkg/provider/command/a2a"
	"github.com/MrWong99/zentra/pkg/provider/command/chat"
	"github.com/MrWong99/zentra/pkg/provider/cue"
	"github.com/MrWong99/zentra/pkg/provider/stt"
	"github.com/MrWong99/zentra/pkg/provider/stt/deepgram"
	sttopenai "github.com/MrWong99/zentra/pkg/provider/stt/openai"
	"github.com/MrWong99/zentra/pkg/provider/stt/whisper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "zentra.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload profiles and log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "zentra: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "zentra: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("zentra starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "zentra", ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	opts := []app.Option{
		app.WithTelemetry(tel),
		app.WithLogLevel(level),
	}
	if *watch {
		opts = append(opts, app.WithConfigWatch(*configPath))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("listening for the wake word, press Ctrl+C to shut down", "wake_word", cfg.WakeWord)

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires every provider that ships with Zentra into
// reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.Option("model_path")
		}
		var opts []whisper.NativeOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(entry.Language))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Language != "" {
			opts = append(opts, sttopenai.WithLanguage(entry.Language))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Command sinks ─────────────────────────────────────────────────────────

	reg.RegisterCommand("log", func(config.ProviderEntry) (command.Sink, error) {
		return &command.LogSink{}, nil
	})

	reg.RegisterCommand("a2a", func(entry config.ProviderEntry) (command.Sink, error) {
		var opts []a2a.Option
		if token := entry.Option("auth_token"); token != "" {
			opts = append(opts, a2a.WithAuthToken(token))
		}
		return a2a.New(entry.BaseURL, opts...)
	})

	reg.RegisterCommand("chat", func(entry config.ProviderEntry) (command.Sink, error) {
		var opts []chat.Option
		if entry.BaseURL != "" {
			opts = append(opts, chat.WithBaseURL(entry.BaseURL))
		}
		if p := entry.Option("system_prompt"); p != "" {
			opts = append(opts, chat.WithSystemPrompt(p))
		}
		if v := entry.Option("history"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("chat: option history: %w", err)
			}
			opts = append(opts, chat.WithHistory(n))
		}
		if v := entry.Option("max_tokens"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("chat: option max_tokens: %w", err)
			}
			opts = append(opts, chat.WithMaxTokens(n))
		}
		return chat.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Cues ──────────────────────────────────────────────────────────────────

	reg.RegisterCue("portaudio", func(config.ProviderEntry) (cue.Player, error) {
		return portaudio.NewPlayer(), nil
	})

	reg.RegisterCue("none", func(config.ProviderEntry) (cue.Player, error) {
		return cue.Nop{}, nil
	})
}

// buildProviders instantiates every provider named in cfg and opens the
// configured microphone.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{
		Source: portaudio.NewCapture(portaudio.WithDevice(cfg.Capture.Device)),
	}

	p, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.STT = p
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	if name := cfg.Providers.STTFallback.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STTFallback)
		if err != nil {
			// The primary still works; run without a fallback.
			slog.Warn("fallback stt provider unavailable", "name", name, "err", err)
		} else {
			ps.STTFallback = p
			slog.Info("provider created", "kind", "stt_fallback", "name", name)
		}
	}

	sink, err := reg.CreateCommand(cfg.Providers.Command)
	if err != nil {
		return nil, fmt.Errorf("create command sink %q: %w", cfg.Providers.Command.Name, err)
	}
	ps.Command = sink
	slog.Info("provider created", "kind", "command", "name", cfg.Providers.Command.Name)

	player, err := reg.CreateCue(cfg.Providers.Cue)
	if err != nil {
		slog.Warn("cue player unavailable, cues disabled", "name", cfg.Providers.Cue.Name, "err", err)
		player = cue.Nop{}
	}
	ps.Cue = player

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Zentra — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Wake word", cfg.WakeWord)
	printRow("Device", orDefault(cfg.Capture.Device, "(default)"))
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("STT fallback", cfg.Providers.STTFallback.Name, cfg.Providers.STTFallback.Model)
	printProvider("Command", cfg.Providers.Command.Name, cfg.Providers.Command.Model)
	printProvider("Cue", cfg.Providers.Cue.Name, "")
	printRow("Journal", orDefault(cfg.Journal.Path, "(disabled)"))
	printRow("Recordings", orDefault(cfg.Recordings.Dir, "(disabled)"))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
