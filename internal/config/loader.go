package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/zentra/internal/params"
)

// ValidProviderNames lists the built-in provider names per kind. [Validate]
// warns about names outside this list; they may still be registered by the
// caller.
var ValidProviderNames = map[string][]string{
	"stt":     {"whisper", "whisper-native", "openai", "deepgram"},
	"command": {"log", "a2a", "chat"},
	"cue":     {"portaudio", "none"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of [Default], fills derived
// defaults and validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	finish(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish restores names and derives the bias prompt from the wake word.
func finish(cfg *Config) {
	cfg.Profiles.Wake.Name = "wake"
	cfg.Profiles.Active.Name = "active"
	if cfg.WakeWord == "" {
		cfg.WakeWord = params.DefaultWakeWord
	}
	prompt := params.DefaultBiasPrompt(cfg.WakeWord)
	if cfg.Profiles.Wake.BiasPrompt == "" {
		cfg.Profiles.Wake.BiasPrompt = prompt
	}
	if cfg.Profiles.Active.BiasPrompt == "" {
		cfg.Profiles.Active.BiasPrompt = prompt
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.WakeWord == "" {
		errs = append(errs, errors.New("wake_word is required"))
	}

	if cfg.Capture.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("capture.block_size must be positive, got %d", cfg.Capture.BlockSize))
	}
	if cfg.Capture.QueueDepth <= 0 {
		errs = append(errs, fmt.Errorf("capture.queue_depth must be positive, got %d", cfg.Capture.QueueDepth))
	}

	if err := cfg.Profiles.Wake.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("profiles.%w", err))
	}
	if err := cfg.Profiles.Active.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("profiles.%w", err))
	}

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if fb := cfg.Providers.STTFallback; fb.Name != "" && fb.sameBackend(cfg.Providers.STT) {
		slog.Warn("providers.stt_fallback points at the same backend as providers.stt", "name", fb.Name)
	}
	if cfg.Providers.Command.Name == "a2a" && cfg.Providers.Command.BaseURL == "" {
		errs = append(errs, errors.New("providers.command.base_url is required for the a2a sink"))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STTFallback.Name)
	validateProviderName("command", cfg.Providers.Command.Name)
	validateProviderName("cue", cfg.Providers.Cue.Name)

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
