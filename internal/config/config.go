// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the Zentra assistant.
package config

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/zentra/internal/params"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to a [slog.Level]. Unknown and empty levels map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader], which start from [Default].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	WakeWord   string           `yaml:"wake_word"`
	Capture    CaptureConfig    `yaml:"capture"`
	Profiles   ProfilesConfig   `yaml:"profiles"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Journal    JournalConfig    `yaml:"journal"`
	Recordings RecordingsConfig `yaml:"recordings"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr serves health, metrics and the status feed. Empty disables
	// the listener.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig selects the microphone and sizes the frame pipeline.
type CaptureConfig struct {
	// Device is the input device name. Empty selects the system default.
	Device string `yaml:"device"`

	// BlockSize is the number of samples per frame.
	BlockSize int `yaml:"block_size"`

	// QueueDepth bounds the frame channel between device and consumer.
	QueueDepth int `yaml:"queue_depth"`

	// SecureContext and PermissionGranted are checked before capture starts.
	SecureContext     bool `yaml:"secure_context"`
	PermissionGranted bool `yaml:"permission_granted"`
}

// ProfilesConfig holds the per-mode parameter sets. Fields omitted from YAML
// keep their built-in defaults.
type ProfilesConfig struct {
	Wake   params.Set `yaml:"wake"`
	Active params.Set `yaml:"active"`
}

// Sets returns independent copies of both profiles.
func (p ProfilesConfig) Sets() (wake, active *params.Set) {
	w, a := p.Wake, p.Active
	return &w, &a
}

// ProvidersConfig declares which implementation backs each collaborator.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`

	// STTFallback is tried when STT fails or its breaker is open. Optional.
	STTFallback ProviderEntry `yaml:"stt_fallback"`

	Command ProviderEntry `yaml:"command"`
	Cue     ProviderEntry `yaml:"cue"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
// Name selects the constructor in the [Registry].
type ProviderEntry struct {
	Name     string `yaml:"name"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// Option returns Options[key] formatted as a string, or "" when absent.
func (e ProviderEntry) Option(key string) string {
	switch v := e.Options[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (e ProviderEntry) sameBackend(o ProviderEntry) bool {
	return e.Name == o.Name && e.BaseURL == o.BaseURL && e.Model == o.Model
}

// JournalConfig enables the utterance journal.
type JournalConfig struct {
	// Path is the JSON-lines file. Empty disables the journal.
	Path string `yaml:"path"`
}

// RecordingsConfig enables WAV dumps of leveled segments.
type RecordingsConfig struct {
	// Dir receives one file per segment. Empty disables recording.
	Dir string `yaml:"dir"`
}

// Default returns the configuration used for every field the YAML omits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8090",
			LogLevel:   LogInfo,
		},
		WakeWord: params.DefaultWakeWord,
		Capture: CaptureConfig{
			BlockSize:         4096,
			QueueDepth:        32,
			SecureContext:     true,
			PermissionGranted: true,
		},
		Profiles: ProfilesConfig{
			Wake:   params.DefaultWake(),
			Active: params.DefaultActive(),
		},
		Providers: ProvidersConfig{
			Command: ProviderEntry{Name: "log"},
			Cue:     ProviderEntry{Name: "none"},
		},
	}
}
