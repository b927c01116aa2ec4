package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only log level and
// profile changes are applied while running; everything listed in Restart
// needs a process restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	WakeChanged   bool
	ActiveChanged bool

	// Restart names the top-level sections whose changes are ignored until
	// the next start.
	Restart []string
}

// ProfilesChanged reports whether either parameter profile differs.
func (d ConfigDiff) ProfilesChanged() bool { return d.WakeChanged || d.ActiveChanged }

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.WakeChanged = old.Profiles.Wake != new.Profiles.Wake
	d.ActiveChanged = old.Profiles.Active != new.Profiles.Active

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.Restart = append(d.Restart, "server.listen_addr")
	}
	if old.WakeWord != new.WakeWord {
		d.Restart = append(d.Restart, "wake_word")
	}
	if old.Capture != new.Capture {
		d.Restart = append(d.Restart, "capture")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.Restart = append(d.Restart, "providers")
	}
	if old.Journal != new.Journal {
		d.Restart = append(d.Restart, "journal")
	}
	if old.Recordings != new.Recordings {
		d.Restart = append(d.Restart, "recordings")
	}
	return d
}

func sameProviders(a, b ProvidersConfig) bool {
	return sameEntry(a.STT, b.STT) &&
		sameEntry(a.STTFallback, b.STTFallback) &&
		sameEntry(a.Command, b.Command) &&
		sameEntry(a.Cue, b.Cue)
}

func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL ||
		a.Model != b.Model || a.Language != b.Language {
		return false
	}
	if len(a.Options) == 0 && len(b.Options) == 0 {
		return true
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
