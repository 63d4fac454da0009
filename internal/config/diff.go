package config

import "reflect"

// ConfigDiff describes what changed between two configs. The app layer uses
// it to decide which subsystems to rebuild after a hot reload.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PasteChanged is true when the paste timing values differ.
	PasteChanged bool

	// ProvidersChanged lists provider kinds ("chat", "stt", "embeddings")
	// whose entry changed in any field.
	ProvidersChanged []string

	// RestartRequired is set for changes that cannot be applied hot.
	// Currently: the listen address and any history storage settings.
	RestartRequired bool
}

// Empty reports whether the diff carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.PasteChanged && !d.RestartRequired && len(d.ProvidersChanged) == 0
}

// Diff compares two configs and returns what changed between them.
func Diff(prev, next *Config) ConfigDiff {
	d := ConfigDiff{}

	if prev.Server.LogLevel != next.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = next.Server.LogLevel
	}

	if prev.Paste != next.Paste {
		d.PasteChanged = true
	}

	if !entryEqual(prev.Providers.Chat, next.Providers.Chat) {
		d.ProvidersChanged = append(d.ProvidersChanged, "chat")
	}
	if !entryEqual(prev.Providers.STT, next.Providers.STT) {
		d.ProvidersChanged = append(d.ProvidersChanged, "stt")
	}
	if !entryEqual(prev.Providers.Embeddings, next.Providers.Embeddings) {
		d.ProvidersChanged = append(d.ProvidersChanged, "embeddings")
	}

	if prev.Server.ListenAddr != next.Server.ListenAddr {
		d.RestartRequired = true
	}
	if prev.History != next.History {
		d.RestartRequired = true
	}

	return d
}

// entryEqual compares two provider entries including their Options maps.
func entryEqual(prev, next ProviderEntry) bool {
	if prev.Name != next.Name || prev.APIKey != next.APIKey || prev.BaseURL != next.BaseURL || prev.Model != next.Model {
		return false
	}
	return reflect.DeepEqual(prev.Options, next.Options)
}
