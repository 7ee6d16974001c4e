package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider
// credentials and server settings require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// JobsChanged is true when the concurrency bound or budget defaults
	// changed.
	JobsChanged bool

	// TranslationChanged is true when the cascade grid or the fallback
	// provider changed.
	TranslationChanged bool
}

// Any reports whether the diff contains any change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.JobsChanged || d.TranslationChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Job execution bounds
	if old.Jobs != new.Jobs {
		d.JobsChanged = true
	}

	// Translation cascade grid and fallback
	if !slices.Equal(old.Translation.Regions, new.Translation.Regions) ||
		!slices.Equal(old.Translation.Models, new.Translation.Models) {
		d.TranslationChanged = true
	}
	if old.Translation.Fallback.Name != new.Translation.Fallback.Name ||
		old.Translation.Fallback.Model != new.Translation.Fallback.Model {
		d.TranslationChanged = true
	}

	return d
}
