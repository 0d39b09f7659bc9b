package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (listen address, learned backend, translation backends) needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CharactersChanged is set when the database path moved. The session
	// reloads from the new path.
	CharactersChanged bool

	// PipelineChanged is set when any threshold of the similarity engine,
	// resolver, speaker state, cutscene detector or cache sizing changed.
	// Applying it reconfigures the session, which clears the cache and
	// speaker state.
	PipelineChanged bool

	// RetryChanged is set when the retry policy or target language changed.
	RetryChanged bool

	// RestartRequired lists top-level sections whose changes are ignored
	// until restart.
	RestartRequired []string
}

// IsZero reports whether d carries no changes.
func (d ConfigDiff) IsZero() bool {
	return !d.LogLevelChanged && !d.CharactersChanged && !d.PipelineChanged &&
		!d.RetryChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.CharactersChanged = old.Characters.Path != new.Characters.Path

	d.PipelineChanged = old.Similarity != new.Similarity ||
		old.Speakers != new.Speakers ||
		old.Cutscene != new.Cutscene ||
		old.Cache != new.Cache ||
		old.Learned.MinConfidence != new.Learned.MinConfidence

	ot, nt := old.Translate, new.Translate
	d.RetryChanged = ot.TargetLanguage != nt.TargetLanguage ||
		ot.MaxAttempts != nt.MaxAttempts ||
		ot.BaseTemperature != nt.BaseTemperature ||
		ot.TemperatureStep != nt.TemperatureStep ||
		ot.BaseTopP != nt.BaseTopP ||
		ot.TopPStep != nt.TopPStep

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.LogFile != new.Server.LogFile ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Characters.ReloadInterval != new.Characters.ReloadInterval {
		d.RestartRequired = append(d.RestartRequired, "characters.reload_interval")
	}
	if old.Learned.Backend != new.Learned.Backend ||
		old.Learned.DSN != new.Learned.DSN ||
		old.Learned.FlushInterval != new.Learned.FlushInterval {
		d.RestartRequired = append(d.RestartRequired, "learned")
	}
	if ot.Breaker != nt.Breaker || !slices.Equal(ot.Backends, nt.Backends) {
		d.RestartRequired = append(d.RestartRequired, "translate.backends")
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
