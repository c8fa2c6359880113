package config

// ConfigDiff describes what changed between two configs.
// Only the log level can be applied without a restart; the remaining flags
// let the caller warn that a change was ignored.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ListenAddrChanged bool
	AudioChanged      bool
	RecordingChanged  bool
	TelemetryChanged  bool
}

// RestartRequired reports whether the diff contains changes that only take
// effect after a restart.
func (d ConfigDiff) RestartRequired() bool {
	return d.ListenAddrChanged || d.AudioChanged || d.RecordingChanged || d.TelemetryChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.ListenAddrChanged = old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.ListenerBuffer != new.Server.ListenerBuffer
	d.AudioChanged = old.Audio != new.Audio
	d.RecordingChanged = old.Recording != new.Recording
	d.TelemetryChanged = old.Telemetry != new.Telemetry

	return d
}
