package config_test

import (
	"testing"

	"github.com/MrWong99/voxmerge/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.RestartRequired() {
		t.Error("expected RestartRequired=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.RestartRequired() {
		t.Error("log level change should not require a restart")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.ConfigDiff) bool
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":1" }, func(d config.ConfigDiff) bool { return d.ListenAddrChanged }},
		{"listener buffer", func(c *config.Config) { c.Server.ListenerBuffer = 1 }, func(d config.ConfigDiff) bool { return d.ListenAddrChanged }},
		{"sample rate", func(c *config.Config) { c.Audio.SampleRate = 8000 }, func(d config.ConfigDiff) bool { return d.AudioChanged }},
		{"max streams", func(c *config.Config) { c.Audio.MaxStreams = 3 }, func(d config.ConfigDiff) bool { return d.AudioChanged }},
		{"recording", func(c *config.Config) { c.Recording.Path = "x.wav" }, func(d config.ConfigDiff) bool { return d.RecordingChanged }},
		{"telemetry", func(c *config.Config) { c.Telemetry.ServiceName = "x" }, func(d config.ConfigDiff) bool { return d.TelemetryChanged }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := config.Default(), config.Default()
			tc.mutate(new)
			d := config.Diff(old, new)
			if !tc.check(d) {
				t.Errorf("change not reported: %+v", d)
			}
			if !d.RestartRequired() {
				t.Error("expected RestartRequired=true")
			}
			if d.LogLevelChanged {
				t.Error("unexpected LogLevelChanged")
			}
		})
	}
}
