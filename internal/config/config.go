// Package config provides the configuration schema, loader and file watcher
// for the voxmerge server.
package config

import (
	"log/slog"

	"github.com/MrWong99/voxmerge/pkg/audio"
)

// LogLevel controls log verbosity for the voxmerge server.
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

// Level maps l to its [slog.Level]. Unknown values map to [slog.LevelInfo].
func (l LogLevel) Level() slog.Level {
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

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultListenerBuffer = 64
	DefaultServiceName    = "voxmerge"
)

// Config is the root configuration structure for voxmerge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Recording RecordingConfig `yaml:"recording"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP server serving health,
	// metrics and the websocket endpoints (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// ListenerBuffer is the number of merged chunks queued per websocket
	// listener before chunks are dropped for it.
	ListenerBuffer int `yaml:"listener_buffer"`
}

// AudioConfig fixes the PCM layout of every stream and the stream limit.
// Changes require a restart.
type AudioConfig struct {
	// SampleRate in Hz. Defaults to 44100.
	SampleRate int `yaml:"sample_rate"`

	// ChunkSamples is the number of samples per chunk. Defaults to 1024.
	ChunkSamples int `yaml:"chunk_samples"`

	// MaxStreams caps concurrently registered streams. 0 means the mixer's
	// hard limit.
	MaxStreams int `yaml:"max_streams"`
}

// Layout returns the audio layout described by c.
func (c AudioConfig) Layout() audio.Layout {
	return audio.Layout{SampleRate: c.SampleRate, ChunkSamples: c.ChunkSamples}
}

// RecordingConfig configures the optional WAV recording of the merged output.
type RecordingConfig struct {
	// Path of the WAV file. Empty disables recording.
	Path string `yaml:"path"`
}

// Enabled reports whether a recording path is configured.
func (c RecordingConfig) Enabled() bool { return c.Path != "" }

// TelemetryConfig sets the identity reported by metrics and traces.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ListenerBuffer == 0 {
		cfg.Server.ListenerBuffer = DefaultListenerBuffer
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = audio.DefaultSampleRate
	}
	if cfg.Audio.ChunkSamples == 0 {
		cfg.Audio.ChunkSamples = audio.DefaultChunkSamples
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
