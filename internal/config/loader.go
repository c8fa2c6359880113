package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxmerge/pkg/audio/mixer"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the defaults.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenerBuffer < 0 {
		errs = append(errs, fmt.Errorf("server.listener_buffer %d must not be negative", cfg.Server.ListenerBuffer))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkSamples <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_samples %d must be positive", cfg.Audio.ChunkSamples))
	}
	if cfg.Audio.SampleRate > 0 && cfg.Audio.ChunkSamples > 0 && cfg.Audio.Layout().Period() <= 0 {
		errs = append(errs, fmt.Errorf("audio: chunk_samples %d at sample_rate %d gives a zero period",
			cfg.Audio.ChunkSamples, cfg.Audio.SampleRate))
	}
	if cfg.Audio.MaxStreams < 0 || cfg.Audio.MaxStreams > mixer.MaxStreams {
		errs = append(errs, fmt.Errorf("audio.max_streams %d is out of range [0, %d]", cfg.Audio.MaxStreams, mixer.MaxStreams))
	}

	return errors.Join(errs...)
}
