// Package config defines the lodestar.yaml configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a lodestar.yaml configuration file.
type Config struct {
	Version int            `yaml:"version" json:"version"`
	Socket  string         `yaml:"socket,omitempty" json:"socket,omitempty"`
	Metrics MetricsConfig  `yaml:"metrics" json:"metrics"`
	Stream  StreamConfig   `yaml:"stream" json:"stream"`
	Logs    LogsConfig     `yaml:"logs" json:"logs"`
	Host    HostConfig     `yaml:"host" json:"host"`
	Sources []SourceConfig `yaml:"sources" json:"sources"`
}

// MetricsConfig sizes the in-memory metric buffers.
type MetricsConfig struct {
	Capacity  int      `yaml:"capacity,omitempty" json:"capacity,omitempty"`
	MaxAge    Duration `yaml:"max_age,omitempty" json:"max_age,omitempty"`
	MaxPoints int      `yaml:"max_points,omitempty" json:"max_points,omitempty"`
}

// StreamConfig tunes per-source reconnection.
type StreamConfig struct {
	ReconnectInterval    Duration `yaml:"reconnect_interval,omitempty" json:"reconnect_interval,omitempty"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts,omitempty" json:"max_reconnect_attempts,omitempty"`
}

// LogsConfig configures the on-disk session log store.
type LogsConfig struct {
	Dir         string   `yaml:"dir,omitempty" json:"dir,omitempty"`
	MaxFileSize int64    `yaml:"max_file_size,omitempty" json:"max_file_size,omitempty"`
	MaxAge      Duration `yaml:"max_age,omitempty" json:"max_age,omitempty"`
}

// HostConfig controls the local host metric sampler.
type HostConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Interval Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
}

// SourceConfig is one metric source to stream from.
type SourceConfig struct {
	ID        string `yaml:"id" json:"id"`
	PushURL   string `yaml:"push_url,omitempty" json:"push_url,omitempty"`
	SocketURL string `yaml:"socket_url,omitempty" json:"socket_url,omitempty"`
}

// Duration wraps time.Duration so yaml values can be written as "30s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes the config to path as yaml.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Default returns a config with every tunable at its default.
func Default() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Socket == "" {
		c.Socket = DefaultSocketPath()
	}
	if c.Metrics.Capacity <= 0 {
		c.Metrics.Capacity = 10000
	}
	if c.Metrics.MaxAge <= 0 {
		c.Metrics.MaxAge = Duration(time.Hour)
	}
	if c.Metrics.MaxPoints <= 0 {
		c.Metrics.MaxPoints = 1000
	}
	if c.Stream.ReconnectInterval <= 0 {
		c.Stream.ReconnectInterval = Duration(time.Second)
	}
	if c.Stream.MaxReconnectAttempts <= 0 {
		c.Stream.MaxReconnectAttempts = 10
	}
	if c.Logs.Dir == "" {
		c.Logs.Dir = defaultLogDir()
	}
	if c.Logs.MaxFileSize <= 0 {
		c.Logs.MaxFileSize = 10 * 1024 * 1024
	}
	if c.Logs.MaxAge <= 0 {
		c.Logs.MaxAge = Duration(7 * 24 * time.Hour)
	}
	if c.Host.Interval <= 0 {
		c.Host.Interval = Duration(2 * time.Second)
	}
}

// DefaultSocketPath returns the daemon's control socket location.
func DefaultSocketPath() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir + "/.lodestar/lodestard.sock"
	}
	return "/tmp/lodestard.sock"
}

func defaultLogDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir + "/.lodestar/logs"
	}
	return "/tmp/lodestar-logs"
}
