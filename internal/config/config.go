// Package config loads the loadview configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultLogLevel = "info"

	defaultPlotWidthPx  = 1280
	defaultPlotHeightPx = 720
	defaultPlotTitle    = "Latency under load"

	defaultStorePath = "loadview.db"

	defaultServerAddr            = "127.0.0.1"
	defaultServerPort            = 8090
	defaultServerShutdownTimeout = 5 * time.Second

	maxPlotDimensionPx = 8192
)

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	switch value.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	default:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Log    LogConfig    `yaml:"log"`
	Plot   PlotConfig   `yaml:"plot"`
	Store  StoreConfig  `yaml:"store"`
	Server ServerConfig `yaml:"server"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type PlotConfig struct {
	WidthPx  int    `yaml:"width_px"`
	HeightPx int    `yaml:"height_px"`
	Title    string `yaml:"title"`
	// MaxThroughput is a bandwidth string ("100m", "2g"); when set it is
	// the minimum upper bound of the throughput axes.
	MaxThroughput string `yaml:"max_throughput"`
	// MaxLatencyMs, when set, is the minimum upper bound of the latency
	// axis in milliseconds.
	MaxLatencyMs float64 `yaml:"max_latency_ms"`
	// SplitThroughput renders one chart per direction with per-stream
	// detail instead of a single combined chart.
	SplitThroughput bool `yaml:"split_throughput"`
	// Transferred adds a cumulative data-transferred chart.
	Transferred bool `yaml:"transferred"`
	// LatencyECDF adds a latency distribution chart.
	LatencyECDF bool `yaml:"latency_ecdf"`

	// MaxThroughputBps is the parsed form of MaxThroughput, filled in
	// during validation.
	MaxThroughputBps uint64 `yaml:"-"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	BindAddr string `yaml:"bind_addr"`
	BindPort int    `yaml:"bind_port"`
	// ShutdownTimeout bounds how long in-flight requests may run after a
	// stop signal. Accepts bare seconds or a duration string.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads, defaults and validates the config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Plot.WidthPx == 0 {
		c.Plot.WidthPx = defaultPlotWidthPx
	}
	if c.Plot.HeightPx == 0 {
		c.Plot.HeightPx = defaultPlotHeightPx
	}
	if c.Plot.Title == "" {
		c.Plot.Title = defaultPlotTitle
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
	if c.Server.BindAddr == "" {
		c.Server.BindAddr = defaultServerAddr
	}
	if c.Server.BindPort == 0 {
		c.Server.BindPort = defaultServerPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(defaultServerShutdownTimeout)
	}
}

func (c *Config) validate() error {
	if c.Plot.WidthPx < 0 || c.Plot.WidthPx > maxPlotDimensionPx {
		return fmt.Errorf("plot width %d out of range (1-%d)", c.Plot.WidthPx, maxPlotDimensionPx)
	}
	if c.Plot.HeightPx < 0 || c.Plot.HeightPx > maxPlotDimensionPx {
		return fmt.Errorf("plot height %d out of range (1-%d)", c.Plot.HeightPx, maxPlotDimensionPx)
	}
	if c.Plot.MaxLatencyMs < 0 {
		return fmt.Errorf("max_latency_ms cannot be negative")
	}
	if c.Server.BindPort < 0 || c.Server.BindPort > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.BindPort)
	}
	if c.Plot.MaxThroughput != "" {
		bps, err := ParseBandwidth(c.Plot.MaxThroughput)
		if err != nil {
			return fmt.Errorf("max_throughput: %w", err)
		}
		c.Plot.MaxThroughputBps = bps
	}
	return nil
}
