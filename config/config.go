// Package config loads and validates the service configuration. The
// configuration is layered: compiled-in defaults, then an optional JSON
// file, then JOBSTATS_* environment variables. Later layers win.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/evinjohnn/LinkedIn-Job-Stats/errors"
	"github.com/evinjohnn/LinkedIn-Job-Stats/input/websocket"
	"github.com/evinjohnn/LinkedIn-Job-Stats/natsclient"
	"github.com/evinjohnn/LinkedIn-Job-Stats/pipeline"
	"github.com/evinjohnn/LinkedIn-Job-Stats/tracker"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "JOBSTATS"

// Config is the complete service configuration.
type Config struct {
	Logging  LoggingConfig    `json:"logging"`
	NATS     NATSConfig       `json:"nats"`
	Metrics  MetricsConfig    `json:"metrics"`
	Ingress  websocket.Config `json:"ingress"`
	Pipeline pipeline.Config  `json:"pipeline"`
	Tracker  tracker.Config   `json:"tracker"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

// NATSConfig controls the optional stats forwarder. When disabled the
// pipeline runs without a persistence boundary.
type NATSConfig struct {
	Enabled bool              `json:"enabled"`
	Client  natsclient.Config `json:"client"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	Path    string `json:"path"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		NATS: NATSConfig{
			Enabled: false,
			Client:  natsclient.DefaultConfig(),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Ingress:  websocket.DefaultConfig(),
		Pipeline: pipeline.DefaultConfig(),
		Tracker:  tracker.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, an optional JSON file, and
// environment overrides. path may be empty to skip the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers JOBSTATS_* environment variables over cfg.
// Unparseable values are ignored rather than fatal so a stray variable
// cannot keep the service from starting.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvPrefix + "_NATS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.NATS.Enabled = b
		}
	}
	if v := os.Getenv(EnvPrefix + "_NATS_URL"); v != "" {
		cfg.NATS.Client.URL = v
	}
	if v := os.Getenv(EnvPrefix + "_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "_INGRESS_ADDR"); v != "" {
		cfg.Ingress.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "_DEBOUNCE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.DebounceDelay = d
		}
	}
	if v := os.Getenv(EnvPrefix + "_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.CacheTTL = d
		}
	}
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown log level %q", c.Logging.Level),
			"config", "Validate", "check logging level")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown log format %q", c.Logging.Format),
			"config", "Validate", "check logging format")
	}

	if c.NATS.Enabled && strings.TrimSpace(c.NATS.Client.URL) == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"config", "Validate", "nats enabled without url")
	}

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"config", "Validate", "metrics enabled without addr")
	}

	if err := c.Ingress.Validate(); err != nil {
		return err
	}

	if c.Pipeline.HistorySize < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("history size %d is negative", c.Pipeline.HistorySize),
			"config", "Validate", "check history size")
	}
	return nil
}

// String returns an indented JSON rendering of the configuration.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
