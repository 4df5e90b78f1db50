package websocket

import (
	"strings"
	"time"

	"github.com/evinjohnn/LinkedIn-Job-Stats/errors"
)

// Config holds WebSocket ingress settings.
type Config struct {
	// Addr is the listen address, e.g. ":8090". A port of 0 picks a free port.
	Addr string `json:"addr"`
	// Path is the HTTP path capture agents connect to.
	Path string `json:"path"`
	// ReadLimit caps the size of a single frame in bytes.
	ReadLimit int64 `json:"read_limit"`
	// RatePerSecond is the per-connection sustained frame rate.
	RatePerSecond float64 `json:"rate_per_second"`
	// RateBurst is the per-connection burst allowance.
	RateBurst int `json:"rate_burst"`
	// ReadDeadline bounds each blocking read so shutdown stays responsive.
	ReadDeadline time.Duration `json:"read_deadline"`
}

// DefaultConfig returns the ingress settings: a generous per-connection
// guard, since the pipeline's own gate enforces the real admission policy.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8090",
		Path:          "/ingest",
		ReadLimit:     64 * 1024,
		RatePerSecond: 50,
		RateBurst:     100,
		ReadDeadline:  time.Second,
	}
}

// Validate checks the configuration for usability.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "websocket_input", "Validate",
			"addr must not be empty")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "websocket_input", "Validate",
			"path must start with /")
	}
	if c.RatePerSecond < 0 || c.RateBurst < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "websocket_input", "Validate",
			"rate settings must not be negative")
	}
	return nil
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.Path == "" {
		c.Path = def.Path
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = def.ReadLimit
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = def.RatePerSecond
	}
	if c.RateBurst <= 0 {
		c.RateBurst = def.RateBurst
	}
	if c.ReadDeadline <= 0 {
		c.ReadDeadline = def.ReadDeadline
	}
	return c
}
