// Package natsclient wraps the NATS connection used for best-effort record
// forwarding: backoff-retried connect, core publish, and connection-state
// metrics. The pipeline never depends on this client being connected;
// forwarding failures are flow-control noise, not pipeline errors.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/evinjohnn/LinkedIn-Job-Stats/errors"
	"github.com/evinjohnn/LinkedIn-Job-Stats/metric"
	"github.com/evinjohnn/LinkedIn-Job-Stats/pkg/retry"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string        `json:"url"`
	Name          string        `json:"name"`
	MaxReconnects int           `json:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnect_wait"`
}

// DefaultConfig returns connection defaults for a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "jobstats",
		MaxReconnects: -1, // reconnect forever
		ReconnectWait: 2 * time.Second,
	}
}

// Client is a thread-safe NATS connection wrapper.
type Client struct {
	mu     sync.RWMutex
	cfg    Config
	conn   *nats.Conn
	logger *slog.Logger
	core   *metric.Metrics // optional
}

// New creates a client. The connection is established by Connect. core may
// be nil to run without connection metrics.
func New(cfg Config, logger *slog.Logger, core *metric.Metrics) *Client {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		core:   core,
	}
}

// Connect establishes the connection, retrying with backoff. The client
// keeps reconnecting on its own afterwards per cfg.MaxReconnects.
func (c *Client) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(c.cfg.Name),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn("NATS disconnected", "component", "natsclient", "error", err)
			if c.core != nil {
				c.core.RecordNATSStatus(false)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", "component", "natsclient", "url", nc.ConnectedUrl())
			if c.core != nil {
				c.core.RecordNATSStatus(true)
				c.core.RecordNATSReconnect()
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.logger.Info("NATS connection closed", "component", "natsclient")
			if c.core != nil {
				c.core.RecordNATSStatus(false)
			}
		}),
	}

	err := retry.Do(ctx, errors.DefaultRetryConfig().ToRetryConfig(), func() error {
		conn, connErr := nats.Connect(c.cfg.URL, opts...)
		if connErr != nil {
			c.logger.Warn("NATS connect attempt failed",
				"component", "natsclient",
				"url", c.cfg.URL,
				"error", connErr)
			return connErr
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Connect", "connect to NATS")
	}

	if c.core != nil {
		c.core.RecordNATSStatus(true)
	}
	c.logger.Info("NATS connected", "component", "natsclient", "url", c.cfg.URL)
	return nil
}

// Publish sends data on subject. Returns a transient error when the
// connection is absent or publishing fails.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "Client", "Publish", "connection check")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish to "+subject)
	}
	return nil
}

// IsConnected reports the connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains and closes the connection.
func (c *Client) Close(_ context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Drain(); err != nil {
		c.logger.Warn("NATS drain failed, closing hard", "component", "natsclient", "error", err)
		conn.Close()
	}
}
