package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/teemow/calmux/internal/logging"
)

// Config configures the NATS publisher.
type Config struct {
	URL             string        `yaml:"url"`
	Subject         string        `yaml:"subject"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxPingsOut     int           `yaml:"max_pings_out"`
	ReconnectBuffer int           `yaml:"reconnect_buffer"`
}

// DefaultConfig returns the defaults applied to unset Config fields.
func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		Subject:         "calmux.events",
		ConnectTimeout:  5 * time.Second,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   10,
		PingInterval:    2 * time.Minute,
		MaxPingsOut:     2,
		ReconnectBuffer: 5 * 1024 * 1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.Subject == "" {
		c.Subject = d.Subject
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = d.ReconnectWait
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = d.MaxReconnects
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.MaxPingsOut <= 0 {
		c.MaxPingsOut = d.MaxPingsOut
	}
	if c.ReconnectBuffer <= 0 {
		c.ReconnectBuffer = d.ReconnectBuffer
	}
	return c
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	IsClosed() bool
	IsConnected() bool
	Close()
}

// NATSPublisher publishes changes as JSON to <subject>.<kind>.
type NATSPublisher struct {
	conn    conn
	subject string
	logger  *slog.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to the NATS server in cfg.
func NewNATSPublisher(cfg Config, logger *slog.Logger) (*NATSPublisher, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("calmux"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.PingInterval(cfg.PingInterval),
		nats.MaxPingsOutstanding(cfg.MaxPingsOut),
		nats.ReconnectBufSize(cfg.ReconnectBuffer),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", logging.Err(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	logger.Info("NATS publisher initialized",
		slog.String("url", nc.ConnectedUrl()),
		slog.String("subject", cfg.Subject))
	return newNATSPublisher(nc, cfg.Subject, logger), nil
}

func newNATSPublisher(c conn, subject string, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: c, subject: subject, logger: logger}
}

// Subject returns the subject a change of kind is published on.
func (p *NATSPublisher) Subject(kind Kind) string {
	return p.subject + "." + string(kind)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, change Change) error {
	if err := p.Healthy(); err != nil {
		return err
	}
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	subject := p.Subject(change.Kind)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}

	p.logger.Debug("published change",
		slog.String("subject", subject),
		logging.Account(change.AccountID),
		logging.Calendar(change.CalendarID),
		logging.EventID(change.Event.ID))
	return nil
}

// Healthy reports whether the connection can publish.
func (p *NATSPublisher) Healthy() error {
	switch {
	case p.conn == nil:
		return fmt.Errorf("NATS connection is nil")
	case p.conn.IsClosed():
		return fmt.Errorf("NATS connection is closed")
	case !p.conn.IsConnected():
		return fmt.Errorf("NATS is not connected")
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		p.logger.Warn("failed to flush NATS messages on close", logging.Err(err))
	}
	p.conn.Close()
	return nil
}
