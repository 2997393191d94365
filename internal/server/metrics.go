package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/logging"
)

const (
	DefaultMetricsAddr = ":9090"
	DefaultMetricsPath = "/metrics"

	// DefaultShutdownTimeout bounds graceful shutdown of every calmux listener
	// and the telemetry flush.
	DefaultShutdownTimeout = 30 * time.Second

	metricsTimeout     = 10 * time.Second
	metricsIdleTimeout = 60 * time.Second
)

// MetricsServerConfig configures the scrape listener.
type MetricsServerConfig struct {
	Addr string // default DefaultMetricsAddr
	Path string // default DefaultMetricsPath

	// Provider must be enabled and use the Prometheus exporter.
	Provider *instrumentation.Provider
	Logger   *slog.Logger
}

// MetricsServer serves Prometheus scrapes on their own port so the metrics
// never share the bearer-protected MCP and REST listener.
type MetricsServer struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	switch {
	case config.Provider == nil:
		return nil, fmt.Errorf("instrumentation provider is required for metrics server")
	case !config.Provider.Enabled():
		return nil, fmt.Errorf("instrumentation provider is not enabled")
	}
	scrape := config.Provider.PrometheusHandler()
	if scrape == nil {
		return nil, fmt.Errorf("metrics server requires the prometheus exporter")
	}
	if config.Addr == "" {
		config.Addr = DefaultMetricsAddr
	}
	if config.Path == "" {
		config.Path = DefaultMetricsPath
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle(config.Path, scrape)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{
		logger: logging.WithService(config.Logger, "metrics"),
		srv: &http.Server{
			Addr:              config.Addr,
			Handler:           mux,
			ReadHeaderTimeout: metricsTimeout,
			WriteTimeout:      metricsTimeout,
			IdleTimeout:       metricsIdleTimeout,
		},
	}, nil
}

func (s *MetricsServer) Handler() http.Handler { return s.srv.Handler }

// Addr is the configured address, or the bound one once Serve has run.
func (s *MetricsServer) Addr() string { return s.srv.Addr }

// Serve blocks until Shutdown and returns nil after a graceful shutdown.
func (s *MetricsServer) Serve(l net.Listener) error {
	s.srv.Addr = l.Addr().String()
	s.logger.Info("starting metrics server", "addr", s.srv.Addr)
	if err := s.srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.srv.Shutdown(ctx)
}
