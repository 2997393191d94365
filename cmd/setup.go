package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/config"
	"github.com/teemow/calmux/internal/google"
	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/notify"
	"github.com/teemow/calmux/internal/operations"
	"github.com/teemow/calmux/internal/server"
)

// loadConfig reads .env and the config file, then applies the Google client
// credentials to the OAuth layer.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	google.SetCredentials(cfg.Google.ClientID, cfg.Google.ClientSecret)
	return cfg, nil
}

// newLogger builds the process logger. debug forces the debug level.
func newLogger(cfg config.LoggingConfig, w io.Writer, debug bool) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// contextDeps are the optional collaborators of a ServerContext built from
// configuration.
type contextDeps struct {
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
	notifier notify.Publisher
}

func newServerContext(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps contextDeps) (*server.ServerContext, error) {
	sc, err := server.NewServerContext(ctx, server.Options{
		DefaultAccount: cfg.DefaultAccount,
		Accounts:       cfg.Accounts,
		TokenProvider:  google.NewFileTokenProvider(cfg.Google.TokenDir),
		ClientOptions:  []calendar.ClientOption{calendar.WithBatchSize(cfg.Fetch.BatchSize)},
		Operations: operations.Config{
			DuplicateThreshold: cfg.Detection.DuplicateThreshold,
			BlockingThreshold:  cfg.Detection.BlockingThreshold,
		},
		MaxConcurrency: cfg.Fetch.MaxConcurrency,
		Notifier:       deps.notifier,
		Metrics:        deps.metrics,
		AuditLogger:    deps.audit,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	return sc, nil
}

// newNotifier connects the change feed when it is enabled. A failed
// connection is logged and calmux continues without notifications.
func newNotifier(cfg *config.Config, logger *slog.Logger) notify.Publisher {
	if !cfg.Notify.Enabled {
		return nil
	}
	pub, err := notify.NewNATSPublisher(cfg.Notify.NATS, logger)
	if err != nil {
		logger.Warn("change notifications disabled", "error", err)
		return nil
	}
	return pub
}
