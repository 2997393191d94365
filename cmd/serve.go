package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calmux/internal/google"
	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/resources"
	"github.com/teemow/calmux/internal/server"
	"github.com/teemow/calmux/internal/tools/calendar_tools"
	"github.com/teemow/calmux/internal/tools/google_tools"
)

// serveOptions holds the serve flags.
type serveOptions struct {
	configPath       string
	transport        string
	httpAddr         string
	yolo             bool
	debug            bool
	googleClientID   string
	googleSecret     string
	accounts         string
	defaultAccount   string
	disableStreaming bool
	disableAPI       bool
	bearerToken      string
	tlsCertFile      string
	tlsKeyFile       string
	resetSchedule    string
	metrics          MetricsConfig
}

// MetricsConfig holds metrics server settings
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP (Model Context Protocol) server to provide calendar tools
for AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport with the REST API and health endpoints

Safety Mode:
  By default, the server operates in read-only mode: events can be listed,
  searched and exported. Use --yolo to register the tools that create and
  update events.

Configuration:
  Settings are read from $XDG_CONFIG_HOME/calmux/config.yaml (or --config),
  then overridden by environment variables and flags. A .env file in the
  working directory is loaded first.

Observability:
  Metrics are exposed in Prometheus format on a separate port (default :9090)
  when running with the streamable-http transport.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("metrics-enabled") && os.Getenv("METRICS_ENABLED") == "false" {
				opts.metrics.Enabled = false
			}
			if !cmd.Flags().Changed("metrics-addr") {
				if addr := os.Getenv("METRICS_ADDR"); addr != "" {
					opts.metrics.Addr = addr
				}
			}
			if opts.bearerToken == "" {
				opts.bearerToken = os.Getenv("CALMUX_BEARER_TOKEN")
			}
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to the config file (default $XDG_CONFIG_HOME/calmux/config.yaml)")
	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "Enable write operations (default is read-only mode)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.googleClientID, "google-client-id", "", "Google OAuth Client ID (can also be set via GOOGLE_CLIENT_ID env var)")
	cmd.Flags().StringVar(&opts.googleSecret, "google-client-secret", "", "Google OAuth Client Secret (can also be set via GOOGLE_CLIENT_SECRET env var)")
	cmd.Flags().StringVar(&opts.accounts, "accounts", "", "Comma-separated list of accounts to aggregate (overrides the config file)")
	cmd.Flags().StringVar(&opts.defaultAccount, "default-account", "", "Account used when a request names none")
	cmd.Flags().BoolVar(&opts.disableStreaming, "disable-streaming", false, "Disable streaming responses on /mcp (for clients that don't support SSE)")
	cmd.Flags().BoolVar(&opts.disableAPI, "disable-api", false, "Do not serve the REST API on the HTTP transport")
	cmd.Flags().StringVar(&opts.bearerToken, "bearer-token", "", "Bearer token required on /mcp and the REST API (can also be set via CALMUX_BEARER_TOKEN env var)")
	cmd.Flags().StringVar(&opts.tlsCertFile, "tls-cert-file", "", "Path to TLS certificate file (PEM format). Enables HTTPS together with --tls-key-file")
	cmd.Flags().StringVar(&opts.tlsKeyFile, "tls-key-file", "", "Path to TLS private key file (PEM format)")
	cmd.Flags().StringVar(&opts.resetSchedule, "registry-reset-schedule", "", "Cron expression on which the calendar registry cache is cleared")
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "metrics-enabled", true, "Serve Prometheus metrics (can also be set via METRICS_ENABLED env var)")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address (can also be set via METRICS_ADDR env var)")

	return cmd
}

func runServe(opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.googleClientID != "" || opts.googleSecret != "" {
		if opts.googleClientID != "" {
			cfg.Google.ClientID = opts.googleClientID
		}
		if opts.googleSecret != "" {
			cfg.Google.ClientSecret = opts.googleSecret
		}
		google.SetCredentials(cfg.Google.ClientID, cfg.Google.ClientSecret)
	}
	if accounts := parseCommaSeparatedList(opts.accounts); accounts != nil {
		cfg.Accounts = accounts
	}
	if opts.defaultAccount != "" {
		cfg.DefaultAccount = opts.defaultAccount
	}
	if opts.resetSchedule != "" {
		cfg.Registry.ResetSchedule = opts.resetSchedule
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Logs always go to stderr so that stdout stays clean for stdio.
	logger, err := newLogger(cfg.Logging, os.Stderr, opts.debug)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if opts.transport == "stdio" && instrConfig.MetricsExporter == instrumentation.ExporterPrometheus {
		// Nothing could scrape a stdio process.
		instrConfig.Enabled = false
	}
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation configuration: %w", err)
	}
	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("error during instrumentation shutdown", "error", err)
		}
	}()

	audit := instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)

	serverContext, err := newServerContext(shutdownCtx, cfg, logger, contextDeps{
		metrics:  provider.Metrics(),
		audit:    audit,
		notifier: newNotifier(cfg, logger),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("error during server context shutdown", "error", err)
		}
	}()

	if cfg.Registry.ResetSchedule != "" {
		stop, err := serverContext.Operations().Registry().ScheduleReset(cfg.Registry.ResetSchedule)
		if err != nil {
			return err
		}
		defer stop()
	}

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("calmux", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)

	// readOnly is the inverse of yolo
	readOnly := !opts.yolo
	if readOnly {
		logger.Info("starting server in read-only mode (use --yolo to enable write operations)")
	} else {
		logger.Info("starting server with write operations enabled (--yolo flag is set)")
	}

	if err := registerAllTools(mcpSrv, serverContext, readOnly); err != nil {
		return err
	}

	switch opts.transport {
	case "stdio":
		return runStdioServer(mcpSrv)
	case "streamable-http":
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, provider, opts)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.transport)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Calendar",
			register: func() error {
				return calendar_tools.RegisterCalendarTools(mcpSrv, sc, readOnly)
			},
		},
		{
			name: "Google",
			register: func() error {
				return google_tools.RegisterGoogleTools(mcpSrv, sc)
			},
		},
		{
			name: "Resources",
			register: func() error {
				return resources.RegisterResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", reg.name, err)
		}
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, provider *instrumentation.Provider, opts serveOptions) error {
	logger := sc.Logger()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if opts.metrics.Enabled && provider.Enabled() && provider.PrometheusHandler() != nil {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:     opts.metrics.Addr,
			Provider: provider,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		l, err := net.Listen("tcp", opts.metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics server failed to start: %w", err)
		}
		go func() {
			if err := metricsServer.Serve(l); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	health := server.NewHealthChecker(sc, version)
	httpServer, err := server.NewHTTPServer(mcpSrv, sc, health, provider.Metrics(), server.HTTPConfig{
		Addr:             opts.httpAddr,
		DisableStreaming: opts.disableStreaming,
		DisableAPI:       opts.disableAPI,
		BearerToken:      opts.bearerToken,
		TLSCertFile:      opts.tlsCertFile,
		TLSKeyFile:       opts.tlsKeyFile,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	fmt.Printf("Starting calmux MCP server with streamable-http transport on %s\n", opts.httpAddr)
	fmt.Printf("  MCP endpoint:  %s\n", server.MCPPath)
	if !opts.disableAPI {
		fmt.Printf("  REST API:      %s\n", server.APIPath)
	}
	fmt.Println("  Health:        /healthz, /readyz, /healthz/detailed")
	if metricsServer != nil {
		fmt.Printf("  Metrics:       %s%s\n", opts.metrics.Addr, server.DefaultMetricsPath)
	}
	if opts.bearerToken == "" {
		fmt.Println("\nWARNING: no bearer token configured, anyone who can reach the port can use the server")
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil {
			serverDone <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		fmt.Println("Shutdown signal received, stopping HTTP server...")
		health.SetReady(false)
	case err := <-serverDone:
		if err != nil {
			serveErr = fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	var shutdownErrs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		shutdownErrs = append(shutdownErrs, fmt.Errorf("error shutting down HTTP server: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = append(shutdownErrs, fmt.Errorf("error shutting down metrics server: %w", err))
		}
	}
	if serveErr != nil || len(shutdownErrs) > 0 {
		return errors.Join(append([]error{serveErr}, shutdownErrs...)...)
	}

	fmt.Println("HTTP server gracefully stopped")
	return nil
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
