package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calmux/internal/instrumentation"
)

// MCPPath is where the streamable HTTP transport is mounted.
const MCPPath = "/mcp"

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Addr string

	// DisableStreaming turns off server-sent events on /mcp for clients that
	// cannot handle them.
	DisableStreaming bool

	// DisableAPI removes the REST API.
	DisableAPI bool

	// BearerToken, when set, is required on /mcp and the REST API.
	BearerToken string

	TLSCertFile string
	TLSKeyFile  string
}

// HTTPServer serves the MCP streamable HTTP transport, the REST API and the
// health endpoints on one port.
type HTTPServer struct {
	httpServer *http.Server
	config     HTTPConfig
	logger     *slog.Logger
}

// NewHTTPServer assembles the HTTP transport for mcpSrv.
func NewHTTPServer(mcpSrv *mcpserver.MCPServer, sc *ServerContext, health *HealthChecker, metrics *instrumentation.Metrics, config HTTPConfig) (*HTTPServer, error) {
	if (config.TLSCertFile == "") != (config.TLSKeyFile == "") {
		return nil, fmt.Errorf("both a TLS certificate and a key file are required for HTTPS")
	}

	mux := http.NewServeMux()
	if health != nil {
		health.RegisterHealthEndpoints(mux)
	}

	mcpOpts := []mcpserver.StreamableHTTPOption{mcpserver.WithEndpointPath(MCPPath)}
	if config.DisableStreaming {
		mcpOpts = append(mcpOpts, mcpserver.WithDisableStreaming(true))
	}
	mcpHandler := mcpserver.NewStreamableHTTPServer(mcpSrv, mcpOpts...)
	mux.Handle(MCPPath, requireBearer(config.BearerToken, instrumentHTTP(metrics, MCPPath, mcpHandler)))

	if !config.DisableAPI {
		api := NewAPI(sc, metrics)
		mux.Handle(APIPath, requireBearer(config.BearerToken, api))
		mux.Handle(APIPath+"/", requireBearer(config.BearerToken, api))
	}

	return &HTTPServer{
		config: config,
		logger: sc.Logger(),
		httpServer: &http.Server{
			Addr:              config.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}, nil
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve serves on l until Shutdown. It returns nil after a graceful shutdown.
func (s *HTTPServer) Serve(l net.Listener) error {
	var err error
	if s.config.TLSCertFile != "" {
		s.logger.Info("serving HTTPS", "addr", l.Addr().String())
		err = s.httpServer.ServeTLS(l, s.config.TLSCertFile, s.config.TLSKeyFile)
	} else {
		s.logger.Info("serving HTTP", "addr", l.Addr().String())
		err = s.httpServer.Serve(l)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start listens on the configured address and serves.
func (s *HTTPServer) Start() error {
	l, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(l)
}

// Shutdown gracefully shuts down the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requireBearer rejects requests without the configured bearer token. An
// empty token disables the check.
func requireBearer(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="calmux"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrumentHTTP records request counts and durations under path.
func instrumentHTTP(metrics *instrumentation.Metrics, path string, next http.Handler) http.Handler {
	if metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, path, rec.status, time.Since(start))
	})
}
