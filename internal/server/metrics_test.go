package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calmux/internal/instrumentation"
)

func newTestProvider(t *testing.T, cfg instrumentation.Config) *instrumentation.Provider {
	t.Helper()
	cfg.ServiceName = "calmux-test"
	cfg.ServiceVersion = "1.0.0"
	provider, err := instrumentation.NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func prometheusProvider(t *testing.T) *instrumentation.Provider {
	return newTestProvider(t, instrumentation.Config{
		Enabled:         true,
		MetricsExporter: instrumentation.ExporterPrometheus,
		TracingExporter: instrumentation.ExporterNone,
	})
}

func TestNewMetricsServer(t *testing.T) {
	tests := []struct {
		name        string
		provider    func(t *testing.T) *instrumentation.Provider
		addr        string
		wantAddr    string
		errContains string
	}{
		{"valid config", prometheusProvider, ":9091", ":9091", ""},
		{"default addr", prometheusProvider, "", DefaultMetricsAddr, ""},
		{"nil provider", func(*testing.T) *instrumentation.Provider { return nil }, ":9090", "", "provider is required"},
		{"disabled provider", func(t *testing.T) *instrumentation.Provider {
			return newTestProvider(t, instrumentation.Config{})
		}, ":9090", "", "not enabled"},
		{"stdout exporter", func(t *testing.T) *instrumentation.Provider {
			return newTestProvider(t, instrumentation.Config{
				Enabled:         true,
				MetricsExporter: instrumentation.ExporterStdout,
				TracingExporter: instrumentation.ExporterNone,
			})
		}, ":9090", "", "requires the prometheus exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewMetricsServer(MetricsServerConfig{Addr: tt.addr, Provider: tt.provider(t)})
			if tt.errContains != "" {
				assert.ErrorContains(t, err, tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, srv.Addr())
		})
	}
}

func TestMetricsServer_Handler(t *testing.T) {
	provider := prometheusProvider(t)
	provider.Metrics().RecordCreateBlocked(context.Background())

	srv, err := NewMetricsServer(MetricsServerConfig{Provider: provider})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "calendar_create_blocked_total")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsServer_ServeAndShutdown(t *testing.T) {
	srv, err := NewMetricsServer(MetricsServerConfig{Provider: prometheusProvider(t)})
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}
