package instrumentation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(metrics, tracing string) Config {
	return Config{
		ServiceName:     "calmux-test",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: metrics,
		TracingExporter: tracing,
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "calmux-test"})
	require.NoError(t, err)

	assert.False(t, provider.Enabled())
	assert.NotNil(t, provider.Metrics(), "disabled provider still hands out a recorder")
	assert.Nil(t, provider.PrometheusHandler())
	assert.NotNil(t, provider.Tracer("test"))
	assert.NoError(t, provider.Shutdown(context.Background()))

	// recording on the no-op recorder must not panic
	provider.Metrics().RecordCreateBlocked(context.Background())
}

func TestNewProvider_Exporters(t *testing.T) {
	tests := []struct {
		name           string
		config         Config
		wantErr        bool
		wantPrometheus bool
	}{
		{"prometheus", testConfig(ExporterPrometheus, ExporterNone), false, true},
		{"default exporters", testConfig("", ""), false, true},
		{"stdout", testConfig(ExporterStdout, ExporterStdout), false, false},
		{"invalid metrics exporter", testConfig("invalid", ExporterNone), true, false},
		{"invalid tracing exporter", testConfig(ExporterPrometheus, "invalid"), true, false},
		{"otlp metrics without endpoint", testConfig(ExporterOTLP, ExporterNone), true, false},
		{"otlp tracing without endpoint", testConfig(ExporterPrometheus, ExporterOTLP), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			provider, err := NewProvider(ctx, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

			assert.True(t, provider.Enabled())
			assert.NotNil(t, provider.Metrics())
			assert.NotNil(t, provider.Tracer("test"))
			assert.Equal(t, tt.wantPrometheus, provider.PrometheusHandler() != nil)
		})
	}
}

func TestProvider_PrometheusScrape(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, testConfig(ExporterPrometheus, ExporterNone))
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	provider.Metrics().RecordCreateBlocked(ctx)
	provider.Metrics().RecordRegistryLookup(ctx, RegistryHit)

	srv := httptest.NewServer(provider.PrometheusHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "calendar_create_blocked_total")
	assert.Contains(t, string(body), "calendar_registry_lookups_total")
	assert.Contains(t, string(body), "go_goroutines")
}
