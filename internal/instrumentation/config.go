package instrumentation

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	// ServiceCalendar is the only Google service calmux talks to.
	ServiceCalendar = "calendar"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricInterval is the push interval of the otlp and stdout
	// metric exporters.
	DefaultMetricInterval = 10 * time.Second
)

// Config configures metrics, tracing and audit logging.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// ServiceInstanceID defaults to the pod name when running in Kubernetes.
	ServiceInstanceID string
	K8sNamespace      string
	K8sPodName        string

	// Enabled turns metrics and tracing on. Audit logging is configured
	// separately.
	Enabled bool

	MetricsExporter string // prometheus, otlp or stdout
	TracingExporter string // otlp, stdout or none

	// OTLPEndpoint is host:port without a scheme.
	OTLPEndpoint string
	// OTLPInsecure sends OTLP over plain HTTP.
	OTLPInsecure bool

	TraceSamplingRate  float64
	PrometheusEndpoint string

	// DetailedLabels adds the account to tool metrics.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig configures the tool audit log.
type AuditLoggingConfig struct {
	Enabled bool

	// RedactTargets replaces calendar IDs in audit records with their kind
	// and drops event IDs. Calendar IDs are often email addresses.
	RedactTargets bool
}

// DefaultConfig reads the configuration from the environment.
func DefaultConfig() Config {
	return ConfigFromEnv(os.Getenv)
}

// ConfigFromEnv builds a Config from the variables returned by getenv.
// Unparsable values fall back to the default.
func ConfigFromEnv(getenv func(string) string) Config {
	env := envReader(getenv)
	return Config{
		ServiceName:        env.str("OTEL_SERVICE_NAME", "calmux"),
		ServiceVersion:     "unknown",
		ServiceInstanceID:  env.str("OTEL_SERVICE_INSTANCE_ID", ""),
		K8sNamespace:       env.str("K8S_NAMESPACE", env.str("POD_NAMESPACE", "")),
		K8sPodName:         env.str("K8S_POD_NAME", env.str("HOSTNAME", "")),
		Enabled:            env.boolean("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:    env.str("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:    env.str("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:       env.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:       env.boolean("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate:  env.float("OTEL_TRACES_SAMPLER_ARG", 0.1),
		PrometheusEndpoint: env.str("PROMETHEUS_ENDPOINT", "/metrics"),
		DetailedLabels:     env.boolean("METRICS_DETAILED_LABELS", false),
		AuditLogging: AuditLoggingConfig{
			Enabled:       env.boolean("AUDIT_LOGGING_ENABLED", true),
			RedactTargets: env.boolean("AUDIT_LOGGING_REDACT_TARGETS", false),
		},
	}
}

// Validate checks exporter names, the sampling rate and the OTLP endpoint.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}
	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.OTLPEndpoint == "" {
		if c.TracingExporter == ExporterOTLP {
			return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
		}
		if c.MetricsExporter == ExporterOTLP {
			return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
		}
	}
	return nil
}

type envReader func(string) string

func (e envReader) str(key, def string) string {
	if v := e(key); v != "" {
		return v
	}
	return def
}

func (e envReader) boolean(key string, def bool) bool {
	b, err := strconv.ParseBool(e(key))
	if err != nil {
		return def
	}
	return b
}

func (e envReader) float(key string, def float64) float64 {
	f, err := strconv.ParseFloat(e(key), 64)
	if err != nil {
		return def
	}
	return f
}
