package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrAccount   = "account"
	attrMode      = "mode"
	attrKind      = "kind"
)

// Fetch modes recorded by RecordCalendarFetch.
const (
	FetchModeDirect   = "direct"
	FetchModeBatch    = "batch"
	FetchModeParallel = "parallel"
)

// Finding kinds recorded by RecordDetectionFindings.
const (
	FindingDuplicate = "duplicate"
	FindingConflict  = "conflict"
)

// Registry lookup results recorded by RecordRegistryLookup.
const (
	RegistryHit  = "hit"
	RegistryMiss = "miss"
)

var (
	fastBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10}
	apiBuckets  = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// Metrics records calmux metrics. A nil *Metrics and the zero value are
// valid and record nothing.
type Metrics struct {
	httpRequests        metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	apiOperations        metric.Int64Counter
	apiOperationDuration metric.Float64Histogram

	fetches           metric.Int64Counter
	fetchDuration     metric.Float64Histogram
	detectionFindings metric.Int64Counter
	createsBlocked    metric.Int64Counter
	registryLookups   metric.Int64Counter
	notifications     metric.Int64Counter

	toolInvocations metric.Int64Counter
	toolDuration    metric.Float64Histogram

	// detailedLabels adds the account to tool metrics.
	detailedLabels bool
}

// instruments creates counters and histograms, remembering the first error.
type instruments struct {
	meter metric.Meter
	err   error
}

func (in *instruments) counter(name, description, unit string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil && in.err == nil {
		in.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}

func (in *instruments) seconds(name, description string, buckets []float64) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(description),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...))
	if err != nil && in.err == nil {
		in.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

// NewMetrics creates the calmux instruments on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	in := &instruments{meter: meter}
	m := &Metrics{
		httpRequests:        in.counter("http_requests_total", "HTTP requests served", "{request}"),
		httpRequestDuration: in.seconds("http_request_duration_seconds", "HTTP request duration", fastBuckets),

		apiOperations:        in.counter("google_api_operations_total", "Google Calendar API calls", "{operation}"),
		apiOperationDuration: in.seconds("google_api_operation_duration_seconds", "Google Calendar API call duration", apiBuckets),

		fetches:           in.counter("calendar_fetch_total", "Multi-calendar event fetches by mode", "{fetch}"),
		fetchDuration:     in.seconds("calendar_fetch_duration_seconds", "Multi-calendar event fetch duration", apiBuckets),
		detectionFindings: in.counter("calendar_detection_findings_total", "Duplicates and conflicts reported by detection", "{finding}"),
		createsBlocked:    in.counter("calendar_create_blocked_total", "Event creations refused as likely duplicates", "{event}"),
		registryLookups:   in.counter("calendar_registry_lookups_total", "Calendar registry lookups by cache result", "{lookup}"),
		notifications:     in.counter("calendar_notifications_published_total", "Event change notifications published", "{message}"),

		toolInvocations: in.counter("mcp_tool_invocations_total", "MCP tool invocations", "{invocation}"),
		toolDuration:    in.seconds("mcp_tool_duration_seconds", "MCP tool duration", apiBuckets),

		detailedLabels: detailedLabels,
	}
	if in.err != nil {
		return nil, in.err
	}
	return m, nil
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequests.Add(ctx, 1, opt)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), opt)
}

// RecordGoogleAPIOperation records one Google API call. operation is one of
// the Operation constants.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.apiOperations == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.apiOperations.Add(ctx, 1, opt)
	m.apiOperationDuration.Record(ctx, duration.Seconds(), opt)
}

// RecordCalendarFetch records one multi-calendar fetch. The mode is one of
// FetchModeDirect, FetchModeBatch or FetchModeParallel.
func (m *Metrics) RecordCalendarFetch(ctx context.Context, mode, status string, duration time.Duration) {
	if m == nil || m.fetches == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrMode, mode),
		attribute.String(attrStatus, status),
	)
	m.fetches.Add(ctx, 1, opt)
	m.fetchDuration.Record(ctx, duration.Seconds(), opt)
}

// RecordDetectionFindings adds count findings of the given kind.
func (m *Metrics) RecordDetectionFindings(ctx context.Context, kind string, count int) {
	if m == nil || m.detectionFindings == nil || count <= 0 {
		return
	}
	m.detectionFindings.Add(ctx, int64(count), metric.WithAttributes(attribute.String(attrKind, kind)))
}

// RecordCreateBlocked counts an event creation refused as a likely duplicate.
func (m *Metrics) RecordCreateBlocked(ctx context.Context) {
	if m == nil || m.createsBlocked == nil {
		return
	}
	m.createsBlocked.Add(ctx, 1)
}

// RecordRegistryLookup counts a calendar registry lookup by cache result.
func (m *Metrics) RecordRegistryLookup(ctx context.Context, result string) {
	if m == nil || m.registryLookups == nil {
		return
	}
	m.registryLookups.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordNotification counts a published event change notification.
func (m *Metrics) RecordNotification(ctx context.Context, status string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordToolInvocation records one MCP tool call. The account label is only
// added with detailed labels.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, account, status string, duration time.Duration) {
	if m == nil || m.toolInvocations == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrAccount, AccountLabel(account)))
	}
	opt := metric.WithAttributes(attrs...)
	m.toolInvocations.Add(ctx, 1, opt)
	m.toolDuration.Record(ctx, duration.Seconds(), opt)
}
