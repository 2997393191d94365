// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for the calmux MCP server.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds
//
// Google API:
//   - google_api_operations_total: by service, operation, status
//   - google_api_operation_duration_seconds
//
// Calendar core:
//   - calendar_fetch_total, calendar_fetch_duration_seconds: multi-calendar fetches by mode (direct, batch, parallel)
//   - calendar_detection_findings_total: duplicates and conflicts reported by detection
//   - calendar_create_blocked_total: creations refused as likely duplicates
//   - calendar_registry_lookups_total: registry cache hits and misses
//   - calendar_notifications_published_total: change notifications sent to NATS
//
// MCP tools:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>) and Google API
// calls (google.<service>.<operation>). Calendar IDs are recorded by kind
// (primary, user, group, resource, holiday), never verbatim.
//
// # Audit log
//
// Every tool call produces one tool_executed or tool_failed record. With
// AUDIT_LOGGING_REDACT_TARGETS the calendar ID is replaced by its kind and the
// event ID is dropped.
//
// # Configuration
//
// Environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: calmux)
//   - METRICS_DETAILED_LABELS: add the account to tool metrics
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_REDACT_TARGETS
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	m := provider.Metrics()
//	m.RecordCalendarFetch(ctx, instrumentation.FetchModeBatch, instrumentation.StatusSuccess, time.Since(start))
//	m.RecordToolInvocation(ctx, "calendar_list_events", "work", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
