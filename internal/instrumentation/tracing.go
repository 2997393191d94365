package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer of every calmux span.
const TracerName = "github.com/teemow/calmux"

// Span attribute keys.
const (
	AttrTool         = "mcp.tool"
	AttrWrite        = "mcp.write"
	AttrService      = "google.service"
	AttrOperation    = "google.operation"
	AttrAccount      = "calmux.account"
	AttrCalendarKind = "calmux.calendar.kind"
)

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// TargetAttributes describes the account and calendar a call works on.
// Calendar IDs are recorded by kind only; empty values are left out.
func TargetAttributes(account, calendarID string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if account != "" {
		attrs = append(attrs, attribute.String(AttrAccount, account))
	}
	if calendarID != "" {
		attrs = append(attrs, attribute.String(AttrCalendarKind, CalendarKind(calendarID)))
	}
	return attrs
}

// StartToolSpan starts the server span "tool.<name>" of an MCP tool call.
func StartToolSpan(ctx context.Context, toolName, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{
		attribute.String(AttrTool, toolName),
		attribute.String(AttrOperation, operation),
		attribute.Bool(AttrWrite, IsWriteOperation(operation)),
	}
	return tracer().Start(ctx, "tool."+toolName,
		trace.WithAttributes(append(base, attrs...)...),
		trace.WithSpanKind(trace.SpanKindServer))
}

// StartGoogleAPISpan starts the client span "google.<service>.<operation>"
// of a Google API call.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{
		attribute.String(AttrService, service),
		attribute.String(AttrOperation, operation),
	}
	return tracer().Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(append(base, attrs...)...),
		trace.WithSpanKind(trace.SpanKindClient))
}

// SetSpanStatus marks span failed with err, or ok when err is nil.
func SetSpanStatus(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// TraceID returns the trace ID of the span in ctx, or "" without one.
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
