package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ToolInvocation is the audit record of one MCP tool call.
type ToolInvocation struct {
	Tool      string
	Operation string
	// Write is set for operations that change calendars.
	Write bool

	Account    string
	CalendarID string
	EventID    string

	Start    time.Time
	Duration time.Duration
	Error    string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts the record of a call of tool. operation is one of
// the Operation constants.
func NewToolInvocation(tool, operation string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		Operation: operation,
		Write:     IsWriteOperation(operation),
		Start:     time.Now(),
	}
}

// IsWriteOperation reports whether operation changes calendars.
func IsWriteOperation(operation string) bool {
	switch operation {
	case OperationCreate, OperationUpdate, OperationCommit:
		return true
	}
	return false
}

// ForAccount sets the account the call ran against.
func (ti *ToolInvocation) ForAccount(account string) *ToolInvocation {
	ti.Account = account
	return ti
}

// OnTarget sets the calendar and, for single event calls, the event.
func (ti *ToolInvocation) OnTarget(calendarID, eventID string) *ToolInvocation {
	ti.CalendarID = calendarID
	ti.EventID = eventID
	return ti
}

// WithSpanContext copies the trace and span IDs of the span in ctx.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		ti.TraceID = sc.TraceID().String()
		ti.SpanID = sc.SpanID().String()
	}
	return ti
}

// Finish stops the clock. A nil err marks the call successful.
func (ti *ToolInvocation) Finish(err error) *ToolInvocation {
	ti.Duration = time.Since(ti.Start)
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Succeeded reports whether the call finished without an error.
func (ti *ToolInvocation) Succeeded() bool {
	return ti.Error == ""
}

// Status returns StatusSuccess or StatusError.
func (ti *ToolInvocation) Status() string {
	if ti.Succeeded() {
		return StatusSuccess
	}
	return StatusError
}

func (ti *ToolInvocation) attrs(redact bool) []any {
	attrs := []any{
		slog.String("tool", ti.Tool),
		slog.String("operation", ti.Operation),
		slog.Bool("write", ti.Write),
		slog.Duration("duration", ti.Duration),
	}
	if ti.Account != "" {
		attrs = append(attrs, slog.String("account", ti.Account))
	}
	switch {
	case ti.CalendarID == "":
	case redact:
		attrs = append(attrs, slog.String("calendar_kind", CalendarKind(ti.CalendarID)))
	default:
		attrs = append(attrs, slog.String("calendar", ti.CalendarID))
	}
	if ti.EventID != "" && !redact {
		attrs = append(attrs, slog.String("event_id", ti.EventID))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID), slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// AuditLogger writes one record per tool call. Successful calls are logged at
// info, failed ones at warn.
type AuditLogger struct {
	logger *slog.Logger
	config AuditLoggingConfig
}

// NewAuditLogger returns an audit logger writing to logger.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger.With("log_type", "audit"), config: config}
}

// Log writes the record of ti. It is a no-op on a nil or disabled logger.
func (al *AuditLogger) Log(ti *ToolInvocation) {
	if al == nil || !al.config.Enabled {
		return
	}
	if ti.Succeeded() {
		al.logger.Info("tool_executed", ti.attrs(al.config.RedactTargets)...)
		return
	}
	al.logger.Warn("tool_failed", ti.attrs(al.config.RedactTargets)...)
}
