package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newTestAuditLogger(config AuditLoggingConfig) (*AuditLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), config), &buf
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	return record
}

func TestNewToolInvocation(t *testing.T) {
	tests := []struct {
		operation string
		write     bool
	}{
		{OperationList, false},
		{OperationSearch, false},
		{OperationExport, false},
		{OperationCreate, true},
		{OperationUpdate, true},
		{OperationCommit, true},
		{OperationReset, false},
	}
	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			ti := NewToolInvocation("tool", tt.operation)
			assert.Equal(t, tt.write, ti.Write)
			assert.False(t, ti.Start.IsZero())
		})
	}
}

func TestToolInvocation_Finish(t *testing.T) {
	ti := NewToolInvocation("calendar_create_event", OperationCreate).
		ForAccount("work").
		OnTarget("primary", "")
	ti.Start = time.Now().Add(-50 * time.Millisecond)

	ti.Finish(nil)
	assert.True(t, ti.Succeeded())
	assert.Equal(t, StatusSuccess, ti.Status())
	assert.GreaterOrEqual(t, ti.Duration, 50*time.Millisecond)

	failed := NewToolInvocation("calendar_create_event", OperationCreate).Finish(errors.New("likely duplicate"))
	assert.False(t, failed.Succeeded())
	assert.Equal(t, StatusError, failed.Status())
	assert.Equal(t, "likely duplicate", failed.Error)
}

func TestToolInvocation_WithSpanContext(t *testing.T) {
	ti := NewToolInvocation("calendar_list_events", OperationList).WithSpanContext(context.Background())
	assert.Empty(t, ti.TraceID)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	ti = NewToolInvocation("calendar_list_events", OperationList).WithSpanContext(ctx)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", ti.TraceID)
	assert.Equal(t, "00f067aa0ba902b7", ti.SpanID)
}

func TestAuditLogger_Log(t *testing.T) {
	tests := []struct {
		name    string
		config  AuditLoggingConfig
		err     error
		want    map[string]any
		missing []string
	}{
		{
			name:   "success",
			config: AuditLoggingConfig{Enabled: true},
			want: map[string]any{
				"level":    "INFO",
				"msg":      "tool_executed",
				"log_type": "audit",
				"tool":     "calendar_update_event",
				"write":    true,
				"account":  "work",
				"calendar": "ann@example.com",
				"event_id": "evt42",
			},
			missing: []string{"error", "calendar_kind"},
		},
		{
			name:   "failure",
			config: AuditLoggingConfig{Enabled: true},
			err:    errors.New("event not found"),
			want: map[string]any{
				"level": "WARN",
				"msg":   "tool_failed",
				"error": "event not found",
			},
		},
		{
			name:   "redacted targets",
			config: AuditLoggingConfig{Enabled: true, RedactTargets: true},
			want: map[string]any{
				"msg":           "tool_executed",
				"calendar_kind": CalendarUser,
				"account":       "work",
			},
			missing: []string{"calendar", "event_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newTestAuditLogger(tt.config)
			logger.Log(NewToolInvocation("calendar_update_event", OperationUpdate).
				ForAccount("work").
				OnTarget("ann@example.com", "evt42").
				Finish(tt.err))

			record := decodeRecord(t, buf)
			for key, value := range tt.want {
				assert.Equal(t, value, record[key], key)
			}
			for _, key := range tt.missing {
				assert.NotContains(t, record, key)
			}
		})
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	logger, buf := newTestAuditLogger(AuditLoggingConfig{})
	logger.Log(NewToolInvocation("calendar_list_events", OperationList).Finish(nil))
	assert.Zero(t, buf.Len())

	var nilLogger *AuditLogger
	assert.NotPanics(t, func() {
		nilLogger.Log(NewToolInvocation("calendar_list_events", OperationList).Finish(nil))
	})
}
