package common

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/server"
)

// ToolHandler is the signature of an MCP tool handler.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a trace span, metrics and
// audit logging. operation is one of the instrumentation Operation constants.
//
//	s.AddTool(tool, common.InstrumentedToolHandler("calendar_list_events", instrumentation.OperationList, sc, handler))
func InstrumentedToolHandler(toolName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		account := AccountFromArgs(args)
		calendarID, _ := SingleValue(args, "calendar")
		eventID, _ := args["eventId"].(string)

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, operation,
			instrumentation.TargetAttributes(account, calendarID)...)
		defer span.End()

		invocation := instrumentation.NewToolInvocation(toolName, operation).
			ForAccount(account).
			OnTarget(calendarID, eventID).
			WithSpanContext(ctx)

		result, err := handler(ctx, request)

		failure := err
		if failure == nil && result != nil && result.IsError {
			failure = errors.New(resultText(result))
		}
		invocation.Finish(failure)
		instrumentation.SetSpanStatus(span, failure)

		sc.Metrics().RecordToolInvocation(ctx, toolName, account, invocation.Status(), invocation.Duration)
		sc.AuditLogger().Log(invocation)

		return result, err
	}
}

// resultText returns the text of the first text content of result.
func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			return tc.Text
		}
	}
	return "tool returned an error"
}
