package calendar_tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calmux/internal/export"
	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/operations"
	"github.com/teemow/calmux/internal/server"
	"github.com/teemow/calmux/internal/tools/common"
)

// RegisterEventTools registers the read-only event tools with the MCP server
func RegisterEventTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listEventsTool := mcp.NewTool("calendar_list_events",
		append([]mcp.ToolOption{
			mcp.WithDescription("List events of one or more calendars across accounts within a time window. " +
				"Events are merged in chronological order; unreadable accounts or calendars are reported " +
				"as partialFailures while the rest are returned."),
			mcp.WithReadOnlyHintAnnotation(true),
		}, windowOptions()...)...,
	)

	s.AddTool(listEventsTool, common.InstrumentedToolHandler(
		"calendar_list_events", instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEvents(ctx, request, sc)
		}))

	searchEventsTool := mcp.NewTool("calendar_search_events",
		append([]mcp.ToolOption{
			mcp.WithDescription("Search events by free text (title, description, location, attendees) " +
				"across calendars and accounts within a time window"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Free text to search for"),
			),
		}, windowOptions()...)...,
	)

	s.AddTool(searchEventsTool, common.InstrumentedToolHandler(
		"calendar_search_events", instrumentation.OperationSearch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchEvents(ctx, request, sc)
		}))

	exportEventsTool := mcp.NewTool("calendar_export_events",
		append([]mcp.ToolOption{
			mcp.WithDescription("Export the events of a time window as an iCalendar (.ics) document"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("name",
				mcp.Description("Calendar name published in the document (X-WR-CALNAME)"),
			),
		}, windowOptions()...)...,
	)

	s.AddTool(exportEventsTool, common.InstrumentedToolHandler(
		"calendar_export_events", instrumentation.OperationExport, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleExportEvents(ctx, request, sc)
		}))

	return nil
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	req, err := listRequest(request.GetArguments())
	if err != nil {
		return common.ErrorResult(err), nil
	}

	resp, err := sc.Operations().List(ctx, req)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(resp)
}

func handleSearchEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req, err := listRequest(args)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	resp, err := sc.Operations().Search(ctx, operations.SearchRequest{
		ListRequest: req,
		Query:       stringArg(args, "query"),
	})
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(resp)
}

func handleExportEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req, err := listRequest(args)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	resp, err := sc.Operations().List(ctx, req)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	name := stringArg(args, "name")
	if name == "" {
		name = "calmux"
	}
	doc := export.String(resp.Events, export.Options{Name: name, TimeZone: stringArg(args, "timeZone")})

	result := mcp.NewToolResultText(doc)
	if len(resp.Warnings) > 0 || len(resp.PartialFailures) > 0 {
		// Problems go into a second content block so the first stays a valid document.
		notes, _ := json.MarshalIndent(struct {
			Warnings        []string                    `json:"warnings,omitempty"`
			PartialFailures []operations.PartialFailure `json:"partialFailures,omitempty"`
		}{resp.Warnings, resp.PartialFailures}, "", "  ")
		result.Content = append(result.Content, mcp.NewTextContent(string(notes)))
	}
	return result, nil
}
