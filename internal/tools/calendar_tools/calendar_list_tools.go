package calendar_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/server"
	"github.com/teemow/calmux/internal/tools/common"
)

// RegisterCalendarListTools registers calendar list tools with the MCP server
func RegisterCalendarListTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listCalendarsTool := mcp.NewTool("calendar_list_calendars",
		mcp.WithDescription("List the calendars of one or more accounts. A calendar shared with several "+
			"accounts is listed once with the access role of each account. Use the names or IDs with "+
			"the calendar argument of the other tools."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("account",
			mcp.Description(accountDescription+" Use \"all\" for every configured account."),
		),
	)

	s.AddTool(listCalendarsTool, common.InstrumentedToolHandler(
		"calendar_list_calendars", instrumentation.OperationListCalendars, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListCalendars(ctx, request, sc)
		}))

	resetRegistryTool := mcp.NewTool("calendar_reset_registry",
		mcp.WithDescription("Forget the cached calendar lists so newly created or shared calendars "+
			"are picked up by the next request"),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(resetRegistryTool, common.InstrumentedToolHandler(
		"calendar_reset_registry", instrumentation.OperationReset, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			sc.Operations().Registry().Reset()
			return mcp.NewToolResultText("Calendar registry cleared; calendar lists will be fetched again on next use."), nil
		}))

	return nil
}

func handleListCalendars(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	accounts, err := common.Accounts(request.GetArguments())
	if err != nil {
		return common.ErrorResult(err), nil
	}
	if len(accounts) == 1 && accounts[0] == "all" {
		accounts = sc.Accounts()
	}

	resp, err := sc.Operations().ListCalendars(ctx, accounts)
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return common.JSONResult(resp)
}
