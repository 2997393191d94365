package google_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calmux/internal/google"
	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/server"
	"github.com/teemow/calmux/internal/tools/common"
)

// RegisterGoogleTools registers all Google OAuth-related tools with the MCP server
func RegisterGoogleTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	getAuthURLTool := mcp.NewTool("google_get_auth_url",
		mcp.WithDescription("Get the OAuth URL to authorize Google Calendar access for an account"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("account",
			mcp.Description("Account name (default: the server's default account)"),
		),
	)

	s.AddTool(getAuthURLTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetAuthURL(ctx, request, sc)
	})

	saveAuthCodeTool := mcp.NewTool("google_save_auth_code",
		mcp.WithDescription("Save the OAuth authorization code to complete Google Calendar authentication for an account"),
		mcp.WithString("account",
			mcp.Description("Account name (default: the server's default account)"),
		),
		mcp.WithString("authCode",
			mcp.Required(),
			mcp.Description("The authorization code from Google OAuth"),
		),
	)

	s.AddTool(saveAuthCodeTool, common.InstrumentedToolHandler(
		"google_save_auth_code", instrumentation.OperationAuthorize, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSaveAuthCode(ctx, request, sc)
		}))

	listAccountsTool := mcp.NewTool("google_list_accounts",
		mcp.WithDescription("List the configured accounts and whether each one is authorized"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(listAccountsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListAccounts(ctx, sc)
	})

	return nil
}

func accountArg(request mcp.CallToolRequest, sc *server.ServerContext) (string, error) {
	account := request.GetString("account", "")
	if account == "" {
		account = sc.DefaultAccount()
	}
	return account, google.ValidateAccountName(account)
}

func handleGetAuthURL(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	account, err := accountArg(request, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !google.HasCredentials() {
		return mcp.NewToolResultError("Google OAuth client credentials are not configured; set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET"), nil
	}

	authURL := google.GetAuthURLForAccount(account)

	result := fmt.Sprintf(`To authorize Google Calendar access for account "%s":

1. Visit this URL in your browser:
   %s

2. Sign in with your Google account
3. Grant access to Google Calendar
4. Copy the authorization code

5. Call the google_save_auth_code tool with the code and account name to complete authentication`, account, authURL)

	return mcp.NewToolResultText(result), nil
}

func handleSaveAuthCode(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	account, err := accountArg(request, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	authCode := request.GetString("authCode", "")
	if authCode == "" {
		return mcp.NewToolResultError("authCode is required"), nil
	}

	if err := sc.SaveAuthCode(ctx, account, authCode); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to save authorization code for account %s: %v", account, err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Authorization successful for account '%s'. The calendar tools can now use this account.", account)), nil
}

// accountStatus is one entry of google_list_accounts.
type accountStatus struct {
	Account       string `json:"account"`
	Default       bool   `json:"default,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

func handleListAccounts(ctx context.Context, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	accounts := sc.Accounts()
	out := make([]accountStatus, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountStatus{
			Account:       a,
			Default:       a == sc.DefaultAccount(),
			Authenticated: sc.HasToken(a),
		})
	}
	return common.JSONResult(out)
}
