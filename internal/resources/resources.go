package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calmux/internal/server"
)

const (
	AccountsURI  = "calmux://accounts"
	CalendarsURI = "calmux://calendars"

	accountCalendarsTemplate = "calmux://accounts/{account}/calendars"
)

// AccountInfo describes one configured account.
type AccountInfo struct {
	Account       string `json:"account"`
	Default       bool   `json:"default,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// RegisterResources registers the account and calendar resources.
func RegisterResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	s.AddResource(mcp.NewResource(
		AccountsURI,
		"Accounts",
		mcp.WithResourceDescription("The configured Google accounts and whether each is authorized"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAccounts(ctx, request, sc)
	})

	s.AddResource(mcp.NewResource(
		CalendarsURI,
		"Calendars",
		mcp.WithResourceDescription("Every calendar visible to the configured accounts, listed once with the access of each account"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleCalendars(ctx, request, sc)
	})

	s.AddResourceTemplate(mcp.NewResourceTemplate(
		accountCalendarsTemplate,
		"Account Calendars",
		mcp.WithTemplateDescription("The calendars visible to one account"),
		mcp.WithTemplateMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAccountCalendars(ctx, request, sc)
	})

	return nil
}

func handleAccounts(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	var accounts []AccountInfo
	for _, a := range sc.Accounts() {
		accounts = append(accounts, AccountInfo{
			Account:       a,
			Default:       a == sc.DefaultAccount(),
			Authenticated: sc.HasToken(a),
		})
	}
	return jsonContents(request.Params.URI, accounts)
}

func handleCalendars(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	resp, err := sc.Operations().ListCalendars(ctx, sc.Accounts())
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return jsonContents(request.Params.URI, resp)
}

func handleAccountCalendars(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	account, err := accountFromURI(request.Params.URI)
	if err != nil {
		return nil, err
	}
	resp, err := sc.Operations().ListCalendars(ctx, []string{account})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars of %s: %w", account, err)
	}
	return jsonContents(request.Params.URI, resp)
}

// accountFromURI extracts the account of calmux://accounts/{account}/calendars.
func accountFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, AccountsURI+"/")
	if !ok {
		return "", fmt.Errorf("unknown resource %q", uri)
	}
	account, ok := strings.CutSuffix(rest, "/calendars")
	if !ok || account == "" || strings.Contains(account, "/") {
		return "", fmt.Errorf("unknown resource %q", uri)
	}
	return account, nil
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
