package cmd

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/server"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools.
The registered tools are introspected, so the documentation always matches
the tool definitions, including the write tools only enabled with --yolo.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func init() {
	rootCmd.AddCommand(newGenerateDocsCmd())
}

// listTools registers the tools on a server without calendar access and
// returns their definitions.
func listTools(readOnly bool) ([]mcp.Tool, error) {
	sc, err := server.NewServerContext(context.Background(), server.Options{
		NewService: func(ctx context.Context, account string) (calendar.Service, error) {
			return nil, errors.New("no calendar access while generating documentation")
		},
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = sc.Shutdown()
	}()

	mcpSrv := mcpserver.NewMCPServer("calmux", version, mcpserver.WithToolCapabilities(true))
	if err := registerAllTools(mcpSrv, sc, readOnly); err != nil {
		return nil, err
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
	}
	return tools, nil
}

func runGenerateDocs(outputFile string) error {
	tools, err := listTools(false)
	if err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}
	readOnlyTools, err := listTools(true)
	if err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}
	markdown := generateToolsMarkdown(tools, writeTools(tools, readOnlyTools))

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}
	return nil
}

// writeTools returns the names of the tools missing from the read-only set.
func writeTools(all, readOnly []mcp.Tool) map[string]bool {
	out := make(map[string]bool)
	for _, t := range all {
		out[t.Name] = true
	}
	for _, t := range readOnly {
		delete(out, t.Name)
	}
	return out
}

func generateToolsMarkdown(tools []mcp.Tool, write map[string]bool) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("This document lists every tool available when running calmux as an MCP server.\n")
	sb.WriteString("It is generated from the registered tool definitions; do not edit it by hand.\n\n")

	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		byCategory[category] = append(byCategory[category], tool)
	}
	categories := slices.Sorted(maps.Keys(byCategory))

	sb.WriteString("## Contents\n\n")
	for _, category := range categories {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", category, strings.ToLower(strings.ReplaceAll(category, " ", "-")))
	}
	sb.WriteString("\n")

	sb.WriteString("## Accounts and Calendars\n\n")
	sb.WriteString("Calendar tools take optional `account` and `calendar` arguments. Both accept a single value, ")
	sb.WriteString("an array, or a JSON array string:\n\n")
	sb.WriteString("- **No account:** read tools aggregate every configured account, write tools use the default account\n")
	sb.WriteString("- **No calendar:** the primary calendar of each account is used\n")
	sb.WriteString("- **Calendar names:** a calendar can be named by its ID or its display name\n\n")
	sb.WriteString("Tools marked *write* are only registered when the server runs with `--yolo`.\n\n")

	for _, category := range categories {
		group := byCategory[category]
		slices.SortFunc(group, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })

		fmt.Fprintf(&sb, "## %s\n\n", category)
		for _, tool := range group {
			sb.WriteString(generateToolMarkdown(tool, write[tool.Name]))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func getCategoryFromToolName(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	switch prefix {
	case "calendar":
		return "Calendar Tools"
	case "google":
		return "Account Tools"
	default:
		return "Other"
	}
}

// generateToolMarkdown renders one tool with its arguments in name order.
func generateToolMarkdown(tool mcp.Tool, write bool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)
	if write {
		sb.WriteString("*write*\n\n")
	}
	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		return sb.String()
	}

	sb.WriteString("**Arguments:**\n")
	for _, name := range slices.Sorted(maps.Keys(props)) {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		presence := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			presence = "required"
		}
		typ, _ := prop["type"].(string)
		if typ == "" {
			typ = "any"
		}
		desc, _ := prop["description"].(string)
		if desc == "" {
			desc = typ + " parameter"
		}
		fmt.Fprintf(&sb, "- `%s` (%s, %s): %s\n", name, typ, presence, desc)
	}
	sb.WriteString("\n")

	return sb.String()
}
