// Package cmd implements the command-line interface for calmux.
//
// This package provides the following commands:
//   - serve: Start the MCP server to provide calendar tools for AI assistants
//   - calendars: List the calendars of the configured accounts
//   - commit: Write proposed events from a JSON file to a calendar
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
package cmd
