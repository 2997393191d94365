// Package resources provides MCP resources describing the configured
// accounts and the calendars they can reach. Resources are read-only data
// that MCP clients can fetch without calling a tool.
package resources
