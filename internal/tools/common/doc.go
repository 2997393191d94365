// Package common holds the argument parsing, result encoding and
// instrumentation shared by the calmux MCP tools.
package common
