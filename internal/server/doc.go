// Package server provides the MCP server context and the HTTP surfaces of
// calmux.
//
// ServerContext creates one calendar client per account on first use and
// caches it. It implements operations.ClientProvider, so every operation
// resolves accounts through it. Tokens come from a google.TokenProvider.
//
// HTTPServer serves, on a single port:
//   - the MCP streamable HTTP transport on /mcp
//   - the REST API on /api/calendar (GET lists events as JSON or iCalendar,
//     POST commits proposed events)
//   - health probes on /healthz, /readyz and /healthz/detailed
//
// MetricsServer exposes Prometheus metrics on a dedicated port.
package server
