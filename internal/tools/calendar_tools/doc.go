// Package calendar_tools exposes the calmux calendar operations as MCP tools.
//
// Read tools list, search and export events and list calendars across any
// number of accounts. Write tools create and update events and commit
// proposed schedules; they are only registered when the server runs with
// write access. Every result is a JSON document of the operation response,
// except calendar_export_events which returns an iCalendar document.
//
// The account and calendar arguments accept a single value, an array, or a
// string holding a JSON array.
package calendar_tools
