package calendar_tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/operations"
	"github.com/teemow/calmux/internal/server"
	"github.com/teemow/calmux/internal/tools/batch"
	"github.com/teemow/calmux/internal/tools/common"
)

const (
	accountDescription = "Account name, or a list of account names as an array or JSON array string. " +
		"Defaults to the server's default account."
	calendarDescription = "Calendar name or ID, or a list of them as an array or JSON array string. " +
		"Names are matched case-insensitively across all requested accounts. Defaults to each account's primary calendar."
	timeDescription = "RFC3339 timestamp (2025-01-15T14:00:00Z), local timestamp (2025-01-15T14:00:00) or date (2025-01-15)"
)

// RegisterCalendarTools registers all Calendar-related tools with the MCP server.
// Tools that write to calendars are only registered when readOnly is false.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterEventTools(s, sc); err != nil {
		return fmt.Errorf("failed to register event tools: %w", err)
	}

	if err := RegisterCalendarListTools(s, sc); err != nil {
		return fmt.Errorf("failed to register calendar list tools: %w", err)
	}

	if !readOnly {
		if err := RegisterSchedulingTools(s, sc); err != nil {
			return fmt.Errorf("failed to register scheduling tools: %w", err)
		}
	}

	return nil
}

// stringArg returns a trimmed string argument.
func stringArg(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return strings.TrimSpace(v)
}

// stringPtrArg returns nil when the argument is absent. An empty string is
// kept so callers can clear a field.
func stringPtrArg(args map[string]any, name string) *string {
	v, ok := args[name].(string)
	if !ok {
		return nil
	}
	return &v
}

func boolPtrArg(args map[string]any, name string) *bool {
	v, ok := args[name].(bool)
	if !ok {
		return nil
	}
	return &v
}

func boolArg(args map[string]any, name string) bool {
	v, _ := args[name].(bool)
	return v
}

func numberArg(args map[string]any, name string) float64 {
	v, _ := args[name].(float64)
	return v
}

// eventTimeArg parses a start or end argument. A timestamp without offset is
// placed in tz, or in the calendar's zone when tz is empty.
func eventTimeArg(args map[string]any, name, tz string) (*calendar.EventTime, error) {
	v := stringArg(args, name)
	if v == "" {
		return nil, nil
	}
	t, err := calendar.ParseEventTime(v, tz)
	if err != nil {
		return nil, &operations.ValidationError{Field: name, Message: err.Error(), Err: err}
	}
	return &t, nil
}

// instantArg parses a window boundary. Local timestamps and dates are read in
// tz, which defaults to UTC.
func instantArg(args map[string]any, name, tz string) (time.Time, error) {
	v := stringArg(args, name)
	if v == "" {
		return time.Time{}, &operations.ValidationError{Field: name, Message: "is required"}
	}
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, &operations.ValidationError{Field: "timeZone", Message: err.Error(), Err: err}
	}
	t, err := calendar.ParseEventTime(v, tz)
	if err != nil {
		return time.Time{}, &operations.ValidationError{Field: name, Message: err.Error(), Err: err}
	}
	if t.IsAllDay() {
		d, _ := time.ParseInLocation(calendar.DateLayout, t.Date, loc)
		return d, nil
	}
	return t.DateTime, nil
}

// listArg parses a string-or-array argument where a single string may also
// hold comma separated values.
func listArg(args map[string]any, name string) ([]string, error) {
	values, err := batch.ParseOptionalStringOrArray(args[name], name)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out, nil
}

func attendeesArg(args map[string]any, name string) ([]calendar.Attendee, error) {
	emails, err := listArg(args, name)
	if err != nil || emails == nil {
		return nil, err
	}
	attendees := make([]calendar.Attendee, 0, len(emails))
	for _, email := range emails {
		attendees = append(attendees, calendar.Attendee{Email: email})
	}
	return attendees, nil
}

// decodeArg decodes an object argument, given either as an object or as a
// JSON string, into dst. It reports whether the argument was present.
func decodeArg(args map[string]any, name string, dst any) (bool, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return false, nil
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return false, nil
		}
		data = []byte(v)
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return false, &operations.ValidationError{Field: name, Message: err.Error(), Err: err}
		}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, &operations.ValidationError{Field: name, Message: "malformed value: " + err.Error(), Err: err}
	}
	return true, nil
}

// listRequest reads the arguments shared by the list, search and export tools.
func listRequest(args map[string]any) (operations.ListRequest, error) {
	var req operations.ListRequest
	var err error
	if req.Accounts, err = common.Accounts(args); err != nil {
		return req, err
	}
	if req.Calendars, err = common.Calendars(args); err != nil {
		return req, err
	}
	tz := stringArg(args, "timeZone")
	if req.TimeMin, err = instantArg(args, "timeMin", tz); err != nil {
		return req, err
	}
	if req.TimeMax, err = instantArg(args, "timeMax", tz); err != nil {
		return req, err
	}
	if n := numberArg(args, "maxResults"); n > 0 {
		req.MaxResults = int64(n)
	}
	req.ExpandRecurring = boolPtrArg(args, "expandRecurring")
	if req.PrivateExtendedProperty, err = listArg(args, "privateExtendedProperty"); err != nil {
		return req, err
	}
	return req, nil
}

// windowOptions are the tool options of listRequest.
func windowOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("account", mcp.Description(accountDescription)),
		mcp.WithString("calendar", mcp.Description(calendarDescription)),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start of the time window. "+timeDescription),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End of the time window (exclusive). "+timeDescription),
		),
		mcp.WithString("timeZone",
			mcp.Description("IANA time zone for local timestamps and dates in the window (default: UTC)"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of events per calendar"),
		),
		mcp.WithBoolean("expandRecurring",
			mcp.Description("Expand recurring events into single occurrences (default: true)"),
		),
		mcp.WithString("privateExtendedProperty",
			mcp.Description("Only events carrying these private properties, as key=value (comma separated or array)"),
		),
	}
}
