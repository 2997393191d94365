package calendar_tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/calendar/calendartest"
	"github.com/teemow/calmux/internal/operations"
	"github.com/teemow/calmux/internal/server"
	"github.com/teemow/calmux/internal/tools/batch"
)

func at(day, hour int) time.Time {
	return time.Date(2025, 1, day, hour, 0, 0, 0, time.UTC)
}

func event(title string, start time.Time) calendar.Event {
	return calendar.Event{
		Title: title,
		Start: calendar.EventTime{DateTime: start},
		End:   calendar.EventTime{DateTime: start.Add(time.Hour)},
	}
}

func account(name, primary string) *calendartest.Fake {
	f := calendartest.New(name)
	f.AddCalendar(calendar.CalendarInfo{ID: primary, Summary: primary, Primary: true, AccessRole: calendar.AccessOwner, TimeZone: "UTC"})
	f.AddCalendar(calendar.CalendarInfo{ID: "family-" + name, Summary: "Family", AccessRole: calendar.AccessWriter, TimeZone: "UTC"})
	return f
}

func newServer(t *testing.T, readOnly bool, fakes ...*calendartest.Fake) (*mcpserver.MCPServer, *server.ServerContext) {
	t.Helper()
	accounts := calendartest.NewAccounts(fakes...)
	sc, err := server.NewServerContext(context.Background(), server.Options{
		DefaultAccount: accounts.Default,
		Accounts:       accounts.Accounts(),
		NewService:     accounts.Service,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	s := mcpserver.NewMCPServer("calmux-test", "test", mcpserver.WithToolCapabilities(false))
	require.NoError(t, RegisterCalendarTools(s, sc, readOnly))
	return s, sc
}

func call(t *testing.T, s *mcpserver.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool, ok := s.ListTools()[name]
	require.True(t, ok, "tool %s is not registered", name)

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func text(t *testing.T, result *mcp.CallToolResult, i int) string {
	t.Helper()
	require.Greater(t, len(result.Content), i)
	tc, ok := mcp.AsTextContent(result.Content[i])
	require.True(t, ok)
	return tc.Text
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, result.IsError, text(t, result, 0))
	var out T
	require.NoError(t, json.Unmarshal([]byte(text(t, result, 0)), &out))
	return out
}

func TestRegisterCalendarTools(t *testing.T) {
	readTools := []string{
		"calendar_list_events",
		"calendar_search_events",
		"calendar_export_events",
		"calendar_list_calendars",
		"calendar_reset_registry",
	}
	writeTools := []string{
		"calendar_create_event",
		"calendar_update_event",
		"calendar_commit_proposed_events",
	}

	s, _ := newServer(t, true, account("work", "ann@example.com"))
	tools := s.ListTools()
	assert.Len(t, tools, len(readTools))
	for _, name := range writeTools {
		assert.NotContains(t, tools, name)
	}

	s, _ = newServer(t, false, account("work", "ann@example.com"))
	tools = s.ListTools()
	for _, name := range append(readTools, writeTools...) {
		assert.Contains(t, tools, name)
	}
}

func TestListEvents_AcrossAccounts(t *testing.T) {
	work := account("work", "ann@example.com")
	work.AddEvent("ann@example.com", event("Team Sync", at(15, 10)))
	home := account("home", "ann@home.example")
	home.AddEvent("ann@home.example", event("Dentist", at(15, 8)))
	s, _ := newServer(t, true, work, home)

	resp := decode[operations.ListResponse](t, call(t, s, "calendar_list_events", map[string]any{
		"account": `["work", "home"]`,
		"timeMin": "2025-01-15",
		"timeMax": "2025-01-16",
	}))

	require.Len(t, resp.Events, 2)
	assert.Equal(t, "Dentist", resp.Events[0].Title)
	assert.Equal(t, "home", resp.Events[0].AccountID)
	assert.Equal(t, "Team Sync", resp.Events[1].Title)
	assert.Equal(t, "ann@example.com", resp.Events[1].CalendarID)
}

func TestListEvents_ByCalendarName(t *testing.T) {
	work := account("work", "ann@example.com")
	work.AddEvent("family-work", event("School run", at(15, 7)))
	work.AddEvent("ann@example.com", event("Team Sync", at(15, 10)))
	s, _ := newServer(t, true, work)

	resp := decode[operations.ListResponse](t, call(t, s, "calendar_list_events", map[string]any{
		"calendar": "family",
		"timeMin":  "2025-01-15T00:00:00Z",
		"timeMax":  "2025-01-16T00:00:00Z",
	}))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "School run", resp.Events[0].Title)
}

func TestReadTools_ArgumentErrors(t *testing.T) {
	s, _ := newServer(t, true, account("work", "ann@example.com"))

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"missing window", "calendar_list_events", map[string]any{"timeMax": "2025-01-16"}, "timeMin"},
		{"bad timestamp", "calendar_list_events", map[string]any{"timeMin": "soon", "timeMax": "2025-01-16"}, "timeMin"},
		{"bad time zone", "calendar_list_events", map[string]any{"timeMin": "2025-01-15", "timeMax": "2025-01-16", "timeZone": "Mars/Olympus"}, "timeZone"},
		{"bad account type", "calendar_list_events", map[string]any{"account": 3, "timeMin": "2025-01-15", "timeMax": "2025-01-16"}, "account"},
		{"missing query", "calendar_search_events", map[string]any{"timeMin": "2025-01-15", "timeMax": "2025-01-16"}, "query"},
		{"unknown calendar", "calendar_list_events", map[string]any{"calendar": "Nope", "timeMin": "2025-01-15", "timeMax": "2025-01-16"}, "Nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := call(t, s, tt.tool, tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, text(t, result, 0), tt.want)
		})
	}
}

func TestSearchEvents(t *testing.T) {
	work := account("work", "ann@example.com")
	work.AddEvent("ann@example.com", event("Budget review", at(15, 10)))
	work.AddEvent("ann@example.com", event("Lunch", at(15, 12)))
	s, _ := newServer(t, true, work)

	resp := decode[operations.ListResponse](t, call(t, s, "calendar_search_events", map[string]any{
		"query":   "budget",
		"timeMin": "2025-01-15",
		"timeMax": "2025-01-16",
	}))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "Budget review", resp.Events[0].Title)
}

func TestExportEvents(t *testing.T) {
	work := account("work", "ann@example.com")
	work.AddEvent("ann@example.com", event("Team Sync", at(15, 10)))
	home := calendartest.New("home")
	home.ListCalendarsErr = assert.AnError
	s, _ := newServer(t, true, work, home)

	result := call(t, s, "calendar_export_events", map[string]any{
		"account": []any{"work", "home"},
		"timeMin": "2025-01-15",
		"timeMax": "2025-01-16",
		"name":    "Ann",
	})
	require.False(t, result.IsError)

	doc := text(t, result, 0)
	assert.Contains(t, doc, "BEGIN:VCALENDAR")
	assert.Contains(t, doc, "SUMMARY:Team Sync")
	assert.Contains(t, doc, "X-WR-CALNAME:Ann")
	assert.Contains(t, text(t, result, 1), `"accountId": "home"`)
}

func TestListCalendars(t *testing.T) {
	s, _ := newServer(t, true, account("work", "ann@example.com"), account("home", "ann@home.example"))

	resp := decode[operations.CalendarsResponse](t, call(t, s, "calendar_list_calendars", map[string]any{"account": "all"}))
	var ids []string
	for _, c := range resp.Calendars {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"ann@example.com", "ann@home.example", "family-work", "family-home"}, ids)

	resp = decode[operations.CalendarsResponse](t, call(t, s, "calendar_list_calendars", map[string]any{}))
	assert.Len(t, resp.Calendars, 2)
}

func TestResetRegistry(t *testing.T) {
	work := account("work", "ann@example.com")
	s, _ := newServer(t, true, work)

	call(t, s, "calendar_list_calendars", map[string]any{})
	work.AddCalendar(calendar.CalendarInfo{ID: "new-cal", Summary: "Projects", AccessRole: calendar.AccessOwner})

	resp := decode[operations.CalendarsResponse](t, call(t, s, "calendar_list_calendars", map[string]any{}))
	assert.Len(t, resp.Calendars, 2, "calendar lists are cached")

	result := call(t, s, "calendar_reset_registry", map[string]any{})
	assert.False(t, result.IsError)

	resp = decode[operations.CalendarsResponse](t, call(t, s, "calendar_list_calendars", map[string]any{}))
	assert.Len(t, resp.Calendars, 3)
}

func TestCreateEvent(t *testing.T) {
	work := account("work", "ann@example.com")
	s, _ := newServer(t, false, work)

	args := map[string]any{
		"summary":         "Planning",
		"start":           "2025-01-16T10:00:00Z",
		"end":             "2025-01-16T11:00:00Z",
		"attendees":       "bob@example.com, carol@example.com",
		"guestsCanModify": true,
		"privateProperties": map[string]any{
			"calmuxTaskId": "t1",
		},
	}
	resp := decode[operations.CreateResponse](t, call(t, s, "calendar_create_event", args))
	require.NotNil(t, resp.Event)
	assert.Equal(t, "Planning", resp.Event.Title)
	assert.Len(t, resp.Event.Attendees, 2)
	assert.Equal(t, "work", resp.Event.AccountID)

	stored := work.Events("ann@example.com")
	require.Len(t, stored, 1)
	assert.Equal(t, "t1", stored[0].PrivateProperties["calmuxTaskId"])
	require.NotNil(t, stored[0].GuestsCanModify)
	assert.True(t, *stored[0].GuestsCanModify)

	again := call(t, s, "calendar_create_event", args)
	assert.True(t, again.IsError)
	assert.Contains(t, text(t, again, 0), "Similar events")
	assert.Len(t, work.Events("ann@example.com"), 1)

	args["allowDuplicates"] = true
	resp = decode[operations.CreateResponse](t, call(t, s, "calendar_create_event", args))
	assert.NotEmpty(t, resp.Duplicates)
	assert.Len(t, work.Events("ann@example.com"), 2)
}

func TestCreateEvent_ArgumentErrors(t *testing.T) {
	s, _ := newServer(t, false, account("work", "ann@example.com"))

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"two calendars", map[string]any{"calendar": []any{"a", "b"}, "summary": "x", "start": "2025-01-16T10:00:00Z", "end": "2025-01-16T11:00:00Z"}, "single value"},
		{"bad start", map[string]any{"summary": "x", "start": "tomorrow", "end": "2025-01-16T11:00:00Z"}, "start"},
		{"end before start", map[string]any{"summary": "x", "start": "2025-01-16T11:00:00Z", "end": "2025-01-16T10:00:00Z"}, "end"},
		{"malformed working location", map[string]any{"summary": "x", "start": "2025-01-16", "end": "2025-01-17", "workingLocation": "{"}, "workingLocation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := call(t, s, "calendar_create_event", tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, text(t, result, 0), tt.want)
		})
	}
}

func TestUpdateEvent(t *testing.T) {
	work := account("work", "ann@example.com")
	ev := work.AddEvent("ann@example.com", event("Team Sync", at(15, 10)))
	s, _ := newServer(t, false, work)

	resp := decode[operations.UpdateResponse](t, call(t, s, "calendar_update_event", map[string]any{
		"eventId":  ev.ID,
		"summary":  "Team Sync (moved)",
		"location": "Room 4",
	}))
	require.NotNil(t, resp.Event)
	assert.Equal(t, "Team Sync (moved)", resp.Event.Title)
	assert.Equal(t, "Room 4", work.Events("ann@example.com")[0].Location)
}

func TestUpdateEvent_Batch(t *testing.T) {
	work := account("work", "ann@example.com")
	ev := work.AddEvent("ann@example.com", event("Team Sync", at(15, 10)))
	s, _ := newServer(t, false, work)

	summary := decode[batch.Summary](t, call(t, s, "calendar_update_event", map[string]any{
		"eventId": []any{ev.ID, "missing01"},
		"status":  "tentative",
	}))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, batch.StatusError, summary.Results[1].Status)
	assert.Equal(t, calendar.StatusTentative, work.Events("ann@example.com")[0].Status)

	result := call(t, s, "calendar_update_event", map[string]any{"eventId": ev.ID})
	assert.True(t, result.IsError, "an update without changes is rejected")
}

func TestCommitProposedEvents(t *testing.T) {
	work := account("work", "ann@example.com")
	s, _ := newServer(t, false, work)

	args := map[string]any{
		"proposedEvents": `[
			{"id": "p1", "taskId": "t1", "title": "Write report", "start": "2025-01-17T09:00:00Z", "end": "2025-01-17T10:00:00Z"},
			{"id": "p2", "taskId": "t2", "title": "Review", "start": "2025-01-17T12:00:00Z", "end": "2025-01-17T11:00:00Z"}
		]`,
	}
	resp := decode[operations.CommitResponse](t, call(t, s, "calendar_commit_proposed_events", args))
	require.Len(t, resp.CreatedEvents, 1)
	assert.Equal(t, "Write report", resp.CreatedEvents[0].Title)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "Failed to create event 'Review'")

	resp = decode[operations.CommitResponse](t, call(t, s, "calendar_commit_proposed_events", args))
	assert.Empty(t, resp.CreatedEvents)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, "p1", resp.Skipped[0].ProposedEventID)

	missing := call(t, s, "calendar_commit_proposed_events", map[string]any{})
	assert.True(t, missing.IsError)
}
