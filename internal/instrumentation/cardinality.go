package instrumentation

import "strings"

// Operation labels of Google Calendar API calls and MCP tool calls.
const (
	OperationList          = "list"
	OperationBatchList     = "batch_list"
	OperationListCalendars = "list_calendars"
	OperationGet           = "get"
	OperationCreate        = "create"
	OperationUpdate        = "update"
	OperationSearch        = "search"
	OperationExport        = "export"
	OperationCommit        = "commit"
	OperationReset         = "reset"
	OperationAuthorize     = "authorize"
)

// Calendar kinds returned by CalendarKind.
const (
	CalendarPrimary  = "primary"
	CalendarUser     = "user"
	CalendarGroup    = "group"
	CalendarResource = "resource"
	CalendarHoliday  = "holiday"
	CalendarOther    = "other"
)

// CalendarKind reduces a calendar ID to a label of bounded cardinality.
//
//	CalendarKind("primary")                             // "primary"
//	CalendarKind("ann@example.com")                     // "user"
//	CalendarKind("abc@group.calendar.google.com")       // "group"
//	CalendarKind("c_123@resource.calendar.google.com")  // "resource"
//	CalendarKind("en.german#holiday@group.v.calendar.google.com") // "holiday"
func CalendarKind(calendarID string) string {
	id := strings.ToLower(strings.TrimSpace(calendarID))
	_, domain, found := strings.Cut(id, "@")
	switch {
	case id == "primary":
		return CalendarPrimary
	case strings.Contains(id, "#holiday@"):
		return CalendarHoliday
	case !found || domain == "":
		return CalendarOther
	case domain == "group.calendar.google.com":
		return CalendarGroup
	case domain == "resource.calendar.google.com":
		return CalendarResource
	case strings.HasSuffix(domain, ".calendar.google.com"):
		return CalendarOther
	default:
		return CalendarUser
	}
}

// AccountLabel returns the account as a metric label. Account names are
// configured, not user input, so they are bounded; an email-like value is
// reduced to its domain.
func AccountLabel(account string) string {
	if account == "" {
		return "unknown"
	}
	if _, domain, ok := strings.Cut(account, "@"); ok {
		if domain == "" {
			return "unknown"
		}
		return domain
	}
	return account
}
