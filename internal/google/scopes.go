package google

import gcal "google.golang.org/api/calendar/v3"

// DefaultOAuthScopes are the scopes requested when authorizing an account.
// Listing calendars needs more than the events scope, so the full calendar
// scope is requested.
var DefaultOAuthScopes = []string{
	gcal.CalendarScope,
}
