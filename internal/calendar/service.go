package calendar

import "context"

// CalendarLister lists the calendars visible to one account.
type CalendarLister interface {
	Account() string
	ListCalendars(ctx context.Context) ([]CalendarInfo, error)
}

// EventLister lists events of a single calendar.
type EventLister interface {
	Account() string
	ListEvents(ctx context.Context, calendarID string, q EventQuery) ([]Event, error)
}

// ListResult is the outcome of listing one calendar inside a batch.
type ListResult struct {
	CalendarID string
	Events     []Event
	Err        error
}

// BatchEventLister lists several calendars of one account in a single round
// trip. Results are returned in the order of calendarIDs and a failure of one
// calendar never affects the others.
type BatchEventLister interface {
	BatchListEvents(ctx context.Context, calendarIDs []string, q EventQuery) ([]ListResult, error)
}

// EventMutator reads and writes single events.
type EventMutator interface {
	GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error)
	InsertEvent(ctx context.Context, calendarID string, ev *Event, opts InsertOptions) (*Event, error)
	PatchEvent(ctx context.Context, calendarID, eventID string, patch *EventPatch) (*Event, error)
}

// Service is everything the calendar core needs from one authenticated account.
type Service interface {
	CalendarLister
	EventLister
	EventMutator
}
