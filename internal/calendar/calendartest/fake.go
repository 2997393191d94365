// Package calendartest provides an in-memory calendar.Service for tests.
package calendartest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"

	"github.com/teemow/calmux/internal/calendar"
)

// Call records one mutating request made against a Fake.
type Call struct {
	CalendarID string
	EventID    string
	Event      calendar.Event
	Patch      *calendar.EventPatch
	Options    calendar.InsertOptions
}

// Fake is an in-memory calendar.Service for one account.
type Fake struct {
	mu sync.Mutex

	account   string
	calendars []calendar.CalendarInfo
	events    map[string][]calendar.Event
	nextID    int

	// ListCalendarsErr fails ListCalendars when set.
	ListCalendarsErr error
	// ListErr fails ListEvents for the given calendar IDs.
	ListErr map[string]error
	// InsertErr, when set, is consulted before every insert.
	InsertErr func(calendarID string, ev *calendar.Event) error
	// PatchErr, when set, is consulted before every patch.
	PatchErr func(calendarID, eventID string, patch *calendar.EventPatch) error

	Inserts  []Call
	Patches  []Call
	Gets     []Call
	Listings []string
}

var _ calendar.Service = (*Fake)(nil)

// New returns an empty fake for account.
func New(account string) *Fake {
	return &Fake{
		account: account,
		events:  map[string][]calendar.Event{},
		ListErr: map[string]error{},
	}
}

// AddCalendar registers a calendar. AccountID is filled in.
func (f *Fake) AddCalendar(info calendar.CalendarInfo) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	info.AccountID = f.account
	f.calendars = append(f.calendars, info)
	if _, ok := f.events[info.ID]; !ok {
		f.events[info.ID] = nil
	}
	return f
}

// AddEvent stores ev in calendarID, assigning an ID when missing, and returns
// the stored copy.
func (f *Fake) AddEvent(calendarID string, ev calendar.Event) calendar.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store(calendarID, ev)
}

func (f *Fake) store(calendarID string, ev calendar.Event) calendar.Event {
	if ev.ID == "" {
		f.nextID++
		ev.ID = fmt.Sprintf("fake%05d", f.nextID)
	}
	if ev.Status == "" {
		ev.Status = calendar.StatusConfirmed
	}
	ev.CalendarID = calendarID
	ev.AccountID = f.account
	f.events[calendarID] = append(f.events[calendarID], ev)
	return ev
}

// Events returns a snapshot of the events stored in calendarID.
func (f *Fake) Events(calendarID string) []calendar.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calendar.Event(nil), f.events[calendarID]...)
}

// Account implements calendar.Service.
func (f *Fake) Account() string { return f.account }

// ListCalendars implements calendar.Service.
func (f *Fake) ListCalendars(ctx context.Context) ([]calendar.CalendarInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListCalendarsErr != nil {
		return nil, f.ListCalendarsErr
	}
	return append([]calendar.CalendarInfo(nil), f.calendars...), nil
}

// ListEvents implements calendar.Service. It filters by time window, free
// text in the title, and private or shared extended properties.
func (f *Fake) ListEvents(ctx context.Context, calendarID string, q calendar.EventQuery) ([]calendar.Event, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Listings = append(f.Listings, calendarID)

	if err := f.ListErr[calendarID]; err != nil {
		return nil, err
	}
	stored, ok := f.events[calendarID]
	if !ok {
		return nil, &googleapi.Error{Code: http.StatusNotFound, Message: "Not Found"}
	}

	var out []calendar.Event
	for _, ev := range stored {
		if matches(ev, q) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].Start.Instant()
		b, _ := out[j].Start.Instant()
		return a.Before(b)
	})
	if q.MaxResults > 0 && int64(len(out)) > q.MaxResults {
		out = out[:q.MaxResults]
	}
	return out, nil
}

func matches(ev calendar.Event, q calendar.EventQuery) bool {
	start, okStart := ev.Start.Instant()
	end, okEnd := ev.End.Instant()
	if !q.TimeMin.IsZero() && okEnd && !end.After(q.TimeMin) {
		return false
	}
	if !q.TimeMax.IsZero() && okStart && !start.Before(q.TimeMax) {
		return false
	}
	if q.Query != "" && !strings.Contains(strings.ToLower(ev.Title), strings.ToLower(q.Query)) {
		return false
	}
	for _, kv := range q.PrivateExtendedProperty {
		k, v, _ := strings.Cut(kv, "=")
		if ev.PrivateProperties[k] != v {
			return false
		}
	}
	for _, kv := range q.SharedExtendedProperty {
		k, v, _ := strings.Cut(kv, "=")
		if ev.SharedProperties[k] != v {
			return false
		}
	}
	return true
}

// GetEvent implements calendar.Service.
func (f *Fake) GetEvent(ctx context.Context, calendarID, eventID string) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets = append(f.Gets, Call{CalendarID: calendarID, EventID: eventID})
	for _, ev := range f.events[calendarID] {
		if ev.ID == eventID {
			out := ev
			return &out, nil
		}
	}
	return nil, &googleapi.Error{Code: http.StatusNotFound, Message: "Not Found"}
}

// InsertEvent implements calendar.Service. Reusing an existing ID yields the
// 409 Google returns for duplicate identifiers.
func (f *Fake) InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event, opts calendar.InsertOptions) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Inserts = append(f.Inserts, Call{CalendarID: calendarID, EventID: ev.ID, Event: *ev, Options: opts})

	if f.InsertErr != nil {
		if err := f.InsertErr(calendarID, ev); err != nil {
			return nil, err
		}
	}
	if _, ok := f.events[calendarID]; !ok {
		return nil, &googleapi.Error{Code: http.StatusNotFound, Message: "Not Found"}
	}
	if ev.ID != "" {
		for _, existing := range f.events[calendarID] {
			if existing.ID == ev.ID {
				return nil, &googleapi.Error{
					Code:    http.StatusConflict,
					Message: "The requested identifier already exists.",
					Errors:  []googleapi.ErrorItem{{Reason: "duplicate"}},
				}
			}
		}
	}

	stored := f.store(calendarID, *ev)
	if opts.ConferenceRequestID != "" {
		stored.MeetLink = "https://meet.google.com/" + opts.ConferenceRequestID
		f.events[calendarID][len(f.events[calendarID])-1] = stored
	}
	return &stored, nil
}

// PatchEvent implements calendar.Service.
func (f *Fake) PatchEvent(ctx context.Context, calendarID, eventID string, patch *calendar.EventPatch) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Patches = append(f.Patches, Call{CalendarID: calendarID, EventID: eventID, Patch: patch})

	if f.PatchErr != nil {
		if err := f.PatchErr(calendarID, eventID, patch); err != nil {
			return nil, err
		}
	}
	for i, ev := range f.events[calendarID] {
		if ev.ID == eventID {
			updated := patch.ApplyTo(ev)
			f.events[calendarID][i] = updated
			return &updated, nil
		}
	}
	return nil, &googleapi.Error{Code: http.StatusNotFound, Message: "Not Found"}
}

// Batching wraps a Fake with a calendar.BatchEventLister implementation that
// counts round trips.
type Batching struct {
	*Fake
	Batches int
}

var _ calendar.BatchEventLister = (*Batching)(nil)

// BatchListEvents implements calendar.BatchEventLister.
func (b *Batching) BatchListEvents(ctx context.Context, calendarIDs []string, q calendar.EventQuery) ([]calendar.ListResult, error) {
	b.mu.Lock()
	b.Batches++
	b.mu.Unlock()

	out := make([]calendar.ListResult, len(calendarIDs))
	for i, id := range calendarIDs {
		events, err := b.ListEvents(ctx, id, q)
		out[i] = calendar.ListResult{CalendarID: id, Events: events, Err: err}
	}
	return out, nil
}
