package calendar

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout Google Calendar uses for all-day event dates.
const DateLayout = "2006-01-02"

// localLayout is accepted for wall-clock input without a UTC offset.
const localLayout = "2006-01-02T15:04:05"

// Status is the lifecycle status of an event.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusTentative Status = "tentative"
	StatusCancelled Status = "cancelled"
)

// AccessRole is the caller's access level on a calendar.
type AccessRole string

const (
	AccessOwner          AccessRole = "owner"
	AccessWriter         AccessRole = "writer"
	AccessReader         AccessRole = "reader"
	AccessFreeBusyReader AccessRole = "freeBusyReader"
)

// Rank orders roles from weakest to strongest. Unknown roles rank lowest.
func (r AccessRole) Rank() int {
	switch r {
	case AccessOwner:
		return 4
	case AccessWriter:
		return 3
	case AccessReader:
		return 2
	case AccessFreeBusyReader:
		return 1
	default:
		return 0
	}
}

// CanWrite reports whether events can be created with this role.
func (r AccessRole) CanWrite() bool {
	return r == AccessOwner || r == AccessWriter
}

// Event type values understood by Google Calendar.
const (
	EventTypeDefault         = "default"
	EventTypeOutOfOffice     = "outOfOffice"
	EventTypeFocusTime       = "focusTime"
	EventTypeWorkingLocation = "workingLocation"
)

// EventTime is one boundary of an event: either a timestamped instant or an
// all-day date.
type EventTime struct {
	DateTime time.Time `json:"dateTime,omitzero"`
	Date     string    `json:"date,omitempty"`
	TimeZone string    `json:"timeZone,omitempty"`

	// Floating marks a wall-clock DateTime parsed without an offset. It is
	// rebased into the calendar's time zone before use.
	Floating bool `json:"-"`
}

// IsZero reports whether neither a date nor a date-time is set.
func (t EventTime) IsZero() bool {
	return t.Date == "" && t.DateTime.IsZero()
}

// IsAllDay reports whether the boundary is a date without a time component.
func (t EventTime) IsAllDay() bool {
	return t.Date != ""
}

// Instant returns the boundary as an instant. All-day dates are interpreted
// as midnight UTC. The second return value is false when the boundary is
// missing or unparseable.
func (t EventTime) Instant() (time.Time, bool) {
	return t.InstantIn(time.UTC)
}

// InstantIn is Instant with all-day dates placed at midnight in loc, the zone
// of the calendar holding the event. A nil loc means UTC.
func (t EventTime) InstantIn(loc *time.Location) (time.Time, bool) {
	if t.Date != "" {
		if loc == nil {
			loc = time.UTC
		}
		d, err := time.ParseInLocation(DateLayout, t.Date, loc)
		if err != nil {
			return time.Time{}, false
		}
		return d, true
	}
	if t.DateTime.IsZero() {
		return time.Time{}, false
	}
	return t.DateTime, true
}

// InLocation rebases a floating wall-clock time into loc. Non-floating
// values are returned unchanged.
func (t EventTime) InLocation(loc *time.Location) EventTime {
	if !t.Floating || loc == nil {
		return t
	}
	dt := t.DateTime
	t.DateTime = time.Date(dt.Year(), dt.Month(), dt.Day(), dt.Hour(), dt.Minute(), dt.Second(), dt.Nanosecond(), loc)
	t.Floating = false
	if t.TimeZone == "" {
		t.TimeZone = loc.String()
	}
	return t
}

// ParseEventTime parses user input into an EventTime.
//
// Accepted forms are a date ("2025-01-15", all-day), an RFC3339 timestamp,
// and a local timestamp without offset ("2025-01-15T10:00:00"). When tz names
// a valid IANA zone a local timestamp is placed in it, otherwise the result is
// marked Floating.
func ParseEventTime(value, tz string) (EventTime, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return EventTime{}, fmt.Errorf("time value is empty")
	}

	if len(value) == len(DateLayout) {
		if _, err := time.Parse(DateLayout, value); err != nil {
			return EventTime{}, fmt.Errorf("invalid date %q: %w", value, err)
		}
		return EventTime{Date: value}, nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return EventTime{DateTime: t, TimeZone: tz}, nil
	}

	t, err := time.Parse(localLayout, value)
	if err != nil {
		return EventTime{}, fmt.Errorf("invalid time %q: expected RFC3339, %s or %s", value, localLayout, DateLayout)
	}

	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return EventTime{}, fmt.Errorf("invalid time zone %q: %w", tz, err)
		}
		return EventTime{DateTime: t, TimeZone: tz, Floating: true}.InLocation(loc), nil
	}

	return EventTime{DateTime: t, Floating: true}, nil
}

// Attendee is a guest of an event.
type Attendee struct {
	Email            string `json:"email"`
	DisplayName      string `json:"displayName,omitempty"`
	Optional         bool   `json:"optional,omitempty"`
	ResponseStatus   string `json:"responseStatus,omitempty"` // "needsAction", "declined", "tentative", "accepted"
	Comment          string `json:"comment,omitempty"`
	AdditionalGuests int64  `json:"additionalGuests,omitempty"`
	Organizer        bool   `json:"organizer,omitempty"`
	Self             bool   `json:"self,omitempty"`
	Resource         bool   `json:"resource,omitempty"`
	ID               string `json:"id,omitempty"`
}

// Reminders configures event notifications.
type Reminders struct {
	UseDefault bool       `json:"useDefault"`
	Overrides  []Reminder `json:"overrides,omitempty"`
}

// Reminder is a single reminder override.
type Reminder struct {
	Method  string `json:"method"` // "email" or "popup"
	Minutes int64  `json:"minutes"`
}

// WorkingLocation describes where the user works for a workingLocation event.
type WorkingLocation struct {
	Type        string `json:"type"` // "homeOffice", "officeLocation", "customLocation"
	OfficeLabel string `json:"officeLabel,omitempty"`
	CustomLabel string `json:"customLabel,omitempty"`
	BuildingID  string `json:"buildingId,omitempty"`
	FloorID     string `json:"floorId,omitempty"`
	DeskID      string `json:"deskId,omitempty"`
}

// AutoDecline configures automatic declines for outOfOffice and focusTime events.
type AutoDecline struct {
	Mode           string `json:"autoDeclineMode,omitempty"`
	DeclineMessage string `json:"declineMessage,omitempty"`
	ChatStatus     string `json:"chatStatus,omitempty"`
}

// Event is a calendar event together with the account and calendar it was
// read from or written to.
type Event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	Status      Status     `json:"status,omitempty"`

	Recurrence        []string   `json:"recurrence,omitempty"`
	RecurringEventID  string     `json:"recurringEventId,omitempty"`
	OriginalStartTime *EventTime `json:"originalStartTime,omitempty"`

	EventType       string           `json:"eventType,omitempty"`
	Transparency    string           `json:"transparency,omitempty"`
	Visibility      string           `json:"visibility,omitempty"`
	ColorID         string           `json:"colorId,omitempty"`
	Reminders       *Reminders       `json:"reminders,omitempty"`
	WorkingLocation *WorkingLocation `json:"workingLocation,omitempty"`
	AutoDecline     *AutoDecline     `json:"autoDecline,omitempty"`

	PrivateProperties map[string]string `json:"privateProperties,omitempty"`
	SharedProperties  map[string]string `json:"sharedProperties,omitempty"`

	GuestsCanModify         *bool `json:"guestsCanModify,omitempty"`
	GuestsCanInviteOthers   *bool `json:"guestsCanInviteOthers,omitempty"`
	GuestsCanSeeOtherGuests *bool `json:"guestsCanSeeOtherGuests,omitempty"`

	MeetLink  string    `json:"meetLink,omitempty"`
	HTMLLink  string    `json:"htmlLink,omitempty"`
	Organizer string    `json:"organizer,omitempty"`
	Created   time.Time `json:"created,omitzero"`
	Updated   time.Time `json:"updated,omitzero"`

	CalendarID string `json:"calendarId"`
	AccountID  string `json:"accountId"`
}

// IsAllDay reports whether the event spans whole days.
func (e *Event) IsAllDay() bool {
	return e.Start.IsAllDay()
}

// IsCancelled reports whether the event has been cancelled.
func (e *Event) IsCancelled() bool {
	return e.Status == StatusCancelled
}

// Duration returns end minus start, or zero when a boundary is missing.
func (e *Event) Duration() time.Duration {
	start, ok := e.Start.Instant()
	if !ok {
		return 0
	}
	end, ok := e.End.Instant()
	if !ok {
		return 0
	}
	return end.Sub(start)
}

// Validate checks the boundary invariants of an event.
func (e *Event) Validate() error {
	if e.Start.IsZero() || e.End.IsZero() {
		return fmt.Errorf("event start and end are required")
	}
	if e.Start.IsAllDay() != e.End.IsAllDay() {
		return fmt.Errorf("event start and end must both be dates or both be date-times")
	}
	start, ok := e.Start.Instant()
	if !ok {
		return fmt.Errorf("invalid event start")
	}
	end, ok := e.End.Instant()
	if !ok {
		return fmt.Errorf("invalid event end")
	}
	if !start.Before(end) {
		return fmt.Errorf("event start must be before end")
	}
	return nil
}

// CalendarInfo describes a calendar as seen by one account.
type CalendarInfo struct {
	ID              string     `json:"id"`
	Summary         string     `json:"summary"`
	SummaryOverride string     `json:"summaryOverride,omitempty"`
	Description     string     `json:"description,omitempty"`
	TimeZone        string     `json:"timeZone,omitempty"`
	Primary         bool       `json:"primary,omitempty"`
	AccessRole      AccessRole `json:"accessRole"`
	AccountID       string     `json:"accountId"`
}

// DisplayName returns the name the user sees for the calendar.
func (c CalendarInfo) DisplayName() string {
	if c.SummaryOverride != "" {
		return c.SummaryOverride
	}
	return c.Summary
}

// EventQuery holds the shared parameters of an events listing.
type EventQuery struct {
	TimeMin time.Time
	TimeMax time.Time

	// Query is a free text search over title, description, location and attendees.
	Query string

	// Fields is a partial response selector, e.g. "items(id,summary,start,end)".
	Fields string

	// PrivateExtendedProperty and SharedExtendedProperty hold "key=value"
	// constraints; all of them must match.
	PrivateExtendedProperty []string
	SharedExtendedProperty  []string

	// MaxResults caps the number of events returned per calendar. Zero means no cap.
	MaxResults int64

	// ExpandRecurring lists recurring events as individual instances.
	ExpandRecurring bool
}

// Validate rejects queries that cannot be sent.
func (q EventQuery) Validate() error {
	if !q.TimeMin.IsZero() && !q.TimeMax.IsZero() && !q.TimeMin.Before(q.TimeMax) {
		return fmt.Errorf("timeMin must be before timeMax")
	}
	if q.MaxResults < 0 {
		return fmt.Errorf("maxResults must not be negative")
	}
	for _, p := range append(append([]string{}, q.PrivateExtendedProperty...), q.SharedExtendedProperty...) {
		if !strings.Contains(p, "=") {
			return fmt.Errorf("extended property filter %q must have the form key=value", p)
		}
	}
	return nil
}

// EventPatch describes a partial update. Nil fields are left untouched.
type EventPatch struct {
	Title        *string
	Description  *string
	Location     *string
	Start        *EventTime
	End          *EventTime
	Status       *Status
	Transparency *string
	Visibility   *string
	ColorID      *string
	Reminders    *Reminders
	EventType    *string

	// Attendees replaces the guest list when SetAttendees is true.
	Attendees    []Attendee
	SetAttendees bool

	// Recurrence replaces the recurrence lines when SetRecurrence is true.
	Recurrence    []string
	SetRecurrence bool

	// PrivateProperties are merged into the existing private extended properties.
	PrivateProperties map[string]string

	GuestsCanModify         *bool
	GuestsCanInviteOthers   *bool
	GuestsCanSeeOtherGuests *bool
}

// ChangesTime reports whether the patch moves the event.
func (p *EventPatch) ChangesTime() bool {
	return p != nil && (p.Start != nil || p.End != nil)
}

// IsEmpty reports whether the patch would change nothing.
func (p *EventPatch) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Title == nil && p.Description == nil && p.Location == nil &&
		p.Start == nil && p.End == nil && !p.SetAttendees && !p.SetRecurrence &&
		p.Status == nil && p.Transparency == nil && p.Visibility == nil &&
		p.ColorID == nil && p.Reminders == nil && p.EventType == nil &&
		len(p.PrivateProperties) == 0 && p.GuestsCanModify == nil &&
		p.GuestsCanInviteOthers == nil && p.GuestsCanSeeOtherGuests == nil
}

// ApplyTo returns a copy of ev with the patch applied.
func (p *EventPatch) ApplyTo(ev Event) Event {
	if p == nil {
		return ev
	}
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		ev.End = *p.End
	}
	if p.SetAttendees {
		ev.Attendees = append([]Attendee(nil), p.Attendees...)
	}
	if p.SetRecurrence {
		ev.Recurrence = append([]string(nil), p.Recurrence...)
	}
	if p.Status != nil {
		ev.Status = *p.Status
	}
	if p.Transparency != nil {
		ev.Transparency = *p.Transparency
	}
	if p.Visibility != nil {
		ev.Visibility = *p.Visibility
	}
	if p.ColorID != nil {
		ev.ColorID = *p.ColorID
	}
	if p.Reminders != nil {
		r := *p.Reminders
		ev.Reminders = &r
	}
	if p.EventType != nil {
		ev.EventType = *p.EventType
	}
	if len(p.PrivateProperties) > 0 {
		merged := make(map[string]string, len(ev.PrivateProperties)+len(p.PrivateProperties))
		for k, v := range ev.PrivateProperties {
			merged[k] = v
		}
		for k, v := range p.PrivateProperties {
			merged[k] = v
		}
		ev.PrivateProperties = merged
	}
	if p.GuestsCanModify != nil {
		ev.GuestsCanModify = p.GuestsCanModify
	}
	if p.GuestsCanInviteOthers != nil {
		ev.GuestsCanInviteOthers = p.GuestsCanInviteOthers
	}
	if p.GuestsCanSeeOtherGuests != nil {
		ev.GuestsCanSeeOtherGuests = p.GuestsCanSeeOtherGuests
	}
	return ev
}

// InsertOptions tune event creation.
type InsertOptions struct {
	// ConferenceRequestID requests a Google Meet conference when non-empty.
	ConferenceRequestID string

	// SendUpdates is "all", "externalOnly" or "none".
	SendUpdates string
}
