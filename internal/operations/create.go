package operations

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/detection"
	"github.com/teemow/calmux/internal/logging"
	"github.com/teemow/calmux/internal/notify"
)

// CreateRequest creates one event.
type CreateRequest struct {
	Account  string `json:"account,omitempty"`
	Calendar string `json:"calendar,omitempty"`

	// EventID is an optional caller chosen identifier.
	EventID     string              `json:"eventId,omitempty"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Location    string              `json:"location,omitempty"`
	Start       calendar.EventTime  `json:"start"`
	End         calendar.EventTime  `json:"end"`
	Attendees   []calendar.Attendee `json:"attendees,omitempty"`
	Recurrence  []string            `json:"recurrence,omitempty"`

	EventType       string                    `json:"eventType,omitempty"`
	Transparency    string                    `json:"transparency,omitempty"`
	Visibility      string                    `json:"visibility,omitempty"`
	ColorID         string                    `json:"colorId,omitempty"`
	Reminders       *calendar.Reminders       `json:"reminders,omitempty"`
	WorkingLocation *calendar.WorkingLocation `json:"workingLocation,omitempty"`
	AutoDecline     *calendar.AutoDecline     `json:"autoDecline,omitempty"`

	PrivateProperties map[string]string `json:"privateProperties,omitempty"`

	GuestsCanModify         *bool `json:"guestsCanModify,omitempty"`
	GuestsCanInviteOthers   *bool `json:"guestsCanInviteOthers,omitempty"`
	GuestsCanSeeOtherGuests *bool `json:"guestsCanSeeOtherGuests,omitempty"`

	AddGoogleMeet bool   `json:"addGoogleMeet,omitempty"`
	SendUpdates   string `json:"sendUpdates,omitempty"`

	// CheckDuplicates and CheckConflicts default to true.
	CheckDuplicates    *bool    `json:"checkDuplicates,omitempty"`
	CheckConflicts     *bool    `json:"checkConflicts,omitempty"`
	CalendarsToCheck   []string `json:"calendarsToCheck,omitempty"`
	// AllowDuplicates creates the event even when it matches an existing
	// one above the blocking threshold.
	AllowDuplicates    bool     `json:"allowDuplicates,omitempty"`
	DuplicateThreshold float64  `json:"duplicateThreshold,omitempty"`
}

var validSendUpdates = map[string]bool{"": true, "all": true, "externalOnly": true, "none": true}

// Validate checks the request before any call is made.
func (r *CreateRequest) Validate() error {
	if r.EventID != "" {
		if err := calendar.ValidateEventID(r.EventID); err != nil {
			return &ValidationError{Field: "eventId", Message: err.Error(), Err: err}
		}
	}
	if r.Start.IsZero() {
		return invalid("start", "start time is required")
	}
	if r.End.IsZero() {
		return invalid("end", "end time is required")
	}
	if r.Start.IsAllDay() != r.End.IsAllDay() {
		return invalid("end", "start and end must both be dates or both be date-times")
	}
	if s, ok := r.Start.Instant(); ok {
		if e, ok := r.End.Instant(); ok && !e.After(s) {
			return invalid("end", "end must be after start")
		}
	}
	if r.DuplicateThreshold < 0 || r.DuplicateThreshold > 1 {
		return invalid("duplicateThreshold", "must be between 0 and 1")
	}
	if !validSendUpdates[r.SendUpdates] {
		return invalid("sendUpdates", "must be all, externalOnly or none")
	}

	switch r.EventType {
	case "", calendar.EventTypeDefault:
	case calendar.EventTypeOutOfOffice, calendar.EventTypeFocusTime:
		if r.Start.IsAllDay() {
			return invalid("eventType", "%s events cannot be all-day", r.EventType)
		}
		if r.AddGoogleMeet || len(r.Attendees) > 0 {
			return invalid("eventType", "%s events cannot have attendees or a conference", r.EventType)
		}
	case calendar.EventTypeWorkingLocation:
		if r.WorkingLocation == nil || r.WorkingLocation.Type == "" {
			return invalid("workingLocation", "workingLocation events require working location properties with a type")
		}
		switch r.WorkingLocation.Type {
		case "homeOffice", "officeLocation", "customLocation":
		default:
			return invalid("workingLocation", "type must be homeOffice, officeLocation or customLocation")
		}
	default:
		return invalid("eventType", "unknown event type %q", r.EventType)
	}
	return nil
}

// event builds the event to insert, applying the defaults of its type.
func (r *CreateRequest) event() calendar.Event {
	ev := calendar.Event{
		ID:                      r.EventID,
		Title:                   r.Title,
		Description:             r.Description,
		Location:                r.Location,
		Start:                   r.Start,
		End:                     r.End,
		Attendees:               r.Attendees,
		Recurrence:              r.Recurrence,
		EventType:               r.EventType,
		Transparency:            r.Transparency,
		Visibility:              r.Visibility,
		ColorID:                 r.ColorID,
		Reminders:               r.Reminders,
		PrivateProperties:       r.PrivateProperties,
		GuestsCanModify:         r.GuestsCanModify,
		GuestsCanInviteOthers:   r.GuestsCanInviteOthers,
		GuestsCanSeeOtherGuests: r.GuestsCanSeeOtherGuests,
	}

	switch r.EventType {
	case calendar.EventTypeOutOfOffice, calendar.EventTypeFocusTime:
		ev.AutoDecline = r.AutoDecline
		defaultTo(&ev.Transparency, "opaque")
		defaultTo(&ev.Visibility, "public")
	case calendar.EventTypeWorkingLocation:
		ev.WorkingLocation = r.WorkingLocation
		defaultTo(&ev.Transparency, "transparent")
		defaultTo(&ev.Visibility, "public")
	}
	return ev
}

func defaultTo(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// CreateResponse is the result of Create.
type CreateResponse struct {
	Event      *calendar.Event       `json:"event"`
	Duplicates []detection.Duplicate `json:"duplicates,omitempty"`
	Conflicts  []detection.Conflict  `json:"conflicts,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
}

// Create validates, checks for duplicates and conflicts, and inserts an
// event. A duplicate scoring at or above the blocking threshold fails with a
// *DuplicateError unless AllowDuplicates is set; the duplicates are reported
// in the response either way.
func (o *Operations) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := o.resolveTarget(ctx, req.Account, req.Calendar)
	if err != nil {
		return nil, err
	}

	ev := req.event()
	ev.Start = resolveTime(ev.Start, t.loc)
	ev.End = resolveTime(ev.End, t.loc)
	if err := ev.Validate(); err != nil {
		return nil, &ValidationError{Field: "end", Message: err.Error(), Err: err}
	}

	resp := &CreateResponse{Warnings: t.warnings}
	checkDuplicates := boolOr(req.CheckDuplicates, true)
	checkConflicts := boolOr(req.CheckConflicts, true)
	if checkDuplicates || checkConflicts {
		threshold := req.DuplicateThreshold
		if threshold == 0 {
			threshold = o.cfg.DuplicateThreshold
		}
		report, err := o.detector.Check(ctx, t.svc, &ev, t.calendarID, detection.Options{
			CheckDuplicates:    checkDuplicates,
			CheckConflicts:     checkConflicts,
			CalendarsToCheck:   req.CalendarsToCheck,
			DuplicateThreshold: threshold,
			Location:           t.loc,
		})
		if err != nil {
			return nil, o.translate("check for duplicates", t.account, t.calendarID, err)
		}
		resp.Duplicates = report.Duplicates
		resp.Conflicts = report.Conflicts
		resp.Warnings = append(resp.Warnings, report.Warnings...)

		if best := report.BestDuplicate(); best != nil && best.Score >= o.cfg.BlockingThreshold && !req.AllowDuplicates {
			o.metrics.RecordCreateBlocked(ctx)
			return nil, &DuplicateError{
				EventID:    best.Event.ID,
				Title:      best.Event.Title,
				CalendarID: t.calendarID,
				Score:      best.Score,
				Duplicates: report.Duplicates,
			}
		}
	}

	opts := calendar.InsertOptions{SendUpdates: req.SendUpdates}
	if req.AddGoogleMeet {
		opts.ConferenceRequestID = uuid.NewString()
	}
	created, err := t.svc.InsertEvent(ctx, t.calendarID, &ev, opts)
	if err != nil {
		return nil, o.translate("create event", t.account, t.calendarID, err)
	}

	o.logger.Info("created event",
		logging.Account(t.account),
		logging.Calendar(t.calendarID),
		logging.EventID(created.ID),
		slog.Int("duplicates", len(resp.Duplicates)),
		slog.Int("conflicts", len(resp.Conflicts)))
	o.publish(ctx, notify.NewChange(notify.KindCreated, *created))

	resp.Event = created
	if len(resp.Duplicates) > 0 && req.AllowDuplicates {
		resp.Warnings = append(resp.Warnings,
			fmt.Sprintf("created although it resembles %d existing event(s)", len(resp.Duplicates)))
	}
	return resp, nil
}
