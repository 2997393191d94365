package operations

import (
	"context"
	"log/slog"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/detection"
	"github.com/teemow/calmux/internal/logging"
	"github.com/teemow/calmux/internal/notify"
	"github.com/teemow/calmux/internal/recurrence"
)

// UpdateRequest patches one event. Nil fields are left untouched.
type UpdateRequest struct {
	Account  string `json:"account,omitempty"`
	Calendar string `json:"calendar,omitempty"`
	EventID  string `json:"eventId"`

	Title        *string             `json:"title,omitempty"`
	Description  *string             `json:"description,omitempty"`
	Location     *string             `json:"location,omitempty"`
	Start        *calendar.EventTime `json:"start,omitempty"`
	End          *calendar.EventTime `json:"end,omitempty"`
	Status       *calendar.Status    `json:"status,omitempty"`
	Transparency *string             `json:"transparency,omitempty"`
	Visibility   *string             `json:"visibility,omitempty"`
	ColorID      *string             `json:"colorId,omitempty"`
	Reminders    *calendar.Reminders `json:"reminders,omitempty"`

	// Attendees are merged into the existing guest list by email.
	Attendees       []calendar.Attendee `json:"attendees,omitempty"`
	RemoveAttendees []string            `json:"removeAttendees,omitempty"`

	// Recurrence replaces the recurrence lines when non-nil.
	Recurrence        []string          `json:"recurrence,omitempty"`
	PrivateProperties map[string]string `json:"privateProperties,omitempty"`

	Scope             recurrence.Scope    `json:"scope,omitempty"`
	OriginalStartTime *calendar.EventTime `json:"originalStartTime,omitempty"`
	FutureStartDate   *calendar.EventTime `json:"futureStartDate,omitempty"`

	// CheckConflicts defaults to true and only applies when times change.
	CheckConflicts   *bool    `json:"checkConflicts,omitempty"`
	CalendarsToCheck []string `json:"calendarsToCheck,omitempty"`
}

func (r *UpdateRequest) scopeRequest() recurrence.Request {
	return recurrence.Request{
		EventID:           r.EventID,
		Scope:             r.Scope,
		OriginalStartTime: r.OriginalStartTime,
		FutureStartDate:   r.FutureStartDate,
	}
}

func (r *UpdateRequest) changesAttendees() bool {
	return r.Attendees != nil || len(r.RemoveAttendees) > 0
}

// patch converts the plain field changes. Attendees and times are handled by
// Update.
func (r *UpdateRequest) patch() *calendar.EventPatch {
	p := &calendar.EventPatch{
		Title:             r.Title,
		Description:       r.Description,
		Location:          r.Location,
		Start:             r.Start,
		End:               r.End,
		Status:            r.Status,
		Transparency:      r.Transparency,
		Visibility:        r.Visibility,
		ColorID:           r.ColorID,
		Reminders:         r.Reminders,
		PrivateProperties: r.PrivateProperties,
	}
	if r.Recurrence != nil {
		p.Recurrence = r.Recurrence
		p.SetRecurrence = true
	}
	return p
}

// Validate checks the request before any call is made.
func (r *UpdateRequest) Validate() error {
	if r.EventID == "" {
		return invalid("eventId", "event ID is required")
	}
	if r.Start != nil && r.End != nil && r.Start.IsAllDay() != r.End.IsAllDay() {
		return invalid("end", "start and end must both be dates or both be date-times")
	}
	if r.Status != nil {
		switch *r.Status {
		case calendar.StatusConfirmed, calendar.StatusTentative, calendar.StatusCancelled:
		default:
			return invalid("status", "must be confirmed, tentative or cancelled")
		}
	}
	if r.patch().IsEmpty() && !r.changesAttendees() {
		return invalid("", "nothing to update")
	}
	if err := r.scopeRequest().Validate(); err != nil {
		return &ValidationError{Message: err.Error(), Err: err}
	}
	return nil
}

// UpdateResponse is the result of Update.
type UpdateResponse struct {
	Event           *calendar.Event      `json:"event"`
	TruncatedSeries *calendar.Event      `json:"truncatedSeries,omitempty"`
	Scope           recurrence.Scope     `json:"scope"`
	Conflicts       []detection.Conflict `json:"conflicts,omitempty"`
	Warnings        []string             `json:"warnings,omitempty"`
}

// Update patches an event. The event is only read first when the scope is
// not the default, when times change while conflicts are checked or only one
// boundary moves, or when guests change.
func (o *Operations) Update(ctx context.Context, req UpdateRequest) (*UpdateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := o.resolveTarget(ctx, req.Account, req.Calendar)
	if err != nil {
		return nil, err
	}

	scopeReq := req.scopeRequest()
	patch := req.patch()
	if patch.Start != nil {
		start := resolveTime(*patch.Start, t.loc)
		patch.Start = &start
	}
	if patch.End != nil {
		end := resolveTime(*patch.End, t.loc)
		patch.End = &end
	}

	checkConflicts := boolOr(req.CheckConflicts, true) && patch.ChangesTime()
	oneBoundary := (patch.Start == nil) != (patch.End == nil)
	var existing *calendar.Event
	if scopeReq.NeedsTarget() || checkConflicts || oneBoundary || req.changesAttendees() {
		existing, err = t.svc.GetEvent(ctx, t.calendarID, req.EventID)
		if err != nil {
			return nil, o.translate("get event", t.account, t.calendarID, err)
		}
		if err := scopeReq.ValidateFor(recurrence.DetectKind(existing)); err != nil {
			return nil, &ValidationError{Message: err.Error(), Err: err}
		}
	}

	if req.changesAttendees() {
		patch.Attendees = mergeAttendees(existing.Attendees, req.Attendees, req.RemoveAttendees)
		patch.SetAttendees = true
	}
	if oneBoundary {
		keepDuration(patch, existing)
	}

	resp := &UpdateResponse{Warnings: t.warnings}
	if checkConflicts {
		candidate := patch.ApplyTo(*existing)
		if err := candidate.Validate(); err != nil {
			return nil, &ValidationError{Field: "end", Message: err.Error(), Err: err}
		}
		report, err := o.detector.Check(ctx, t.svc, &candidate, t.calendarID, detection.Options{
			CheckConflicts:   true,
			CalendarsToCheck: req.CalendarsToCheck,
			ExcludeEventID:   existing.ID,
			Location:         t.loc,
		})
		if err != nil {
			return nil, o.translate("check for conflicts", t.account, t.calendarID, err)
		}
		resp.Conflicts = report.Conflicts
		resp.Warnings = append(resp.Warnings, report.Warnings...)
	}

	out, err := recurrence.NewResolver(t.svc, o.logger).Apply(ctx, t.calendarID, existing, patch, scopeReq)
	if err != nil {
		return nil, o.translate("update event", t.account, t.calendarID, err)
	}

	resp.Event = out.Event
	resp.TruncatedSeries = out.Truncated
	resp.Scope = out.Scope
	if out.Truncated != nil {
		o.publish(ctx, notify.NewChange(notify.KindUpdated, *out.Truncated))
		change := notify.NewChange(notify.KindSplit, *out.Event)
		change.SplitFrom = out.Truncated.ID
		o.publish(ctx, change)
	} else {
		o.publish(ctx, notify.NewChange(notify.KindUpdated, *out.Event))
	}

	o.logger.Info("updated event",
		logging.Account(t.account),
		logging.Calendar(t.calendarID),
		logging.EventID(out.Event.ID),
		slog.String("scope", string(out.Scope)))
	return resp, nil
}

// keepDuration moves the missing boundary so the event keeps its length.
func keepDuration(patch *calendar.EventPatch, existing *calendar.Event) {
	d := existing.Duration()
	if d <= 0 {
		return
	}
	switch {
	case patch.Start != nil:
		if patch.Start.IsAllDay() {
			if start, ok := patch.Start.Instant(); ok {
				patch.End = &calendar.EventTime{Date: start.Add(d).Format(calendar.DateLayout)}
			}
		} else {
			end := calendar.EventTime{DateTime: patch.Start.DateTime.Add(d), TimeZone: patch.Start.TimeZone}
			patch.End = &end
		}
	case patch.End != nil:
		if patch.End.IsAllDay() {
			if end, ok := patch.End.Instant(); ok {
				patch.Start = &calendar.EventTime{Date: end.Add(-d).Format(calendar.DateLayout)}
			}
		} else {
			start := calendar.EventTime{DateTime: patch.End.DateTime.Add(-d), TimeZone: patch.End.TimeZone}
			patch.Start = &start
		}
	}
}
