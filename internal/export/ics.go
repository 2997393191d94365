// Package export renders calendar events as iCalendar (RFC 5545) documents.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/teemow/calmux/internal/calendar"
)

// ProductID identifies calmux as the producer of exported documents.
const ProductID = "-//teemow//calmux//EN"

// ContentType is the media type of an exported document.
const ContentType = "text/calendar; charset=utf-8"

const utcStamp = "20060102T150405Z"

// Options describe the exported calendar.
type Options struct {
	// Name is published as X-WR-CALNAME when set.
	Name string
	// TimeZone is published as X-WR-TIMEZONE when set.
	TimeZone string
	// Now stamps events without an update time. Defaults to time.Now.
	Now func() time.Time
}

// Calendar builds an iCalendar document holding events. Cancelled events are
// left out.
func Calendar(events []calendar.Event, opts Options) *ics.Calendar {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	cal := ics.NewCalendarFor("calmux")
	cal.SetProductId(ProductID)
	cal.SetMethod(ics.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	if opts.TimeZone != "" {
		cal.SetXWRTimezone(opts.TimeZone)
	}

	for i := range events {
		ev := &events[i]
		if ev.IsCancelled() {
			continue
		}
		cal.AddVEvent(toVEvent(ev, now()))
	}
	return cal
}

// Write serializes events as an iCalendar document to w.
func Write(w io.Writer, events []calendar.Event, opts Options) error {
	if err := Calendar(events, opts).SerializeTo(w); err != nil {
		return fmt.Errorf("failed to write iCalendar document: %w", err)
	}
	return nil
}

// String returns events as an iCalendar document.
func String(events []calendar.Event, opts Options) string {
	var b strings.Builder
	_ = Write(&b, events, opts)
	return b.String()
}

// UID returns the iCalendar UID Google Calendar assigns to an event.
func UID(ev *calendar.Event) string {
	id := ev.ID
	if ev.RecurringEventID != "" {
		id = ev.RecurringEventID
	}
	return id + "@google.com"
}

func toVEvent(ev *calendar.Event, now time.Time) *ics.VEvent {
	v := ics.NewEvent(UID(ev))

	stamp := ev.Updated
	if stamp.IsZero() {
		stamp = now
	}
	v.SetDtStampTime(stamp)
	if !ev.Created.IsZero() {
		v.SetCreatedTime(ev.Created)
	}
	if !ev.Updated.IsZero() {
		v.SetLastModifiedAt(ev.Updated)
	}

	setTime(v, ics.ComponentPropertyDtStart, ev.Start)
	setTime(v, ics.ComponentPropertyDtEnd, ev.End)
	if ev.OriginalStartTime != nil {
		setTime(v, ics.ComponentPropertyRecurrenceId, *ev.OriginalStartTime)
	}

	v.SetSummary(ev.Title)
	if ev.Description != "" {
		v.SetDescription(ev.Description)
	}
	if ev.Location != "" {
		v.SetLocation(ev.Location)
	}
	if ev.HTMLLink != "" {
		v.SetURL(ev.HTMLLink)
	}
	if ev.MeetLink != "" {
		v.SetProperty(ics.ComponentProperty("X-GOOGLE-CONFERENCE"), ev.MeetLink)
	}
	if s, ok := objectStatus[ev.Status]; ok {
		v.SetStatus(s)
	}
	if ev.Transparency == "transparent" {
		v.SetTimeTransparency(ics.TransparencyTransparent)
	} else {
		v.SetTimeTransparency(ics.TransparencyOpaque)
	}
	if c, ok := classification[ev.Visibility]; ok {
		v.SetClass(c)
	}

	if ev.Organizer != "" {
		v.SetOrganizer(ev.Organizer)
	}
	for _, a := range ev.Attendees {
		params := []ics.PropertyParameter{participation(a.ResponseStatus)}
		if a.DisplayName != "" {
			params = append(params, ics.WithCN(a.DisplayName))
		}
		if a.Optional {
			params = append(params, ics.ParticipationRoleOptParticipant)
		}
		v.AddAttendee(a.Email, params...)
	}

	for _, line := range ev.Recurrence {
		addRecurrence(v, line)
	}

	if ev.Reminders != nil {
		for _, r := range ev.Reminders.Overrides {
			alarm := v.AddAlarm()
			if r.Method == "email" {
				alarm.SetAction(ics.ActionEmail)
				alarm.SetProperty(ics.ComponentPropertySummary, ev.Title)
			} else {
				alarm.SetAction(ics.ActionDisplay)
			}
			alarm.SetProperty(ics.ComponentPropertyDescription, ev.Title)
			alarm.SetTrigger(fmt.Sprintf("-PT%dM", r.Minutes))
		}
	}
	return v
}

// setTime writes a boundary: dates as VALUE=DATE, instants in UTC.
func setTime(v *ics.VEvent, prop ics.ComponentProperty, t calendar.EventTime) {
	if t.IsAllDay() {
		v.SetProperty(prop, strings.ReplaceAll(t.Date, "-", ""), ics.WithValue(string(ics.ValueDataTypeDate)))
		return
	}
	if !t.DateTime.IsZero() {
		v.SetProperty(prop, t.DateTime.UTC().Format(utcStamp))
	}
}

// addRecurrence copies a Google recurrence line ("RRULE:...",
// "EXDATE;TZID=Europe/Berlin:...") onto v.
func addRecurrence(v *ics.VEvent, line string) {
	head, value, ok := strings.Cut(line, ":")
	if !ok || value == "" {
		return
	}
	name, rawParams, _ := strings.Cut(head, ";")

	var params []ics.PropertyParameter
	if rawParams != "" {
		for _, p := range strings.Split(rawParams, ";") {
			k, val, ok := strings.Cut(p, "=")
			if !ok {
				continue
			}
			params = append(params, &ics.KeyValues{Key: strings.ToUpper(k), Value: []string{val}})
		}
	}

	switch strings.ToUpper(name) {
	case "RRULE":
		v.AddRrule(value, params...)
	case "EXRULE":
		v.AddExrule(value, params...)
	case "EXDATE":
		v.AddExdate(value, params...)
	case "RDATE":
		v.AddRdate(value, params...)
	}
}

var objectStatus = map[calendar.Status]ics.ObjectStatus{
	calendar.StatusConfirmed: ics.ObjectStatusConfirmed,
	calendar.StatusTentative: ics.ObjectStatusTentative,
	calendar.StatusCancelled: ics.ObjectStatusCancelled,
}

var classification = map[string]ics.Classification{
	"public":       ics.ClassificationPublic,
	"private":      ics.ClassificationPrivate,
	"confidential": ics.ClassificationConfidential,
}

func participation(status string) ics.ParticipationStatus {
	switch status {
	case "accepted":
		return ics.ParticipationStatusAccepted
	case "declined":
		return ics.ParticipationStatusDeclined
	case "tentative":
		return ics.ParticipationStatusTentative
	default:
		return ics.ParticipationStatusNeedsAction
	}
}
