package calendar

import (
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

// fromAPIEvent converts a Google Calendar event into an Event owned by the
// given account and calendar.
func fromAPIEvent(event *gcal.Event, account, calendarID string) Event {
	ev := Event{
		ID:               event.Id,
		Title:            event.Summary,
		Description:      event.Description,
		Location:         event.Location,
		Status:           Status(event.Status),
		Recurrence:       event.Recurrence,
		RecurringEventID: event.RecurringEventId,
		EventType:        event.EventType,
		Transparency:     event.Transparency,
		Visibility:       event.Visibility,
		ColorID:          event.ColorId,
		HTMLLink:         event.HtmlLink,
		CalendarID:       calendarID,
		AccountID:        account,
	}

	ev.Start = fromAPITime(event.Start)
	ev.End = fromAPITime(event.End)
	if event.OriginalStartTime != nil {
		ost := fromAPITime(event.OriginalStartTime)
		ev.OriginalStartTime = &ost
	}

	if event.Organizer != nil {
		ev.Organizer = event.Organizer.Email
	}
	if t, err := time.Parse(time.RFC3339, event.Created); err == nil {
		ev.Created = t
	}
	if t, err := time.Parse(time.RFC3339, event.Updated); err == nil {
		ev.Updated = t
	}

	for _, att := range event.Attendees {
		ev.Attendees = append(ev.Attendees, Attendee{
			Email:            att.Email,
			DisplayName:      att.DisplayName,
			Optional:         att.Optional,
			ResponseStatus:   att.ResponseStatus,
			Comment:          att.Comment,
			AdditionalGuests: att.AdditionalGuests,
			Organizer:        att.Organizer,
			Self:             att.Self,
			Resource:         att.Resource,
			ID:               att.Id,
		})
	}

	if event.Reminders != nil {
		r := &Reminders{UseDefault: event.Reminders.UseDefault}
		for _, o := range event.Reminders.Overrides {
			r.Overrides = append(r.Overrides, Reminder{Method: o.Method, Minutes: o.Minutes})
		}
		ev.Reminders = r
	}

	if event.ExtendedProperties != nil {
		if len(event.ExtendedProperties.Private) > 0 {
			ev.PrivateProperties = event.ExtendedProperties.Private
		}
		if len(event.ExtendedProperties.Shared) > 0 {
			ev.SharedProperties = event.ExtendedProperties.Shared
		}
	}

	if event.WorkingLocationProperties != nil {
		wl := &WorkingLocation{Type: event.WorkingLocationProperties.Type}
		if o := event.WorkingLocationProperties.OfficeLocation; o != nil {
			wl.OfficeLabel = o.Label
			wl.BuildingID = o.BuildingId
			wl.FloorID = o.FloorId
			wl.DeskID = o.DeskId
		}
		if c := event.WorkingLocationProperties.CustomLocation; c != nil {
			wl.CustomLabel = c.Label
		}
		ev.WorkingLocation = wl
	}

	if p := event.OutOfOfficeProperties; p != nil {
		ev.AutoDecline = &AutoDecline{Mode: p.AutoDeclineMode, DeclineMessage: p.DeclineMessage}
	} else if p := event.FocusTimeProperties; p != nil {
		ev.AutoDecline = &AutoDecline{Mode: p.AutoDeclineMode, DeclineMessage: p.DeclineMessage, ChatStatus: p.ChatStatus}
	}

	if event.GuestsCanModify {
		ev.GuestsCanModify = boolPtr(true)
	}
	if event.GuestsCanInviteOthers != nil {
		ev.GuestsCanInviteOthers = boolPtr(*event.GuestsCanInviteOthers)
	}
	if event.GuestsCanSeeOtherGuests != nil {
		ev.GuestsCanSeeOtherGuests = boolPtr(*event.GuestsCanSeeOtherGuests)
	}

	if event.ConferenceData != nil {
		for _, ep := range event.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				ev.MeetLink = ep.Uri
				break
			}
		}
	}

	return ev
}

func fromAPITime(t *gcal.EventDateTime) EventTime {
	if t == nil {
		return EventTime{}
	}
	if t.Date != "" {
		return EventTime{Date: t.Date, TimeZone: t.TimeZone}
	}
	et := EventTime{TimeZone: t.TimeZone}
	if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
		et.DateTime = parsed
	}
	return et
}

func toAPITime(t EventTime) *gcal.EventDateTime {
	if t.IsAllDay() {
		return &gcal.EventDateTime{Date: t.Date}
	}
	tz := t.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	return &gcal.EventDateTime{
		DateTime: t.DateTime.Format(time.RFC3339),
		TimeZone: tz,
	}
}

func toAPIAttendees(attendees []Attendee) []*gcal.EventAttendee {
	out := make([]*gcal.EventAttendee, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, &gcal.EventAttendee{
			Email:            a.Email,
			DisplayName:      a.DisplayName,
			Optional:         a.Optional,
			ResponseStatus:   a.ResponseStatus,
			Comment:          a.Comment,
			AdditionalGuests: a.AdditionalGuests,
			Organizer:        a.Organizer,
			Self:             a.Self,
			Resource:         a.Resource,
			Id:               a.ID,
		})
	}
	return out
}

func toAPIReminders(r *Reminders) *gcal.EventReminders {
	out := &gcal.EventReminders{
		UseDefault:      r.UseDefault,
		ForceSendFields: []string{"UseDefault"},
	}
	for _, o := range r.Overrides {
		out.Overrides = append(out.Overrides, &gcal.EventReminder{Method: o.Method, Minutes: o.Minutes})
	}
	return out
}

// toAPIEvent converts an Event into the request body for an insert.
func toAPIEvent(ev *Event) *gcal.Event {
	out := &gcal.Event{
		Id:           ev.ID,
		Summary:      ev.Title,
		Description:  ev.Description,
		Location:     ev.Location,
		Start:        toAPITime(ev.Start),
		End:          toAPITime(ev.End),
		Status:       string(ev.Status),
		Recurrence:   ev.Recurrence,
		EventType:    ev.EventType,
		Transparency: ev.Transparency,
		Visibility:   ev.Visibility,
		ColorId:      ev.ColorID,
	}

	if len(ev.Attendees) > 0 {
		out.Attendees = toAPIAttendees(ev.Attendees)
	}
	if ev.Reminders != nil {
		out.Reminders = toAPIReminders(ev.Reminders)
	}
	if len(ev.PrivateProperties) > 0 || len(ev.SharedProperties) > 0 {
		out.ExtendedProperties = &gcal.EventExtendedProperties{
			Private: ev.PrivateProperties,
			Shared:  ev.SharedProperties,
		}
	}

	if wl := ev.WorkingLocation; wl != nil {
		props := &gcal.EventWorkingLocationProperties{Type: wl.Type}
		switch wl.Type {
		case "homeOffice":
			props.HomeOffice = struct{}{}
		case "officeLocation":
			props.OfficeLocation = &gcal.EventWorkingLocationPropertiesOfficeLocation{
				Label:      wl.OfficeLabel,
				BuildingId: wl.BuildingID,
				FloorId:    wl.FloorID,
				DeskId:     wl.DeskID,
			}
		case "customLocation":
			props.CustomLocation = &gcal.EventWorkingLocationPropertiesCustomLocation{Label: wl.CustomLabel}
		}
		out.WorkingLocationProperties = props
	}

	if ad := ev.AutoDecline; ad != nil {
		switch ev.EventType {
		case EventTypeOutOfOffice:
			out.OutOfOfficeProperties = &gcal.EventOutOfOfficeProperties{
				AutoDeclineMode: ad.Mode,
				DeclineMessage:  ad.DeclineMessage,
			}
		case EventTypeFocusTime:
			out.FocusTimeProperties = &gcal.EventFocusTimeProperties{
				AutoDeclineMode: ad.Mode,
				DeclineMessage:  ad.DeclineMessage,
				ChatStatus:      ad.ChatStatus,
			}
		}
	}

	if ev.GuestsCanModify != nil {
		out.GuestsCanModify = *ev.GuestsCanModify
	}
	out.GuestsCanInviteOthers = ev.GuestsCanInviteOthers
	out.GuestsCanSeeOtherGuests = ev.GuestsCanSeeOtherGuests

	return out
}

// toAPIPatch converts a patch into a sparse request body. Fields that are
// cleared on purpose are listed in ForceSendFields or NullFields.
func toAPIPatch(p *EventPatch) *gcal.Event {
	out := &gcal.Event{}
	if p.Title != nil {
		out.Summary = *p.Title
		out.ForceSendFields = append(out.ForceSendFields, "Summary")
	}
	if p.Description != nil {
		out.Description = *p.Description
		out.ForceSendFields = append(out.ForceSendFields, "Description")
	}
	if p.Location != nil {
		out.Location = *p.Location
		out.ForceSendFields = append(out.ForceSendFields, "Location")
	}
	if p.Start != nil {
		out.Start = toAPITime(*p.Start)
	}
	if p.End != nil {
		out.End = toAPITime(*p.End)
	}
	if p.SetAttendees {
		out.Attendees = toAPIAttendees(p.Attendees)
		if len(p.Attendees) == 0 {
			out.NullFields = append(out.NullFields, "Attendees")
		}
	}
	if p.SetRecurrence {
		out.Recurrence = p.Recurrence
		if len(p.Recurrence) == 0 {
			out.NullFields = append(out.NullFields, "Recurrence")
		}
	}
	if p.Status != nil {
		out.Status = string(*p.Status)
	}
	if p.Transparency != nil {
		out.Transparency = *p.Transparency
	}
	if p.Visibility != nil {
		out.Visibility = *p.Visibility
	}
	if p.ColorID != nil {
		out.ColorId = *p.ColorID
	}
	if p.Reminders != nil {
		out.Reminders = toAPIReminders(p.Reminders)
	}
	if p.EventType != nil {
		out.EventType = *p.EventType
	}
	if len(p.PrivateProperties) > 0 {
		out.ExtendedProperties = &gcal.EventExtendedProperties{Private: p.PrivateProperties}
	}
	if p.GuestsCanModify != nil {
		out.GuestsCanModify = *p.GuestsCanModify
		out.ForceSendFields = append(out.ForceSendFields, "GuestsCanModify")
	}
	out.GuestsCanInviteOthers = p.GuestsCanInviteOthers
	out.GuestsCanSeeOtherGuests = p.GuestsCanSeeOtherGuests
	return out
}

func fromAPICalendar(entry *gcal.CalendarListEntry, account string) CalendarInfo {
	return CalendarInfo{
		ID:              entry.Id,
		Summary:         entry.Summary,
		SummaryOverride: entry.SummaryOverride,
		Description:     entry.Description,
		TimeZone:        entry.TimeZone,
		Primary:         entry.Primary,
		AccessRole:      AccessRole(entry.AccessRole),
		AccountID:       account,
	}
}

func boolPtr(b bool) *bool {
	return &b
}
