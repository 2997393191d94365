package recurrence

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/calendar/calendartest"
)

func strPtr(s string) *string { return &s }

type fixture struct {
	fake   *calendartest.Fake
	master calendar.Event
	loc    *time.Location
}

// newFixture stores a weekly Wednesday series from 2025-01-01 10:00 Berlin
// with ten occurrences.
func newFixture(t *testing.T) fixture {
	loc := berlin(t)
	f := calendartest.New("work")
	f.AddCalendar(calendar.CalendarInfo{ID: "primary", Primary: true})
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, loc)
	master := f.AddEvent("primary", calendar.Event{
		Title:      "Team Sync",
		Location:   "Room 1",
		Start:      calendar.EventTime{DateTime: start, TimeZone: "Europe/Berlin"},
		End:        calendar.EventTime{DateTime: start.Add(time.Hour), TimeZone: "Europe/Berlin"},
		Recurrence: []string{"RRULE:FREQ=WEEKLY;BYDAY=WE;COUNT=10"},
		Attendees: []calendar.Attendee{
			{Email: "ann@example.com", ResponseStatus: "accepted"},
			{Email: "bob@example.com", ResponseStatus: "needsAction"},
		},
		Reminders:  &calendar.Reminders{Overrides: []calendar.Reminder{{Method: "popup", Minutes: 10}}},
		Visibility: "private",
		HTMLLink:   "https://calendar.google.com/event?eid=x",
	})
	return fixture{fake: f, master: master, loc: loc}
}

func (fx fixture) addInstance(day int) calendar.Event {
	start := time.Date(2025, 1, day, 10, 0, 0, 0, fx.loc)
	original := calendar.EventTime{DateTime: start, TimeZone: "Europe/Berlin"}
	id, _ := InstanceID(fx.master.ID, original)
	return fx.fake.AddEvent("primary", calendar.Event{
		ID:                id,
		Title:             fx.master.Title,
		Start:             original,
		End:               calendar.EventTime{DateTime: start.Add(time.Hour), TimeZone: "Europe/Berlin"},
		RecurringEventID:  fx.master.ID,
		OriginalStartTime: &original,
	})
}

func TestDetectKind(t *testing.T) {
	assert.Equal(t, KindSingleton, DetectKind(nil))
	assert.Equal(t, KindSingleton, DetectKind(&calendar.Event{Recurrence: []string{"EXDATE:20250101"}}))
	assert.Equal(t, KindRecurringMaster, DetectKind(&calendar.Event{Recurrence: []string{"RRULE:FREQ=DAILY"}}))
	assert.Equal(t, KindRecurringInstance, DetectKind(&calendar.Event{RecurringEventID: "abc"}))
}

func TestParseScope(t *testing.T) {
	tests := map[string]Scope{
		"":                ScopeAll,
		"all":             ScopeAll,
		"allInstances":    ScopeAll,
		"single":          ScopeSingle,
		"singleInstance":  ScopeSingle,
		"FUTURE":          ScopeFuture,
		"futureInstances": ScopeFuture,
	}
	for in, want := range tests {
		got, err := ParseScope(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseScope("some")
	assert.Error(t, err)
}

func TestRequestValidation(t *testing.T) {
	err := Request{EventID: "abc123", Scope: ScopeFuture}.Validate()
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "futureStartDate", missing.Field)
	assert.True(t, IsValidation(err))

	assert.NoError(t, Request{EventID: "abc123"}.Validate())
	assert.Error(t, Request{}.Validate())

	single := Request{EventID: "abc123", Scope: ScopeSingle}
	assert.ErrorIs(t, single.ValidateFor(KindSingleton), ErrScopeNotRecurring)
	assert.ErrorAs(t, single.ValidateFor(KindRecurringMaster), &missing)
	assert.NoError(t, single.ValidateFor(KindRecurringInstance))
	assert.NoError(t, Request{EventID: "abc123"}.ValidateFor(KindSingleton))
	assert.True(t, IsValidation(ErrScopeNotRecurring))
	assert.False(t, IsValidation(errors.New("boom")))
}

func TestApply_NonDefaultScopeOnSingletonMakesNoCalls(t *testing.T) {
	fx := newFixture(t)
	single := fx.fake.AddEvent("primary", calendar.Event{Title: "Dentist"})

	for _, scope := range []Scope{ScopeSingle, ScopeFuture} {
		day := calendar.EventTime{Date: "2025-01-15"}
		_, err := NewResolver(fx.fake, nil).Apply(context.Background(), "primary", &single,
			&calendar.EventPatch{Title: strPtr("x")},
			Request{EventID: single.ID, Scope: scope, OriginalStartTime: &day, FutureStartDate: &day})
		require.ErrorIs(t, err, ErrScopeNotRecurring)
	}
	assert.Empty(t, fx.fake.Patches)
	assert.Empty(t, fx.fake.Inserts)
	assert.Empty(t, fx.fake.Gets)
}

func TestApply_FutureSplitsTheSeries(t *testing.T) {
	fx := newFixture(t)
	d := calendar.EventTime{Date: "2025-01-22"}

	out, err := NewResolver(fx.fake, nil).Apply(context.Background(), "primary", &fx.master,
		&calendar.EventPatch{Title: strPtr("Team Sync (new room)"), Location: strPtr("Room 2")},
		Request{EventID: fx.master.ID, Scope: ScopeFuture, FutureStartDate: &d})
	require.NoError(t, err)
	assert.Equal(t, ScopeFuture, out.Scope)
	assert.Equal(t, KindRecurringMaster, out.Kind)

	events := fx.fake.Events("primary")
	require.Len(t, events, 2)

	original := events[0]
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;UNTIL=20250115T090000Z;BYDAY=WE"}, original.Recurrence)
	assert.Equal(t, "Team Sync", original.Title, "the original series keeps its fields")
	assert.Equal(t, original.Recurrence, out.Truncated.Recurrence)

	next := events[1]
	assert.Equal(t, out.Event.ID, next.ID)
	assert.Equal(t, "Team Sync (new room)", next.Title)
	assert.Equal(t, "Room 2", next.Location)
	assert.True(t, next.Start.DateTime.Equal(time.Date(2025, 1, 22, 10, 0, 0, 0, fx.loc)))
	assert.Equal(t, time.Hour, next.Duration())
	assert.Equal(t, "Europe/Berlin", next.Start.TimeZone)
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;COUNT=7;BYDAY=WE"}, next.Recurrence)
	assert.Equal(t, fx.master.Attendees, next.Attendees)
	assert.Equal(t, fx.master.Reminders, next.Reminders)
	assert.Equal(t, "private", next.Visibility)
	assert.Equal(t, fx.master.ID, next.PrivateProperties[SplitFromProperty])
	assert.Empty(t, next.HTMLLink)
	assert.Empty(t, next.RecurringEventID)

	require.Len(t, fx.fake.Patches, 1)
	require.Len(t, fx.fake.Inserts, 1)
	assert.Equal(t, fx.master.ID, fx.fake.Patches[0].EventID)
}

func TestApply_FutureFromInstanceWithNewTime(t *testing.T) {
	fx := newFixture(t)
	instance := fx.addInstance(15)
	newStart := time.Date(2025, 1, 15, 14, 0, 0, 0, fx.loc)

	out, err := NewResolver(fx.fake, nil).Apply(context.Background(), "primary", &instance,
		&calendar.EventPatch{Start: &calendar.EventTime{DateTime: newStart, TimeZone: "Europe/Berlin"}},
		Request{EventID: instance.ID, Scope: ScopeFuture, FutureStartDate: instance.OriginalStartTime})
	require.NoError(t, err)

	require.Len(t, fx.fake.Gets, 1)
	assert.Equal(t, fx.master.ID, fx.fake.Gets[0].EventID)
	assert.True(t, out.Event.Start.DateTime.Equal(newStart))
	assert.True(t, out.Event.End.DateTime.Equal(newStart.Add(time.Hour)), "duration is preserved")
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;COUNT=8;BYDAY=WE"}, out.Event.Recurrence)
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;UNTIL=20250108T090000Z;BYDAY=WE"}, out.Truncated.Recurrence)
}

func TestApply_FutureAtFirstOccurrenceEditsWholeSeries(t *testing.T) {
	fx := newFixture(t)
	d := calendar.EventTime{Date: "2025-01-01"}

	out, err := NewResolver(fx.fake, nil).Apply(context.Background(), "primary", &fx.master,
		&calendar.EventPatch{Title: strPtr("Renamed")},
		Request{EventID: fx.master.ID, Scope: ScopeFuture, FutureStartDate: &d})
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, out.Scope)
	assert.Equal(t, "Renamed", out.Event.Title)
	assert.Empty(t, fx.fake.Inserts)
}

func TestApply_FutureSecondStepFailure(t *testing.T) {
	fx := newFixture(t)
	fx.fake.InsertErr = func(string, *calendar.Event) error {
		return &googleapi.Error{Code: http.StatusServiceUnavailable, Message: "backend unavailable"}
	}
	d := calendar.EventTime{Date: "2025-01-22"}

	_, err := NewResolver(fx.fake, nil).Apply(context.Background(), "primary", &fx.master,
		&calendar.EventPatch{Title: strPtr("x")},
		Request{EventID: fx.master.ID, Scope: ScopeFuture, FutureStartDate: &d})

	var partial *PartialSplitError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, fx.master.ID, partial.MasterID)
	assert.Equal(t, http.StatusServiceUnavailable, calendar.StatusCode(err))
	assert.False(t, IsValidation(err))

	events := fx.fake.Events("primary")
	require.Len(t, events, 1)
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;UNTIL=20250115T090000Z;BYDAY=WE"}, events[0].Recurrence,
		"the truncation is not rolled back")
}

func TestApply_FutureAfterSeriesEnd(t *testing.T) {
	fx := newFixture(t)
	d := calendar.EventTime{Date: "2025-06-01"}

	_, err := NewResolver(fx.fake, nil).Apply(context.Background(), "primary", &fx.master,
		&calendar.EventPatch{Title: strPtr("x")},
		Request{EventID: fx.master.ID, Scope: ScopeFuture, FutureStartDate: &d})
	assert.ErrorIs(t, err, ErrNoFutureOccurrences)
	assert.Empty(t, fx.fake.Patches)
}

func TestApply_SingleFromMaster(t *testing.T) {
	fx := newFixture(t)
	instance := fx.addInstance(15)
	day := calendar.EventTime{Date: "2025-01-15"}

	out, err := NewResolver(fx.fake, nil).Apply(context.Background(), "primary", &fx.master,
		&calendar.EventPatch{Title: strPtr("Team Sync (moved)")},
		Request{EventID: fx.master.ID, Scope: ScopeSingle, OriginalStartTime: &day})
	require.NoError(t, err)

	require.Len(t, fx.fake.Patches, 1)
	assert.Equal(t, fx.master.ID+"_20250115T090000Z", fx.fake.Patches[0].EventID)
	assert.Equal(t, instance.ID, out.Event.ID)
	assert.Equal(t, "Team Sync (moved)", out.Event.Title)
	assert.Equal(t, "Team Sync", fx.fake.Events("primary")[0].Title)
}

func TestApply_SingleOnInstanceUsesItsOwnID(t *testing.T) {
	fx := newFixture(t)
	instance := fx.addInstance(8)

	_, err := NewResolver(fx.fake, nil).Apply(context.Background(), "primary", &instance,
		&calendar.EventPatch{Title: strPtr("x")},
		Request{EventID: instance.ID, Scope: ScopeSingle})
	require.NoError(t, err)
	require.Len(t, fx.fake.Patches, 1)
	assert.Equal(t, instance.ID, fx.fake.Patches[0].EventID)
}

func TestApply_AllRedirectsInstancesToTheMaster(t *testing.T) {
	fx := newFixture(t)
	instance := fx.addInstance(15)

	// Without a target the instance identifier alone is enough.
	_, err := NewResolver(fx.fake, nil).Apply(context.Background(), "primary", nil,
		&calendar.EventPatch{Title: strPtr("Renamed")},
		Request{EventID: instance.ID})
	require.NoError(t, err)
	assert.Equal(t, fx.master.ID, fx.fake.Patches[0].EventID)

	// Moving an instance moves the master by the same amount.
	moved := instance.Start.DateTime.Add(4 * time.Hour)
	out, err := NewResolver(fx.fake, nil).Apply(context.Background(), "primary", &instance,
		&calendar.EventPatch{Start: &calendar.EventTime{DateTime: moved, TimeZone: "Europe/Berlin"}},
		Request{EventID: instance.ID, Scope: ScopeAll})
	require.NoError(t, err)
	assert.Equal(t, fx.master.ID, out.Event.ID)
	assert.True(t, out.Event.Start.DateTime.Equal(time.Date(2025, 1, 1, 14, 0, 0, 0, fx.loc)))
}

func TestInstanceID(t *testing.T) {
	loc := berlin(t)

	got, err := InstanceID("abc123", calendar.EventTime{DateTime: time.Date(2025, 1, 15, 10, 0, 0, 0, loc)})
	require.NoError(t, err)
	assert.Equal(t, "abc123_20250115T090000Z", got)

	got, err = InstanceID("abc123", calendar.EventTime{Date: "2025-01-15"})
	require.NoError(t, err)
	assert.Equal(t, "abc123_20250115", got)

	_, err = InstanceID("", calendar.EventTime{Date: "2025-01-15"})
	assert.Error(t, err)
	_, err = InstanceID("abc123", calendar.EventTime{})
	assert.Error(t, err)

	master, ok := MasterID(got)
	assert.True(t, ok)
	assert.Equal(t, "abc123", master)
	_, ok = MasterID("abc123")
	assert.False(t, ok)
}
