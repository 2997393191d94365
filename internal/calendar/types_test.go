package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventTime(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	tests := []struct {
		name         string
		value        string
		tz           string
		wantAllDay   bool
		wantFloating bool
		wantInstant  time.Time
		wantErr      bool
	}{
		{
			name:        "date",
			value:       "2025-01-15",
			wantAllDay:  true,
			wantInstant: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:        "rfc3339",
			value:       "2025-01-15T10:00:00+02:00",
			wantInstant: time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC),
		},
		{
			name:         "local without zone stays floating",
			value:        "2025-01-15T10:00:00",
			wantFloating: true,
			wantInstant:  time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			name:        "local placed in zone",
			value:       "2025-01-15T10:00:00",
			tz:          "Europe/Berlin",
			wantInstant: time.Date(2025, 1, 15, 10, 0, 0, 0, berlin),
		},
		{name: "empty", value: " ", wantErr: true},
		{name: "garbage", value: "tomorrow", wantErr: true},
		{name: "bad date", value: "2025-13-45", wantErr: true},
		{name: "bad zone", value: "2025-01-15T10:00:00", tz: "Mars/Olympus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEventTime(tt.value, tt.tz)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllDay, got.IsAllDay())
			assert.Equal(t, tt.wantFloating, got.Floating)
			instant, ok := got.Instant()
			require.True(t, ok)
			assert.True(t, tt.wantInstant.Equal(instant), "got %s want %s", instant, tt.wantInstant)
		})
	}
}

func TestEventTime_InLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	floating, err := ParseEventTime("2025-03-01T09:30:00", "")
	require.NoError(t, err)

	rebased := floating.InLocation(tokyo)
	assert.False(t, rebased.Floating)
	assert.Equal(t, "Asia/Tokyo", rebased.TimeZone)
	assert.Equal(t, 9, rebased.DateTime.Hour())
	assert.True(t, rebased.DateTime.Equal(time.Date(2025, 3, 1, 0, 30, 0, 0, time.UTC)))

	fixed := EventTime{DateTime: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)}
	assert.Equal(t, fixed, fixed.InLocation(tokyo), "non-floating values are unchanged")
}

func TestEvent_Validate(t *testing.T) {
	start := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"timed", Event{Start: EventTime{DateTime: start}, End: EventTime{DateTime: start.Add(time.Hour)}}, false},
		{"all day", Event{Start: EventTime{Date: "2025-01-15"}, End: EventTime{Date: "2025-01-16"}}, false},
		{"missing end", Event{Start: EventTime{DateTime: start}}, true},
		{"mixed kinds", Event{Start: EventTime{Date: "2025-01-15"}, End: EventTime{DateTime: start}}, true},
		{"end before start", Event{Start: EventTime{DateTime: start}, End: EventTime{DateTime: start.Add(-time.Minute)}}, true},
		{"zero length", Event{Start: EventTime{DateTime: start}, End: EventTime{DateTime: start}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAccessRole_Rank(t *testing.T) {
	assert.Greater(t, AccessOwner.Rank(), AccessWriter.Rank())
	assert.Greater(t, AccessWriter.Rank(), AccessReader.Rank())
	assert.Greater(t, AccessReader.Rank(), AccessFreeBusyReader.Rank())
	assert.Greater(t, AccessFreeBusyReader.Rank(), AccessRole("none").Rank())

	assert.True(t, AccessWriter.CanWrite())
	assert.False(t, AccessReader.CanWrite())
}

func TestEventQuery_Validate(t *testing.T) {
	now := time.Now()
	assert.NoError(t, EventQuery{}.Validate())
	assert.NoError(t, EventQuery{TimeMin: now, TimeMax: now.Add(time.Hour), PrivateExtendedProperty: []string{"a=b"}}.Validate())
	assert.Error(t, EventQuery{TimeMin: now, TimeMax: now}.Validate())
	assert.Error(t, EventQuery{MaxResults: -1}.Validate())
	assert.Error(t, EventQuery{SharedExtendedProperty: []string{"novalue"}}.Validate())
}

func TestEventPatch_ApplyTo(t *testing.T) {
	title := "Renamed"
	ev := Event{
		ID:                "ev1",
		Title:             "Original",
		Location:          "Room 1",
		PrivateProperties: map[string]string{"keep": "1"},
	}
	patch := &EventPatch{
		Title:             &title,
		SetAttendees:      true,
		PrivateProperties: map[string]string{"added": "2"},
	}

	got := patch.ApplyTo(ev)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, "Room 1", got.Location)
	assert.Empty(t, got.Attendees)
	assert.Equal(t, map[string]string{"keep": "1", "added": "2"}, got.PrivateProperties)
	assert.Equal(t, map[string]string{"keep": "1"}, ev.PrivateProperties, "original untouched")

	assert.False(t, patch.IsEmpty())
	assert.False(t, patch.ChangesTime())
	assert.True(t, (&EventPatch{}).IsEmpty())
	assert.True(t, (&EventPatch{End: &EventTime{Date: "2025-01-16"}}).ChangesTime())
}

func TestCalendarInfo_DisplayName(t *testing.T) {
	assert.Equal(t, "Team", CalendarInfo{Summary: "Team"}.DisplayName())
	assert.Equal(t, "Work", CalendarInfo{Summary: "team@corp", SummaryOverride: "Work"}.DisplayName())
}
