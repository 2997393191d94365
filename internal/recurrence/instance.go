package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/teemow/calmux/internal/calendar"
)

// InstanceID returns the identifier Google assigns to one occurrence of a
// series: the master identifier and the original start in UTC.
func InstanceID(masterID string, originalStart calendar.EventTime) (string, error) {
	if masterID == "" {
		return "", fmt.Errorf("master event ID is required")
	}
	if originalStart.IsAllDay() {
		d, err := time.Parse(calendar.DateLayout, originalStart.Date)
		if err != nil {
			return "", fmt.Errorf("invalid original start date %q: %w", originalStart.Date, err)
		}
		return masterID + "_" + d.Format(rrule.DateFormat), nil
	}
	if originalStart.DateTime.IsZero() {
		return "", fmt.Errorf("original start time is required")
	}
	return masterID + "_" + originalStart.DateTime.UTC().Format(rrule.DateTimeFormat), nil
}

// MasterID extracts the series identifier from an instance identifier.
// Custom event identifiers cannot contain underscores.
func MasterID(eventID string) (string, bool) {
	master, suffix, ok := strings.Cut(eventID, "_")
	if !ok || master == "" || suffix == "" {
		return "", false
	}
	return master, true
}

// seriesLocation returns the zone occurrences of master are generated in.
func seriesLocation(master *calendar.Event) *time.Location {
	if master.Start.IsAllDay() {
		return time.UTC
	}
	if master.Start.TimeZone != "" {
		if loc, err := time.LoadLocation(master.Start.TimeZone); err == nil {
			return loc
		}
	}
	return master.Start.DateTime.Location()
}

// occurrenceStart turns a user supplied boundary into an occurrence start of
// master. A bare date on a timed series takes the series' time of day.
func occurrenceStart(master *calendar.Event, t calendar.EventTime) (time.Time, error) {
	loc := seriesLocation(master)
	if t.IsAllDay() {
		d, err := time.Parse(calendar.DateLayout, t.Date)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", t.Date, err)
		}
		if master.Start.IsAllDay() {
			return d, nil
		}
		clock := master.Start.DateTime.In(loc)
		return time.Date(d.Year(), d.Month(), d.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, loc), nil
	}
	if t.DateTime.IsZero() {
		return time.Time{}, fmt.Errorf("time is required")
	}
	return t.InLocation(loc).DateTime, nil
}
