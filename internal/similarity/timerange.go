package similarity

import (
	"time"

	"github.com/teemow/calmux/internal/calendar"
)

// TimeRange is the half-open interval [Start, End) an event occupies.
type TimeRange struct {
	Start  time.Time
	End    time.Time
	AllDay bool
}

// FromEvent derives the time range of ev. All-day boundaries become midnight
// UTC of their dates. The second value is false when a boundary is missing or
// unparseable, or when the range is empty.
func FromEvent(ev *calendar.Event) (TimeRange, bool) {
	return FromEventIn(ev, nil)
}

// FromEventIn is FromEvent with all-day boundaries at midnight in loc. Use it
// whenever all-day and timed events of one calendar are compared.
func FromEventIn(ev *calendar.Event, loc *time.Location) (TimeRange, bool) {
	if ev == nil {
		return TimeRange{}, false
	}
	start, ok := ev.Start.InstantIn(loc)
	if !ok {
		return TimeRange{}, false
	}
	end, ok := ev.End.InstantIn(loc)
	if !ok || !start.Before(end) {
		return TimeRange{}, false
	}
	return TimeRange{Start: start, End: end, AllDay: ev.Start.IsAllDay()}, true
}

// Duration returns End minus Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Overlaps reports whether a and b share any instant. Ranges that merely
// touch do not overlap.
func Overlaps(a, b TimeRange) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// OverlapDuration returns how long a and b overlap, or zero.
func OverlapDuration(a, b TimeRange) time.Duration {
	if !Overlaps(a, b) {
		return 0
	}
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	return end.Sub(start)
}

// SameDay reports whether a and b start on the same calendar day, judged in
// the location of a's start.
func SameDay(a, b TimeRange) bool {
	y1, m1, d1 := a.Start.Date()
	y2, m2, d2 := b.Start.In(a.Start.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
