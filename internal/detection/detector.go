// Package detection finds existing events that duplicate or overlap a
// candidate event before it is written.
package detection

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/fetch"
	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/logging"
	"github.com/teemow/calmux/internal/similarity"
)

// Options selects which checks run and against which calendars.
type Options struct {
	CheckDuplicates bool
	CheckConflicts  bool

	// CalendarsToCheck are additional calendars of the same account searched
	// for conflicts. The target calendar is always searched.
	CalendarsToCheck []string

	// DuplicateThreshold is the minimum score reported as a duplicate. Zero
	// selects similarity.DefaultDuplicateThreshold.
	DuplicateThreshold float64

	// ExcludeEventID skips an event being updated together with the
	// instances of its series.
	ExcludeEventID string

	// Location is the zone of the target calendar. It defines calendar days
	// for the fetch window and the midnight all-day events start and end at.
	// Defaults to UTC for all-day events and to the candidate's own zone for
	// the window.
	Location *time.Location
}

// Duplicate is an existing event that looks like the candidate.
type Duplicate struct {
	Event        calendar.Event `json:"event"`
	Score        float64        `json:"score"`
	MatchedTitle string         `json:"matchedTitle"`
}

// Conflict is an existing event whose time overlaps the candidate.
type Conflict struct {
	Event           calendar.Event `json:"event"`
	OverlapDuration time.Duration  `json:"-"`
	OverlapMinutes  float64        `json:"overlapMinutes"`
	OverlapPercent  float64        `json:"overlapPercent"`
}

// Report is the outcome of a check.
type Report struct {
	Duplicates []Duplicate `json:"duplicates,omitempty"`
	Conflicts  []Conflict  `json:"conflicts,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// BestDuplicate returns the highest scoring duplicate, or nil.
func (r *Report) BestDuplicate() *Duplicate {
	if r == nil || len(r.Duplicates) == 0 {
		return nil
	}
	return &r.Duplicates[0]
}

// Detector runs duplicate and conflict checks.
type Detector struct {
	fetcher *fetch.Coordinator
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// New creates a Detector that lists events through fetcher.
func New(fetcher *fetch.Coordinator, metrics *instrumentation.Metrics, logger *slog.Logger) *Detector {
	if fetcher == nil {
		fetcher = fetch.NewCoordinator(0, metrics, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{fetcher: fetcher, metrics: metrics, logger: logger}
}

// Check compares candidate with the events around it. Duplicates are only
// searched in targetCalendarID, conflicts in the target calendar and
// opts.CalendarsToCheck. A failure to list the target calendar is returned as
// an error; failures of the other calendars become warnings.
func (d *Detector) Check(ctx context.Context, source calendar.EventLister, candidate *calendar.Event, targetCalendarID string, opts Options) (*Report, error) {
	report := &Report{}
	if !opts.CheckDuplicates && !opts.CheckConflicts {
		return report, nil
	}
	if targetCalendarID == "" {
		return nil, fmt.Errorf("target calendar is required")
	}
	candRange, ok := similarity.FromEventIn(candidate, opts.Location)
	if !ok {
		return report, nil
	}

	calendarIDs := []string{targetCalendarID}
	if opts.CheckConflicts {
		seen := map[string]bool{targetCalendarID: true}
		for _, id := range opts.CalendarsToCheck {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			calendarIDs = append(calendarIDs, id)
		}
	}

	timeMin, timeMax := dayWindow(candRange, opts.Location)
	results, err := d.fetcher.Fetch(ctx, source, calendarIDs, calendar.EventQuery{
		TimeMin:         timeMin,
		TimeMax:         timeMax,
		ExpandRecurring: true,
	})
	if err != nil {
		return nil, err
	}

	if results[0].Failed() {
		return nil, fmt.Errorf("failed to list events of calendar %s: %w", targetCalendarID, results[0].Err)
	}
	for _, r := range results[1:] {
		if r.Failed() {
			d.logger.Warn("conflict check skipped calendar",
				logging.Account(source.Account()),
				logging.Calendar(r.CalendarID),
				logging.Err(r.Err))
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("could not check calendar %s for conflicts: %s", r.CalendarID, r.Error))
		}
	}

	excluded := func(ev *calendar.Event) bool {
		if ev.IsCancelled() {
			return true
		}
		for _, id := range []string{candidate.ID, opts.ExcludeEventID} {
			if id != "" && (ev.ID == id || ev.RecurringEventID == id) {
				return true
			}
		}
		return false
	}

	reported := map[string]bool{}
	if opts.CheckDuplicates {
		threshold := opts.DuplicateThreshold
		if threshold <= 0 {
			threshold = similarity.DefaultDuplicateThreshold
		}
		for i := range results[0].Events {
			ev := &results[0].Events[i]
			if excluded(ev) {
				continue
			}
			score := similarity.Score(candidate, ev)
			if !similarity.IsDuplicate(score, threshold) {
				continue
			}
			report.Duplicates = append(report.Duplicates, Duplicate{Event: *ev, Score: score, MatchedTitle: ev.Title})
			reported[eventKey(targetCalendarID, ev)] = true
		}
		sort.SliceStable(report.Duplicates, func(i, j int) bool {
			return report.Duplicates[i].Score > report.Duplicates[j].Score
		})
	}

	if opts.CheckConflicts {
		for _, r := range results {
			for i := range r.Events {
				ev := &r.Events[i]
				if excluded(ev) || reported[eventKey(r.CalendarID, ev)] {
					continue
				}
				evRange, ok := similarity.FromEventIn(ev, opts.Location)
				if !ok || !similarity.Overlaps(candRange, evRange) {
					continue
				}
				overlap := similarity.OverlapDuration(candRange, evRange)
				report.Conflicts = append(report.Conflicts, Conflict{
					Event:           *ev,
					OverlapDuration: overlap,
					OverlapMinutes:  overlap.Minutes(),
					OverlapPercent:  percentOf(overlap, candRange.Duration()),
				})
				reported[eventKey(r.CalendarID, ev)] = true
			}
		}
	}

	d.metrics.RecordDetectionFindings(ctx, instrumentation.FindingDuplicate, len(report.Duplicates))
	d.metrics.RecordDetectionFindings(ctx, instrumentation.FindingConflict, len(report.Conflicts))
	return report, nil
}

func eventKey(calendarID string, ev *calendar.Event) string {
	return calendarID + "\x00" + ev.ID
}

func percentOf(part, whole time.Duration) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}

// dayWindow returns the midnight-aligned window covering r in loc. All-day
// ranges keep their calendar dates.
func dayWindow(r similarity.TimeRange, loc *time.Location) (time.Time, time.Time) {
	start, end := r.Start, r.End
	if loc == nil {
		loc = start.Location()
	}
	if !r.AllDay {
		start, end = start.In(loc), end.In(loc)
	}
	timeMin := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	timeMax := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	if timeMax.Before(r.End) || !timeMax.After(timeMin) {
		timeMax = timeMax.AddDate(0, 0, 1)
	}
	return timeMin, timeMax
}
