// Package fetch lists events from many calendars of one account at once and
// reassembles the per calendar results.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/logging"
)

// DefaultMaxConcurrency bounds parallel direct listings per account.
const DefaultMaxConcurrency = 8

// Result is the outcome for one calendar. Exactly one of Events or Error is
// meaningful; Err keeps the original error for callers that classify it.
type Result struct {
	CalendarID string           `json:"calendarId"`
	Events     []calendar.Event `json:"events,omitempty"`
	Error      string           `json:"error,omitempty"`
	Err        error            `json:"-"`
}

// Failed reports whether listing this calendar failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

func newResult(calendarID string, events []calendar.Event, err error) Result {
	r := Result{CalendarID: calendarID, Events: events, Err: err}
	if err != nil {
		r.Events = nil
		r.Error = calendar.Reason(err)
	}
	return r
}

// Coordinator fans out event listings across calendars.
type Coordinator struct {
	maxConcurrency int
	metrics        *instrumentation.Metrics
	logger         *slog.Logger
}

// NewCoordinator creates a Coordinator. A non-positive maxConcurrency selects
// DefaultMaxConcurrency; metrics and logger may be nil.
func NewCoordinator(maxConcurrency int, metrics *instrumentation.Metrics, logger *slog.Logger) *Coordinator {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{maxConcurrency: maxConcurrency, metrics: metrics, logger: logger}
}

// Fetch lists every calendar in calendarIDs with the shared query q and
// returns one Result per calendar in input order. A single calendar is listed
// directly. Several calendars go through the source's batch endpoint when it
// implements calendar.BatchEventLister and through bounded parallel listings
// otherwise. The error return is reserved for malformed requests.
func (c *Coordinator) Fetch(ctx context.Context, source calendar.EventLister, calendarIDs []string, q calendar.EventQuery) ([]Result, error) {
	if source == nil {
		return nil, fmt.Errorf("no calendar source given")
	}
	if len(calendarIDs) == 0 {
		return nil, fmt.Errorf("at least one calendar is required")
	}
	for _, id := range calendarIDs {
		if id == "" {
			return nil, fmt.Errorf("calendar identifiers must not be empty")
		}
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event query: %w", err)
	}

	start := time.Now()
	var (
		results []Result
		mode    string
	)
	switch batcher, ok := source.(calendar.BatchEventLister); {
	case len(calendarIDs) == 1:
		mode = instrumentation.FetchModeDirect
		events, err := source.ListEvents(ctx, calendarIDs[0], q)
		results = []Result{newResult(calendarIDs[0], events, err)}
	case ok:
		mode = instrumentation.FetchModeBatch
		results = c.fetchBatch(ctx, source, batcher, calendarIDs, q)
	default:
		mode = instrumentation.FetchModeParallel
		results = c.fetchParallel(ctx, source, calendarIDs, q)
	}

	status := instrumentation.StatusSuccess
	for _, r := range results {
		if r.Failed() {
			status = instrumentation.StatusError
			break
		}
	}
	c.metrics.RecordCalendarFetch(ctx, mode, status, time.Since(start))
	return results, nil
}

func (c *Coordinator) fetchBatch(ctx context.Context, source calendar.EventLister, batcher calendar.BatchEventLister, calendarIDs []string, q calendar.EventQuery) []Result {
	listed, err := batcher.BatchListEvents(ctx, calendarIDs, q)
	if err != nil || len(listed) != len(calendarIDs) {
		c.logger.Warn("batch listing failed, falling back to parallel listing",
			logging.Account(source.Account()),
			slog.Int("calendars", len(calendarIDs)),
			logging.Err(err))
		return c.fetchParallel(ctx, source, calendarIDs, q)
	}
	results := make([]Result, len(listed))
	for i, l := range listed {
		results[i] = newResult(calendarIDs[i], l.Events, l.Err)
	}
	return results
}

func (c *Coordinator) fetchParallel(ctx context.Context, source calendar.EventLister, calendarIDs []string, q calendar.EventQuery) []Result {
	results := make([]Result, len(calendarIDs))
	var g errgroup.Group
	g.SetLimit(c.maxConcurrency)
	for i, id := range calendarIDs {
		g.Go(func() error {
			events, err := source.ListEvents(ctx, id, q)
			results[i] = newResult(id, events, err)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Merge flattens the events of successful results and collects the failures.
func Merge(results []Result) ([]calendar.Event, []Result) {
	var (
		events   []calendar.Event
		failures []Result
	)
	for _, r := range results {
		if r.Failed() {
			failures = append(failures, r)
			continue
		}
		events = append(events, r.Events...)
	}
	return events, failures
}

// SortEvents orders events chronologically by start. Events without a usable
// start go last; ties keep their input order.
func SortEvents(events []calendar.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, okA := events[i].Start.Instant()
		b, okB := events[j].Start.Instant()
		if !okA || !okB {
			return okA && !okB
		}
		return a.Before(b)
	})
}
