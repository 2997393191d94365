package recurrence

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/logging"
)

// SplitFromProperty is the private extended property that links a series
// split off by a future scoped edit to the series it came from.
const SplitFromProperty = "calmuxSplitFrom"

// Outcome describes what an edit changed.
type Outcome struct {
	Kind  Kind  `json:"kind"`
	Scope Scope `json:"scope"`
	// Event is the patched event, or the new series for a split.
	Event *calendar.Event `json:"event"`
	// Truncated is the original series after a split.
	Truncated *calendar.Event `json:"truncatedSeries,omitempty"`
}

// PartialSplitError is returned when a series was truncated but the series
// replacing its future occurrences could not be created. The truncation is
// not rolled back.
type PartialSplitError struct {
	CalendarID string
	MasterID   string
	Until      time.Time
	Err        error
}

func (e *PartialSplitError) Error() string {
	return fmt.Sprintf("series %s was truncated to end %s but the new series could not be created: %v",
		e.MasterID, e.Until.Format(time.RFC3339), e.Err)
}

func (e *PartialSplitError) Unwrap() error {
	return e.Err
}

// Resolver applies scoped edits through an EventMutator.
type Resolver struct {
	svc    calendar.EventMutator
	logger *slog.Logger
}

// NewResolver creates a Resolver writing through svc.
func NewResolver(svc calendar.EventMutator, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{svc: svc, logger: logger}
}

// Apply patches the occurrences selected by req. target is the event named
// by req.EventID; it may be nil for ScopeAll.
func (r *Resolver) Apply(ctx context.Context, calendarID string, target *calendar.Event, patch *calendar.EventPatch, req Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	kind := DetectKind(target)
	if target == nil {
		if req.NeedsTarget() {
			return nil, fmt.Errorf("event %s must be read before a %s scoped edit", req.EventID, req.scope())
		}
		if _, ok := MasterID(req.EventID); ok {
			kind = KindRecurringInstance
		}
	}
	if err := req.ValidateFor(kind); err != nil {
		return nil, err
	}

	switch req.scope() {
	case ScopeSingle:
		return r.applySingle(ctx, calendarID, target, kind, patch, req)
	case ScopeFuture:
		return r.applyFuture(ctx, calendarID, target, kind, patch, req)
	default:
		return r.applyAll(ctx, calendarID, target, kind, patch, req.EventID)
	}
}

func (r *Resolver) applyAll(ctx context.Context, calendarID string, target *calendar.Event, kind Kind, patch *calendar.EventPatch, eventID string) (*Outcome, error) {
	id := eventID
	if kind == KindRecurringInstance {
		if target != nil {
			id = target.RecurringEventID
		} else if master, ok := MasterID(eventID); ok {
			id = master
		}
		if target != nil && patch.ChangesTime() {
			master, err := r.svc.GetEvent(ctx, calendarID, id)
			if err != nil {
				return nil, fmt.Errorf("failed to get series %s: %w", id, err)
			}
			patch = rebaseTimes(patch, target, master)
		}
	}

	updated, err := r.svc.PatchEvent(ctx, calendarID, id, patch)
	if err != nil {
		return nil, err
	}
	return &Outcome{Kind: kind, Scope: ScopeAll, Event: updated}, nil
}

func (r *Resolver) applySingle(ctx context.Context, calendarID string, target *calendar.Event, kind Kind, patch *calendar.EventPatch, req Request) (*Outcome, error) {
	id := target.ID
	if req.OriginalStartTime != nil && !req.OriginalStartTime.IsZero() {
		series := target
		masterID := target.ID
		if kind == KindRecurringInstance {
			masterID = target.RecurringEventID
			series = instanceSeries(target)
		}
		start, err := occurrenceStart(series, *req.OriginalStartTime)
		if err != nil {
			return nil, fmt.Errorf("invalid originalStartTime: %w", err)
		}
		original := calendar.EventTime{DateTime: start}
		if series.IsAllDay() {
			original = calendar.EventTime{Date: start.Format(calendar.DateLayout)}
		}
		if id, err = InstanceID(masterID, original); err != nil {
			return nil, err
		}
	}

	updated, err := r.svc.PatchEvent(ctx, calendarID, id, patch)
	if err != nil {
		return nil, err
	}
	return &Outcome{Kind: kind, Scope: ScopeSingle, Event: updated}, nil
}

func (r *Resolver) applyFuture(ctx context.Context, calendarID string, target *calendar.Event, kind Kind, patch *calendar.EventPatch, req Request) (*Outcome, error) {
	master := target
	if kind == KindRecurringInstance {
		var err error
		if master, err = r.svc.GetEvent(ctx, calendarID, target.RecurringEventID); err != nil {
			return nil, fmt.Errorf("failed to get series %s: %w", target.RecurringEventID, err)
		}
	}

	cutoff, err := occurrenceStart(master, *req.FutureStartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid futureStartDate: %w", err)
	}
	first, ok := master.Start.Instant()
	if !ok {
		return nil, fmt.Errorf("series %s has no start", master.ID)
	}
	series := Series{Rules: master.Recurrence, Start: first.In(seriesLocation(master)), AllDay: master.IsAllDay()}
	trunc, err := series.Truncate(cutoff)
	if err != nil {
		return nil, err
	}

	// Nothing precedes the cutoff, so the edit covers the whole series.
	if trunc.Last.IsZero() {
		updated, err := r.svc.PatchEvent(ctx, calendarID, master.ID, patch)
		if err != nil {
			return nil, err
		}
		return &Outcome{Kind: kind, Scope: ScopeAll, Event: updated}, nil
	}

	truncated, err := r.svc.PatchEvent(ctx, calendarID, master.ID, &calendar.EventPatch{
		Recurrence:    trunc.Head,
		SetRecurrence: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to truncate series %s: %w", master.ID, err)
	}

	next := splitSeries(master, patch, trunc)
	created, err := r.svc.InsertEvent(ctx, calendarID, &next, calendar.InsertOptions{})
	if err != nil {
		r.logger.Error("series truncated but continuation not created",
			logging.Calendar(calendarID),
			logging.EventID(master.ID),
			logging.Err(err))
		return nil, &PartialSplitError{CalendarID: calendarID, MasterID: master.ID, Until: trunc.Last, Err: err}
	}

	r.logger.Info("split recurring series",
		logging.Calendar(calendarID),
		logging.EventID(master.ID),
		slog.String("new_series", created.ID),
		slog.Time("cutoff", trunc.Next))
	return &Outcome{Kind: kind, Scope: ScopeFuture, Event: created, Truncated: truncated}, nil
}

// splitSeries builds the series continuing master at trunc.Next with patch
// applied. Without an explicit end the occurrence duration is preserved.
func splitSeries(master *calendar.Event, patch *calendar.EventPatch, trunc *Truncation) calendar.Event {
	next := *master
	next.ID = ""
	next.RecurringEventID = ""
	next.OriginalStartTime = nil
	next.Status = ""
	next.HTMLLink = ""
	next.MeetLink = ""
	next.Organizer = ""
	next.Created = time.Time{}
	next.Updated = time.Time{}
	next.Attendees = append([]calendar.Attendee(nil), master.Attendees...)
	next.SharedProperties = maps.Clone(master.SharedProperties)
	next.Recurrence = trunc.Tail

	duration := master.Duration()
	if master.IsAllDay() {
		days := int(duration / (24 * time.Hour))
		next.Start = calendar.EventTime{Date: trunc.Next.Format(calendar.DateLayout)}
		next.End = calendar.EventTime{Date: trunc.Next.AddDate(0, 0, days).Format(calendar.DateLayout)}
	} else {
		next.Start = calendar.EventTime{DateTime: trunc.Next, TimeZone: master.Start.TimeZone}
		next.End = calendar.EventTime{DateTime: trunc.Next.Add(duration), TimeZone: master.End.TimeZone}
	}

	next = patch.ApplyTo(next)
	if patch != nil && patch.Start != nil && patch.End == nil {
		if start, ok := next.Start.Instant(); ok && !next.IsAllDay() {
			next.End = calendar.EventTime{DateTime: start.Add(duration), TimeZone: next.Start.TimeZone}
		}
	}

	props := maps.Clone(next.PrivateProperties)
	if props == nil {
		props = map[string]string{}
	}
	props[SplitFromProperty] = master.ID
	next.PrivateProperties = props
	return next
}

// instanceSeries returns a stand-in for the series of instance, carrying the
// series' original start.
func instanceSeries(instance *calendar.Event) *calendar.Event {
	series := &calendar.Event{Start: instance.Start}
	if instance.OriginalStartTime != nil {
		series.Start = *instance.OriginalStartTime
		if series.Start.TimeZone == "" {
			series.Start.TimeZone = instance.Start.TimeZone
		}
	}
	return series
}

// rebaseTimes moves the master by the shift the patch applies to instance.
func rebaseTimes(patch *calendar.EventPatch, instance, master *calendar.Event) *calendar.EventPatch {
	out := *patch
	shift := func(to *calendar.EventTime, from, base calendar.EventTime) *calendar.EventTime {
		if to == nil || to.IsAllDay() != from.IsAllDay() || from.IsAllDay() != base.IsAllDay() {
			return to
		}
		fromAt, ok1 := from.Instant()
		toAt, ok2 := to.Instant()
		baseAt, ok3 := base.Instant()
		if !ok1 || !ok2 || !ok3 {
			return to
		}
		moved := baseAt.Add(toAt.Sub(fromAt))
		if base.IsAllDay() {
			return &calendar.EventTime{Date: moved.Format(calendar.DateLayout)}
		}
		tz := to.TimeZone
		if tz == "" {
			tz = base.TimeZone
		}
		return &calendar.EventTime{DateTime: moved, TimeZone: tz}
	}
	out.Start = shift(patch.Start, instance.Start, master.Start)
	out.End = shift(patch.End, instance.End, master.End)
	return &out
}
