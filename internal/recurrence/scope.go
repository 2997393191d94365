// Package recurrence scopes edits of recurring events to one occurrence, the
// whole series, or the occurrences from a given date on.
package recurrence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teemow/calmux/internal/calendar"
)

// Kind classifies the event an edit targets.
type Kind string

const (
	KindSingleton         Kind = "singleton"
	KindRecurringMaster   Kind = "recurringMaster"
	KindRecurringInstance Kind = "recurringInstance"
)

// DetectKind classifies ev.
func DetectKind(ev *calendar.Event) Kind {
	switch {
	case ev == nil:
		return KindSingleton
	case ev.RecurringEventID != "":
		return KindRecurringInstance
	case hasRule(ev.Recurrence):
		return KindRecurringMaster
	default:
		return KindSingleton
	}
}

func hasRule(lines []string) bool {
	for _, l := range lines {
		if isRRule(l) {
			return true
		}
	}
	return false
}

// Scope selects which occurrences of a series an edit applies to.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeAll    Scope = "all"
	ScopeFuture Scope = "future"
)

// ParseScope accepts the short scope names and their long forms. An empty
// value means ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "allinstances":
		return ScopeAll, nil
	case "single", "singleinstance":
		return ScopeSingle, nil
	case "future", "futureinstances":
		return ScopeFuture, nil
	default:
		return "", fmt.Errorf("invalid scope %q: must be single, all or future", s)
	}
}

var (
	// ErrScopeNotRecurring rejects a non-default scope on a singleton.
	ErrScopeNotRecurring = errors.New("scope other than all only applies to recurring events")

	// ErrNoFutureOccurrences means nothing of the series is left to split off.
	ErrNoFutureOccurrences = errors.New("the series has no occurrences on or after futureStartDate")
)

// MissingFieldError names a field a scope requires.
type MissingFieldError struct {
	Field string
	Scope Scope
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is required when scope is %s", e.Field, e.Scope)
}

// IsValidation reports whether err was caused by the request rather than by
// the calendar service.
func IsValidation(err error) bool {
	var missing *MissingFieldError
	return errors.Is(err, ErrScopeNotRecurring) ||
		errors.Is(err, ErrNoFutureOccurrences) ||
		errors.As(err, &missing)
}

// Request describes how an edit is scoped.
type Request struct {
	EventID string
	Scope   Scope

	// OriginalStartTime picks the occurrence for ScopeSingle. When the
	// target is itself an instance its own original start is used.
	OriginalStartTime *calendar.EventTime

	// FutureStartDate is the first occurrence moved to the new series for
	// ScopeFuture. A date on a timed series keeps the series' time of day.
	FutureStartDate *calendar.EventTime
}

// Validate checks the fields a scope needs. It runs before anything is read
// or written.
func (r Request) Validate() error {
	if r.EventID == "" {
		return &MissingFieldError{Field: "eventId", Scope: r.scope()}
	}
	switch r.scope() {
	case ScopeAll, ScopeSingle:
		return nil
	case ScopeFuture:
		if r.FutureStartDate == nil || r.FutureStartDate.IsZero() {
			return &MissingFieldError{Field: "futureStartDate", Scope: ScopeFuture}
		}
		return nil
	default:
		return fmt.Errorf("invalid scope %q", r.Scope)
	}
}

// ValidateFor checks the request against the kind of the target event.
func (r Request) ValidateFor(kind Kind) error {
	scope := r.scope()
	if scope == ScopeAll {
		return nil
	}
	if kind == KindSingleton {
		return ErrScopeNotRecurring
	}
	if scope == ScopeSingle && kind == KindRecurringMaster && (r.OriginalStartTime == nil || r.OriginalStartTime.IsZero()) {
		return &MissingFieldError{Field: "originalStartTime", Scope: ScopeSingle}
	}
	return nil
}

// NeedsTarget reports whether the target event must be read before the edit.
func (r Request) NeedsTarget() bool {
	return r.scope() != ScopeAll
}

func (r Request) scope() Scope {
	if r.Scope == "" {
		return ScopeAll
	}
	return r.Scope
}
