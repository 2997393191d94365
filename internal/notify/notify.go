// Package notify publishes a change feed of the events calmux writes.
package notify

import (
	"context"
	"time"

	"github.com/teemow/calmux/internal/calendar"
)

// Kind is the type of change.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	// KindSplit is published for the new series of a future scoped edit.
	KindSplit Kind = "split"
)

// Change is one event written by calmux.
type Change struct {
	Kind       Kind           `json:"kind"`
	AccountID  string         `json:"accountId"`
	CalendarID string         `json:"calendarId"`
	Event      calendar.Event `json:"event"`
	// SplitFrom is the series a KindSplit change was split off.
	SplitFrom string    `json:"splitFrom,omitempty"`
	At        time.Time `json:"at"`
}

// NewChange builds a Change for ev stamped with the current time.
func NewChange(kind Kind, ev calendar.Event) Change {
	return Change{
		Kind:       kind,
		AccountID:  ev.AccountID,
		CalendarID: ev.CalendarID,
		Event:      ev,
		At:         time.Now().UTC(),
	}
}

// Publisher delivers changes. Publishing is best effort for callers: a
// failure never undoes the write it reports.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Nop discards every change.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Change) error { return nil }
