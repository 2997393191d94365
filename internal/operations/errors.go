package operations

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/detection"
	"github.com/teemow/calmux/internal/recurrence"
)

// ValidationError is a malformed request. It is raised before anything is
// written and never retried.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ResolutionError means no requested calendar exists on any searched account.
type ResolutionError struct {
	Calendars []string
	Accounts  []string
	Warnings  []string
}

func (e *ResolutionError) Error() string {
	quoted := make([]string, len(e.Calendars))
	for i, c := range e.Calendars {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	msg := fmt.Sprintf("no calendars found matching %s in accounts %s",
		strings.Join(quoted, ", "), strings.Join(e.Accounts, ", "))
	if len(e.Warnings) > 0 {
		msg += " (" + strings.Join(e.Warnings, "; ") + ")"
	}
	return msg
}

// DuplicateError blocks a create that matches an existing event too closely.
type DuplicateError struct {
	EventID    string
	Title      string
	CalendarID string
	Score      float64
	Duplicates []detection.Duplicate
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("event looks like a duplicate of %q (id %s, similarity %.2f); set allowDuplicates to create it anyway",
		e.Title, e.EventID, e.Score)
}

// ExternalError is a failure reported by the calendar service.
type ExternalError struct {
	Account    string
	CalendarID string
	Op         string
	Err        error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("failed to %s in calendar %s of account %s: %s", e.Op, e.CalendarID, e.Account, calendar.Reason(e.Err))
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// ErrorTranslator turns an error of op against a calendar into the error
// returned to callers.
type ErrorTranslator func(op, account, calendarID string, err error) error

// TranslateError is the default ErrorTranslator. Errors already classified
// are returned unchanged, a reused event identifier becomes a
// ValidationError, and everything else an ExternalError.
func TranslateError(op, account, calendarID string, err error) error {
	if err == nil {
		return nil
	}
	var (
		validation *ValidationError
		resolution *ResolutionError
		duplicate  *DuplicateError
		external   *ExternalError
		split      *recurrence.PartialSplitError
	)
	if errors.As(err, &validation) || errors.As(err, &resolution) || errors.As(err, &duplicate) ||
		errors.As(err, &external) || errors.As(err, &split) {
		return err
	}
	if recurrence.IsValidation(err) {
		return &ValidationError{Message: err.Error(), Err: err}
	}
	if calendar.IsAlreadyExists(err) {
		return &ValidationError{
			Field:   "eventId",
			Message: "an event with this identifier already exists in the calendar; choose another eventId or omit it",
			Err:     err,
		}
	}
	return &ExternalError{Account: account, CalendarID: calendarID, Op: op, Err: err}
}
