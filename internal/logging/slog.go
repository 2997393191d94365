package logging

import (
	"log/slog"
)

// Attribute keys shared by every calmux log line.
const (
	KeyOperation = "operation"
	KeyService   = "service"
	KeyAccount   = "account"
	KeyCalendar  = "calendar"
	KeyEventID   = "event_id"
	KeyStatus    = "status"
	KeyError     = "error"
)

// WithOperation scopes logger to one calmux operation ("commit_proposed").
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(Operation(operation))
}

// WithService scopes logger to a component such as "api".
func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

// Account is the configured account name, not the Google identity.
func Account(account string) slog.Attr { return slog.String(KeyAccount, account) }

func Calendar(calendarID string) slog.Attr { return slog.String(KeyCalendar, calendarID) }

func EventID(id string) slog.Attr { return slog.String(KeyEventID, id) }

func Status(status string) slog.Attr { return slog.String(KeyStatus, status) }

// Err returns the error attribute. A nil err yields an empty group, which
// handlers drop, so Err(maybeNil) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}
