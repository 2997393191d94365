// Package logging holds the slog conventions shared by calmux.
//
// Attribute helpers keep key names consistent across packages:
//
//	logger.Warn("calendar listing failed",
//	    logging.Account("work"),
//	    logging.Calendar("team@group.calendar.google.com"),
//	    logging.Err(err))
//
// CronLogger routes the registry reset scheduler through the same logger.
package logging
