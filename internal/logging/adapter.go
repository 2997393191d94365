package logging

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger routes robfig/cron scheduler output to slog. Scheduler chatter
// (schedule, wake, run) goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

// CronLogger adapts logger to cron.Logger. A nil logger uses slog.Default().
func CronLogger(logger *slog.Logger) cron.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return cronLogger{logger: logger.With(slog.String("component", "cron"))}
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, Err(err))...)
}
