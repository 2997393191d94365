package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := CronLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	logger.Info("wake", "now", "2026-10-19T09:00:00Z")
	assert.Zero(t, buf.Len(), "scheduler chatter is logged at debug")

	logger.Error(errors.New("job panicked"), "panic", "entry", 1)
	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"component":"cron"`)
	assert.Contains(t, out, `"entry":1`)
	assert.Contains(t, out, `"error":"job panicked"`)
}

func TestCronLogger_NilUsesDefault(t *testing.T) {
	assert.NotPanics(t, func() {
		CronLogger(nil).Info("start")
	})
}
