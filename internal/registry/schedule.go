package registry

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/teemow/calmux/internal/logging"
)

// ScheduleReset clears the registry on every tick of the standard cron
// expression spec. The returned function stops the schedule and waits for a
// running reset to finish.
func (r *Registry) ScheduleReset(spec string) (stop func(), err error) {
	c := cron.New(cron.WithLogger(logging.CronLogger(r.logger)))
	if _, err := c.AddFunc(spec, func() {
		r.Reset()
		r.logger.Info("calendar registry reset", "schedule", spec)
	}); err != nil {
		return nil, fmt.Errorf("invalid registry reset schedule %q: %w", spec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
