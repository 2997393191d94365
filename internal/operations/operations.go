// Package operations implements the calendar operations exposed to the
// assistant: list, search, create, update and committing proposed events.
//
// Each operation composes a few shared primitives (account and calendar
// resolution, time zone lookup, error translation) with the registry, the
// fetch coordinator, the detector and the recurrence resolver.
package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/detection"
	"github.com/teemow/calmux/internal/fetch"
	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/logging"
	"github.com/teemow/calmux/internal/notify"
	"github.com/teemow/calmux/internal/registry"
	"github.com/teemow/calmux/internal/similarity"
)

// ClientProvider hands out authenticated calendar services.
type ClientProvider interface {
	// DefaultAccount is used when a request names no account.
	DefaultAccount() string
	Service(ctx context.Context, account string) (calendar.Service, error)
}

// Config holds the detection thresholds.
type Config struct {
	// DuplicateThreshold is the score at which an event is reported as a
	// duplicate.
	DuplicateThreshold float64
	// BlockingThreshold is the score at which a create is refused unless
	// duplicates are explicitly allowed.
	BlockingThreshold float64
}

func (c Config) withDefaults() Config {
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = similarity.DefaultDuplicateThreshold
	}
	if c.BlockingThreshold <= 0 {
		c.BlockingThreshold = similarity.DefaultBlockingThreshold
	}
	return c
}

// Deps are the collaborators of Operations. Only Clients is required.
type Deps struct {
	Clients   ClientProvider
	Registry  *registry.Registry
	Fetcher   *fetch.Coordinator
	Detector  *detection.Detector
	Notifier  notify.Publisher
	Translate ErrorTranslator
	Metrics   *instrumentation.Metrics
	Logger    *slog.Logger
}

// Operations runs calendar operations.
type Operations struct {
	clients   ClientProvider
	registry  *registry.Registry
	fetcher   *fetch.Coordinator
	detector  *detection.Detector
	notifier  notify.Publisher
	translate ErrorTranslator
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
	cfg       Config
}

// New wires Operations, filling in defaults for missing collaborators.
func New(deps Deps, cfg Config) (*Operations, error) {
	if deps.Clients == nil {
		return nil, fmt.Errorf("a client provider is required")
	}
	o := &Operations{
		clients:   deps.Clients,
		registry:  deps.Registry,
		fetcher:   deps.Fetcher,
		detector:  deps.Detector,
		notifier:  deps.Notifier,
		translate: deps.Translate,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		cfg:       cfg.withDefaults(),
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = registry.New(func(ctx context.Context, account string) (calendar.CalendarLister, error) {
			return o.clients.Service(ctx, account)
		}, o.metrics, o.logger)
	}
	if o.fetcher == nil {
		o.fetcher = fetch.NewCoordinator(0, o.metrics, o.logger)
	}
	if o.detector == nil {
		o.detector = detection.New(o.fetcher, o.metrics, o.logger)
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}
	if o.translate == nil {
		o.translate = TranslateError
	}
	return o, nil
}

// Registry returns the calendar registry shared by all operations.
func (o *Operations) Registry() *registry.Registry {
	return o.registry
}

// account returns the requested account or the default one.
func (o *Operations) account(requested string) string {
	if requested != "" {
		return requested
	}
	return o.clients.DefaultAccount()
}

// accounts returns the requested accounts, deduplicated, or the default one.
func (o *Operations) accounts(requested []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, a := range requested {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	if len(out) == 0 {
		out = []string{o.clients.DefaultAccount()}
	}
	return out
}

func calendarsOrPrimary(requested []string) []string {
	var out []string
	for _, c := range requested {
		if c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return []string{registry.PrimaryAlias}
	}
	return out
}

// target is one resolved calendar of one account.
type target struct {
	account    string
	calendarID string
	svc        calendar.Service
	loc        *time.Location
	warnings   []string
}

// resolveTarget resolves a single calendar for a write.
func (o *Operations) resolveTarget(ctx context.Context, account, calendarName string) (*target, error) {
	account = o.account(account)
	names := calendarsOrPrimary([]string{calendarName})

	svc, err := o.clients.Service(ctx, account)
	if err != nil {
		return nil, o.translate("authenticate", account, names[0], err)
	}

	res, err := o.registry.ResolveCalendarsToAccounts(ctx, names, []string{account})
	if err != nil {
		return nil, &ValidationError{Message: err.Error(), Err: err}
	}
	if res.Empty() {
		if len(res.Failures) > 0 {
			return nil, o.translate("resolve calendar", account, names[0], res.Failures[0].Err)
		}
		return nil, &ResolutionError{Calendars: names, Accounts: []string{account}, Warnings: res.Warnings}
	}

	ids := res.Accounts[account]
	t := &target{account: account, calendarID: ids[0], svc: svc, warnings: res.Warnings}
	if len(ids) > 1 {
		t.warnings = append(t.warnings, fmt.Sprintf("using calendar %s", ids[0]))
	}
	t.loc = o.location(ctx, account, t.calendarID)
	return t, nil
}

// location returns the zone of a calendar, UTC when unknown.
func (o *Operations) location(ctx context.Context, account, calendarID string) *time.Location {
	if tz := o.registry.TimeZone(ctx, account, calendarID); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.UTC
}

// publish reports a change. Failures are logged and never returned.
func (o *Operations) publish(ctx context.Context, change notify.Change) {
	status := instrumentation.StatusSuccess
	if err := o.notifier.Publish(ctx, change); err != nil {
		status = instrumentation.StatusError
		o.logger.Warn("failed to publish change",
			logging.Account(change.AccountID),
			logging.Calendar(change.CalendarID),
			logging.EventID(change.Event.ID),
			logging.Err(err))
	}
	o.metrics.RecordNotification(ctx, status)
}

// resolveTime places a floating boundary in loc.
func resolveTime(t calendar.EventTime, loc *time.Location) calendar.EventTime {
	t = t.InLocation(loc)
	if !t.IsAllDay() && !t.DateTime.IsZero() && t.TimeZone == "" {
		t.TimeZone = loc.String()
	}
	return t
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
