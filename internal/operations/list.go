package operations

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/fetch"
	"github.com/teemow/calmux/internal/logging"
	"github.com/teemow/calmux/internal/registry"
)

// ListRequest lists events of one or more calendars across accounts.
type ListRequest struct {
	// Accounts defaults to the default account.
	Accounts []string `json:"accounts,omitempty"`
	// Calendars holds names or identifiers and defaults to the primary
	// calendar of every account.
	Calendars []string `json:"calendars,omitempty"`

	TimeMin    time.Time `json:"timeMin,omitzero"`
	TimeMax    time.Time `json:"timeMax,omitzero"`
	MaxResults int64     `json:"maxResults,omitempty"`

	// ExpandRecurring defaults to true.
	ExpandRecurring *bool `json:"expandRecurring,omitempty"`

	PrivateExtendedProperty []string `json:"privateExtendedProperty,omitempty"`
	SharedExtendedProperty  []string `json:"sharedExtendedProperty,omitempty"`
	Fields                  string   `json:"fields,omitempty"`
}

func (r *ListRequest) query() calendar.EventQuery {
	return calendar.EventQuery{
		TimeMin:                 r.TimeMin,
		TimeMax:                 r.TimeMax,
		MaxResults:              r.MaxResults,
		ExpandRecurring:         boolOr(r.ExpandRecurring, true),
		PrivateExtendedProperty: r.PrivateExtendedProperty,
		SharedExtendedProperty:  r.SharedExtendedProperty,
		Fields:                  r.Fields,
	}
}

// SearchRequest is a ListRequest with a free text query.
type SearchRequest struct {
	ListRequest
	Query string `json:"query"`
}

// PartialFailure names a target that could not be read.
type PartialFailure struct {
	AccountID  string `json:"accountId"`
	CalendarID string `json:"calendarId,omitempty"`
	Reason     string `json:"reason"`
}

// ListResponse holds the merged events in chronological order.
type ListResponse struct {
	Events          []calendar.Event `json:"events"`
	Warnings        []string         `json:"warnings,omitempty"`
	PartialFailures []PartialFailure `json:"partialFailures,omitempty"`
}

// List fetches events from every resolved calendar.
func (o *Operations) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	return o.list(ctx, "list events", req, req.query())
}

// Search lists events whose text matches req.Query.
func (o *Operations) Search(ctx context.Context, req SearchRequest) (*ListResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, invalid("query", "search query is required")
	}
	q := req.query()
	q.Query = strings.TrimSpace(req.Query)
	return o.list(ctx, "search events", req.ListRequest, q)
}

// accountListing is the fan-out slot of one account.
type accountListing struct {
	account string
	results []fetch.Result
	err     error
}

func (o *Operations) list(ctx context.Context, op string, req ListRequest, q calendar.EventQuery) (*ListResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error(), Err: err}
	}

	accounts := o.accounts(req.Accounts)
	names := calendarsOrPrimary(req.Calendars)
	res, err := o.registry.ResolveCalendarsToAccounts(ctx, names, accounts)
	if err != nil {
		return nil, &ValidationError{Message: err.Error(), Err: err}
	}
	if res.Empty() {
		if len(res.Failures) > 0 {
			f := res.Failures[0]
			return nil, o.translate(op, f.Account, strings.Join(names, ", "), f.Err)
		}
		return nil, &ResolutionError{Calendars: names, Accounts: accounts, Warnings: res.Warnings}
	}
	strict := len(accounts) == 1 && res.Targets() == 1

	slots := make([]accountListing, len(res.Order))
	g, gctx := errgroup.WithContext(ctx)
	for i, account := range res.Order {
		slots[i].account = account
		g.Go(func() error {
			svc, err := o.clients.Service(gctx, account)
			if err != nil {
				slots[i].err = err
				return nil
			}
			slots[i].results, slots[i].err = o.fetcher.Fetch(gctx, svc, res.Accounts[account], q)
			return nil
		})
	}
	_ = g.Wait()

	resp := &ListResponse{Events: []calendar.Event{}, Warnings: res.Warnings}
	var firstErr error
	succeeded := 0
	// Accounts that still reached the fan-out report their own failure there.
	for _, f := range res.Failures {
		if res.Resolved(f.Account) {
			continue
		}
		firstErr = firstOf(firstErr, o.translate(op, f.Account, strings.Join(names, ", "), f.Err))
		resp.PartialFailures = append(resp.PartialFailures, PartialFailure{AccountID: f.Account, Reason: calendar.Reason(f.Err)})
	}
	for _, slot := range slots {
		if slot.err != nil {
			if strict {
				return nil, o.translate(op, slot.account, res.Accounts[slot.account][0], slot.err)
			}
			firstErr = firstOf(firstErr, o.translate(op, slot.account, strings.Join(res.Accounts[slot.account], ", "), slot.err))
			resp.fail(PartialFailure{AccountID: slot.account, Reason: calendar.Reason(slot.err)})
			continue
		}
		for _, r := range slot.results {
			if r.Failed() {
				if strict {
					return nil, o.translate(op, slot.account, r.CalendarID, r.Err)
				}
				firstErr = firstOf(firstErr, o.translate(op, slot.account, r.CalendarID, r.Err))
				resp.fail(PartialFailure{AccountID: slot.account, CalendarID: r.CalendarID, Reason: r.Error})
				continue
			}
			succeeded++
			for _, ev := range r.Events {
				if ev.AccountID == "" {
					ev.AccountID = slot.account
				}
				if ev.CalendarID == "" {
					ev.CalendarID = r.CalendarID
				}
				resp.Events = append(resp.Events, ev)
			}
		}
	}
	if succeeded == 0 && firstErr != nil {
		return nil, firstErr
	}

	fetch.SortEvents(resp.Events)
	if len(resp.PartialFailures) > 0 {
		o.logger.Warn("listing partially failed",
			logging.Operation(op),
			logging.Status(fmt.Sprintf("%d failed", len(resp.PartialFailures))))
	}
	return resp, nil
}

func (r *ListResponse) fail(f PartialFailure) {
	r.PartialFailures = append(r.PartialFailures, f)
	if f.CalendarID == "" {
		r.Warnings = append(r.Warnings, fmt.Sprintf("account %s could not be queried: %s", f.AccountID, f.Reason))
		return
	}
	r.Warnings = append(r.Warnings, fmt.Sprintf("calendar %s of account %s could not be queried: %s", f.CalendarID, f.AccountID, f.Reason))
}

func firstOf(current, next error) error {
	if current != nil {
		return current
	}
	return next
}

// CalendarsResponse is the unified calendar list.
type CalendarsResponse struct {
	Calendars []registry.Entry `json:"calendars"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// ListCalendars returns the calendars of accounts, each listed once with every
// account that can access it.
func (o *Operations) ListCalendars(ctx context.Context, accounts []string) (*CalendarsResponse, error) {
	entries, warnings, err := o.registry.UnifiedCalendars(ctx, o.accounts(accounts))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Summary) < strings.ToLower(entries[j].Summary)
	})
	return &CalendarsResponse{Calendars: entries, Warnings: warnings}, nil
}
