// Package registry caches the calendars visible to each account and routes
// calendar names or identifiers to the accounts that can serve them.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/logging"
)

// PrimaryAlias selects the primary calendar of every account.
const PrimaryAlias = "primary"

// ListerFunc returns the calendar lister of an account.
type ListerFunc func(ctx context.Context, account string) (calendar.CalendarLister, error)

// Access is one account's view of a calendar.
type Access struct {
	AccountID  string              `json:"accountId"`
	AccessRole calendar.AccessRole `json:"accessRole"`
	Primary    bool                `json:"primary,omitempty"`
}

// Entry is a calendar deduplicated across accounts.
type Entry struct {
	ID          string   `json:"id"`
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	TimeZone    string   `json:"timeZone,omitempty"`
	Accesses    []Access `json:"accesses"`
}

// Resolution maps accounts to the calendars they should be queried for.
// It is built once per request and not modified afterwards.
type Resolution struct {
	// Accounts lists, per account, the resolved calendar identifiers.
	Accounts map[string][]string
	// Order holds the keys of Accounts in request order.
	Order    []string
	Warnings []string
	// Failures holds the accounts whose calendars could not be listed, in
	// request order.
	Failures []AccountFailure
}

// AccountFailure is an account whose calendar list could not be read.
type AccountFailure struct {
	Account string
	Err     error
}

// Resolved reports whether account has at least one calendar to query.
func (r *Resolution) Resolved(account string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Accounts[account]
	return ok
}

// Empty reports whether no calendar was resolved.
func (r *Resolution) Empty() bool {
	return r == nil || len(r.Order) == 0
}

// Targets returns the number of (account, calendar) pairs.
func (r *Resolution) Targets() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, ids := range r.Accounts {
		n += len(ids)
	}
	return n
}

func (r *Resolution) add(account, calendarID string) {
	ids, ok := r.Accounts[account]
	if !ok {
		r.Order = append(r.Order, account)
	}
	for _, id := range ids {
		if id == calendarID {
			return
		}
	}
	r.Accounts[account] = append(ids, calendarID)
}

// Registry caches calendar listings per account until Reset.
type Registry struct {
	lister  ListerFunc
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	mu         sync.RWMutex
	listings   map[string][]calendar.CalendarInfo
	generation uint64
}

// New creates an empty Registry.
func New(lister ListerFunc, metrics *instrumentation.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		lister:   lister,
		metrics:  metrics,
		logger:   logger,
		listings: map[string][]calendar.CalendarInfo{},
	}
}

// Reset drops every cached listing. Listings in flight when Reset is called
// are not stored.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings = map[string][]calendar.CalendarInfo{}
	r.generation++
}

// Calendars returns the calendars of account, listing them on first use.
func (r *Registry) Calendars(ctx context.Context, account string) ([]calendar.CalendarInfo, error) {
	r.mu.RLock()
	cached, ok := r.listings[account]
	generation := r.generation
	r.mu.RUnlock()
	if ok {
		r.metrics.RecordRegistryLookup(ctx, instrumentation.RegistryHit)
		return cached, nil
	}
	r.metrics.RecordRegistryLookup(ctx, instrumentation.RegistryMiss)

	if r.lister == nil {
		return nil, fmt.Errorf("no calendar lister configured")
	}
	l, err := r.lister(ctx, account)
	if err != nil {
		return nil, err
	}
	infos, err := l.ListCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	r.mu.Lock()
	if r.generation == generation {
		r.listings[account] = infos
	}
	r.mu.Unlock()
	return infos, nil
}

// Lookup finds a cached or freshly listed calendar of account. The primary
// alias matches the account's primary calendar.
func (r *Registry) Lookup(ctx context.Context, account, calendarID string) (calendar.CalendarInfo, bool) {
	infos, err := r.Calendars(ctx, account)
	if err != nil {
		return calendar.CalendarInfo{}, false
	}
	for _, info := range infos {
		if info.ID == calendarID || (calendarID == PrimaryAlias && info.Primary) {
			return info, true
		}
	}
	return calendar.CalendarInfo{}, false
}

// TimeZone returns the time zone of a calendar, or "" when unknown.
func (r *Registry) TimeZone(ctx context.Context, account, calendarID string) string {
	info, _ := r.Lookup(ctx, account, calendarID)
	return info.TimeZone
}

type listing struct {
	account string
	infos   []calendar.CalendarInfo
	err     error
}

// listAll lists every account concurrently, keeping request order.
func (r *Registry) listAll(ctx context.Context, accounts []string) []listing {
	out := make([]listing, len(accounts))
	var g errgroup.Group
	for i, account := range accounts {
		g.Go(func() error {
			infos, err := r.Calendars(ctx, account)
			out[i] = listing{account: account, infos: infos, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func listingWarning(l listing) string {
	return fmt.Sprintf("could not list calendars for account %s: %s", l.account, calendar.Reason(l.err))
}

type candidate struct {
	account string
	order   int
	info    calendar.CalendarInfo
}

// better reports whether a should serve a calendar rather than b: the
// account where it is primary first, then the stronger access role, then
// request order.
func better(a, b candidate) bool {
	if a.info.Primary != b.info.Primary {
		return a.info.Primary
	}
	if ra, rb := a.info.AccessRole.Rank(), b.info.AccessRole.Rank(); ra != rb {
		return ra > rb
	}
	return a.order < b.order
}

// bestPerCalendar picks the serving account for every distinct calendar ID
// among cands, keeping first appearance order.
func bestPerCalendar(cands []candidate) []candidate {
	var (
		order []string
		best  = map[string]candidate{}
	)
	for _, c := range cands {
		cur, ok := best[c.info.ID]
		if !ok {
			order = append(order, c.info.ID)
		}
		if !ok || better(c, cur) {
			best[c.info.ID] = c
		}
	}
	out := make([]candidate, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

// ResolveCalendarsToAccounts routes every requested calendar name or
// identifier to the accounts that should be queried for it.
//
// An exact identifier match wins over a case-insensitive name match. The
// primary alias routes to the primary calendar of each account. A name
// matching several calendars on one account includes them all and adds a
// warning. Names that resolve nowhere produce warnings. Accounts whose
// calendars cannot be listed produce a warning and a Failures entry. The
// caller decides what an empty resolution means.
func (r *Registry) ResolveCalendarsToAccounts(ctx context.Context, namesOrIDs, accounts []string) (*Resolution, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("at least one account is required")
	}
	if len(namesOrIDs) == 0 {
		return nil, fmt.Errorf("at least one calendar is required")
	}

	res := &Resolution{Accounts: map[string][]string{}}
	listings := r.listAll(ctx, accounts)
	for _, l := range listings {
		if l.err != nil {
			r.logger.Warn("calendar listing failed", logging.Account(l.account), logging.Err(l.err))
			res.Warnings = append(res.Warnings, listingWarning(l))
			res.Failures = append(res.Failures, AccountFailure{Account: l.account, Err: l.err})
		}
	}

	for _, raw := range namesOrIDs {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}

		if strings.EqualFold(name, PrimaryAlias) {
			for _, l := range listings {
				id := PrimaryAlias
				for _, info := range l.infos {
					if info.Primary {
						id = info.ID
						break
					}
				}
				res.add(l.account, id)
			}
			continue
		}

		var exact, named []candidate
		for i, l := range listings {
			for _, info := range l.infos {
				c := candidate{account: l.account, order: i, info: info}
				switch {
				case info.ID == name:
					exact = append(exact, c)
				case strings.EqualFold(info.DisplayName(), name) || strings.EqualFold(info.Summary, name):
					named = append(named, c)
				}
			}
		}

		if len(exact) > 0 {
			for _, c := range bestPerCalendar(exact) {
				res.add(c.account, c.info.ID)
			}
			continue
		}
		if len(named) == 0 {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("calendar %q not found in accounts: %s", name, strings.Join(accounts, ", ")))
			continue
		}

		perAccount := map[string][]string{}
		for _, c := range named {
			perAccount[c.account] = append(perAccount[c.account], c.info.ID)
		}
		for _, account := range accounts {
			if ids := perAccount[account]; len(ids) > 1 {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("calendar name %q is ambiguous on account %s, using all %d matches: %s",
						name, account, len(ids), strings.Join(ids, ", ")))
			}
		}
		for _, c := range bestPerCalendar(named) {
			res.add(c.account, c.info.ID)
		}
	}
	return res, nil
}

// UnifiedCalendars returns one entry per distinct calendar visible from any
// of accounts, each listing every account that can access it.
func (r *Registry) UnifiedCalendars(ctx context.Context, accounts []string) ([]Entry, []string, error) {
	if len(accounts) == 0 {
		return nil, nil, fmt.Errorf("at least one account is required")
	}

	var (
		entries  []Entry
		index    = map[string]int{}
		warnings []string
		failed   int
	)
	for _, l := range r.listAll(ctx, accounts) {
		if l.err != nil {
			failed++
			warnings = append(warnings, listingWarning(l))
			continue
		}
		for _, info := range l.infos {
			access := Access{AccountID: l.account, AccessRole: info.AccessRole, Primary: info.Primary}
			if i, ok := index[info.ID]; ok {
				entries[i].Accesses = append(entries[i].Accesses, access)
				continue
			}
			index[info.ID] = len(entries)
			entries = append(entries, Entry{
				ID:          info.ID,
				Summary:     info.DisplayName(),
				Description: info.Description,
				TimeZone:    info.TimeZone,
				Accesses:    []Access{access},
			})
		}
	}
	if failed == len(accounts) {
		return nil, warnings, fmt.Errorf("failed to list calendars for every account: %s", strings.Join(warnings, "; "))
	}
	for i := range entries {
		sort.SliceStable(entries[i].Accesses, func(a, b int) bool {
			return entries[i].Accesses[a].Primary && !entries[i].Accesses[b].Primary
		})
	}
	return entries, warnings, nil
}
