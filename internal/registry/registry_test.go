package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/calendar/calendartest"
)

type accounts map[string]*calendartest.Fake

func (a accounts) lister(ctx context.Context, account string) (calendar.CalendarLister, error) {
	f, ok := a[account]
	if !ok {
		return nil, fmt.Errorf("account %s is not authenticated", account)
	}
	return f, nil
}

func fixture() accounts {
	alice := calendartest.New("alice")
	alice.AddCalendar(calendar.CalendarInfo{ID: "alice@example.com", Summary: "alice@example.com", Primary: true, AccessRole: calendar.AccessOwner, TimeZone: "Europe/Berlin"})
	alice.AddCalendar(calendar.CalendarInfo{ID: "work-a", Summary: "Work", AccessRole: calendar.AccessOwner})
	alice.AddCalendar(calendar.CalendarInfo{ID: "shared", Summary: "Team", AccessRole: calendar.AccessReader})

	bob := calendartest.New("bob")
	bob.AddCalendar(calendar.CalendarInfo{ID: "bob@example.com", Summary: "bob@example.com", Primary: true, AccessRole: calendar.AccessOwner})
	bob.AddCalendar(calendar.CalendarInfo{ID: "shared", Summary: "Team", SummaryOverride: "Squad", AccessRole: calendar.AccessWriter})
	bob.AddCalendar(calendar.CalendarInfo{ID: "trip-1", Summary: "Travel", AccessRole: calendar.AccessOwner})
	bob.AddCalendar(calendar.CalendarInfo{ID: "trip-2", Summary: "travel", AccessRole: calendar.AccessOwner})
	return accounts{"alice": alice, "bob": bob}
}

func TestResolve_NameOnOneAccountHasNoWarnings(t *testing.T) {
	reg := New(fixture().lister, nil, nil)

	res, err := reg.ResolveCalendarsToAccounts(context.Background(), []string{"Work"}, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"alice": {"work-a"}}, res.Accounts)
	assert.Equal(t, []string{"alice"}, res.Order)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.Targets())
}

func TestResolve_Rules(t *testing.T) {
	tests := []struct {
		name         string
		calendars    []string
		want         map[string][]string
		wantWarnings int
	}{
		{"primary alias", []string{"primary"}, map[string][]string{"alice": {"alice@example.com"}, "bob": {"bob@example.com"}}, 0},
		{"shared calendar goes to strongest role", []string{"shared"}, map[string][]string{"bob": {"shared"}}, 0},
		{"summary override matches", []string{"squad"}, map[string][]string{"bob": {"shared"}}, 0},
		{"original summary matches too", []string{"TEAM"}, map[string][]string{"bob": {"shared"}}, 0},
		{"primary calendar id", []string{"bob@example.com"}, map[string][]string{"bob": {"bob@example.com"}}, 0},
		{"ambiguous name", []string{"Travel"}, map[string][]string{"bob": {"trip-1", "trip-2"}}, 1},
		{"unknown", []string{"Nope"}, map[string][]string{}, 1},
		{"mixed", []string{"Work", "Nope", "work-a"}, map[string][]string{"alice": {"work-a"}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New(fixture().lister, nil, nil)
			res, err := reg.ResolveCalendarsToAccounts(context.Background(), tt.calendars, []string{"alice", "bob"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Accounts)
			assert.Len(t, res.Warnings, tt.wantWarnings)
			assert.Equal(t, len(tt.want) == 0, res.Empty())
		})
	}
}

func TestResolve_ExactIDBeatsName(t *testing.T) {
	fx := fixture()
	fx["bob"].AddCalendar(calendar.CalendarInfo{ID: "other", Summary: "work-a", AccessRole: calendar.AccessOwner})
	reg := New(fx.lister, nil, nil)

	res, err := reg.ResolveCalendarsToAccounts(context.Background(), []string{"work-a"}, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"alice": {"work-a"}}, res.Accounts)
}

func TestResolve_PrimaryAccountWinsOverRole(t *testing.T) {
	fx := fixture()
	fx["bob"].AddCalendar(calendar.CalendarInfo{ID: "alice@example.com", Summary: "Alice", AccessRole: calendar.AccessOwner})
	reg := New(fx.lister, nil, nil)

	res, err := reg.ResolveCalendarsToAccounts(context.Background(), []string{"alice@example.com"}, []string{"bob", "alice"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"alice": {"alice@example.com"}}, res.Accounts)
}

func TestResolve_ListingFailureWarns(t *testing.T) {
	fx := fixture()
	fx["bob"].ListCalendarsErr = &googleapi.Error{Code: http.StatusUnauthorized, Message: "Invalid Credentials"}
	reg := New(fx.lister, nil, nil)

	res, err := reg.ResolveCalendarsToAccounts(context.Background(), []string{"primary"}, []string{"alice", "bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com"}, res.Accounts["alice"])
	assert.Equal(t, []string{"primary"}, res.Accounts["bob"], "primary still routes to an unlisted account")
	assert.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "Invalid Credentials")
	assert.Contains(t, res.Warnings[1], "carol")

	require.Len(t, res.Failures, 2)
	assert.Equal(t, "bob", res.Failures[0].Account)
	assert.Equal(t, "carol", res.Failures[1].Account)
	assert.True(t, res.Resolved("bob"))
}

func TestResolve_ListingFailureOnNamedCalendar(t *testing.T) {
	fx := fixture()
	fx["bob"].ListCalendarsErr = errors.New("token expired")
	reg := New(fx.lister, nil, nil)

	res, err := reg.ResolveCalendarsToAccounts(context.Background(), []string{"Work"}, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, res.Order)
	assert.False(t, res.Resolved("bob"))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "bob", res.Failures[0].Account)
	assert.ErrorContains(t, res.Failures[0].Err, "token expired")
}

func TestResolve_BadInput(t *testing.T) {
	reg := New(fixture().lister, nil, nil)
	_, err := reg.ResolveCalendarsToAccounts(context.Background(), []string{"Work"}, nil)
	assert.Error(t, err)
	_, err = reg.ResolveCalendarsToAccounts(context.Background(), nil, []string{"alice"})
	assert.Error(t, err)
}

func TestUnifiedCalendars(t *testing.T) {
	reg := New(fixture().lister, nil, nil)

	entries, warnings, err := reg.UnifiedCalendars(context.Background(), []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"alice@example.com", "work-a", "shared", "bob@example.com", "trip-1", "trip-2"}, ids)

	shared := entries[2]
	require.Len(t, shared.Accesses, 2)
	assert.Equal(t, Access{AccountID: "alice", AccessRole: calendar.AccessReader}, shared.Accesses[0])
	assert.Equal(t, Access{AccountID: "bob", AccessRole: calendar.AccessWriter}, shared.Accesses[1])
}

func TestUnifiedCalendars_AllAccountsFail(t *testing.T) {
	reg := New(func(context.Context, string) (calendar.CalendarLister, error) {
		return nil, errors.New("no token")
	}, nil, nil)

	_, warnings, err := reg.UnifiedCalendars(context.Background(), []string{"alice", "bob"})
	assert.Error(t, err)
	assert.Len(t, warnings, 2)
}

func TestCacheAndReset(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	fx := fixture()
	reg := New(func(ctx context.Context, account string) (calendar.CalendarLister, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return fx.lister(ctx, account)
	}, nil, nil)
	ctx := context.Background()

	_, err := reg.Calendars(ctx, "alice")
	require.NoError(t, err)
	_, err = reg.Calendars(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	assert.Equal(t, "Europe/Berlin", reg.TimeZone(ctx, "alice", "primary"))
	assert.Empty(t, reg.TimeZone(ctx, "alice", "missing"))
	assert.Equal(t, 1, calls)

	reg.Reset()
	_, err = reg.Calendars(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestConcurrentReadsAndReset(t *testing.T) {
	reg := New(fixture().lister, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				reg.Reset()
				return
			}
			res, err := reg.ResolveCalendarsToAccounts(ctx, []string{"Work"}, []string{"alice", "bob"})
			assert.NoError(t, err)
			assert.Equal(t, []string{"work-a"}, res.Accounts["alice"])
		}(i)
	}
	wg.Wait()
}
