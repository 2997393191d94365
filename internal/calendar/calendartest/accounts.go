package calendartest

import (
	"context"
	"fmt"
	"sort"

	"github.com/teemow/calmux/internal/calendar"
)

// Accounts hands out services by account name.
type Accounts struct {
	Default  string
	Services map[string]calendar.Service
}

// NewAccounts returns Accounts serving fakes, the first one being the default.
func NewAccounts(fakes ...*Fake) *Accounts {
	a := &Accounts{Services: map[string]calendar.Service{}}
	for i, f := range fakes {
		if i == 0 {
			a.Default = f.Account()
		}
		a.Services[f.Account()] = f
	}
	return a
}

// DefaultAccount returns the account used when a request names none.
func (a *Accounts) DefaultAccount() string {
	return a.Default
}

// Accounts returns the configured account names, sorted.
func (a *Accounts) Accounts() []string {
	names := make([]string, 0, len(a.Services))
	for name := range a.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Service returns the service of account.
func (a *Accounts) Service(ctx context.Context, account string) (calendar.Service, error) {
	svc, ok := a.Services[account]
	if !ok {
		return nil, fmt.Errorf("no valid OAuth token found for account %s", account)
	}
	return svc, nil
}
