package common

import (
	"github.com/teemow/calmux/internal/tools/batch"
)

// Accounts returns the accounts named by the "account" argument. Nil means
// the server's default account.
func Accounts(args map[string]any) ([]string, error) {
	return batch.ParseOptionalStringOrArray(args["account"], "account")
}

// Calendars returns the calendar names or IDs given by the "calendar"
// argument. Nil means each account's primary calendar.
func Calendars(args map[string]any) ([]string, error) {
	return batch.ParseOptionalStringOrArray(args["calendar"], "calendar")
}

// SingleValue returns the only value of a string-or-array argument. Write
// tools act on exactly one account and calendar.
func SingleValue(args map[string]any, name string) (string, error) {
	values, err := batch.ParseOptionalStringOrArray(args[name], name)
	if err != nil {
		return "", err
	}
	switch len(values) {
	case 0:
		return "", nil
	case 1:
		return values[0], nil
	default:
		return "", &ArgumentError{Name: name, Message: "accepts a single value for this tool"}
	}
}

// AccountFromArgs returns the first account named in args for audit records.
// Malformed values yield an empty string.
func AccountFromArgs(args map[string]any) string {
	accounts, err := Accounts(args)
	if err != nil || len(accounts) == 0 {
		return ""
	}
	return accounts[0]
}

// ArgumentError reports a malformed tool argument.
type ArgumentError struct {
	Name    string
	Message string
}

func (e *ArgumentError) Error() string {
	return e.Name + " " + e.Message
}
