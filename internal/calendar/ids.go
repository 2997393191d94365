package calendar

import (
	"fmt"
	"regexp"
)

const (
	minEventIDLength = 5
	maxEventIDLength = 1024
)

// eventIDPattern is the base32hex alphabet Google accepts for custom event IDs.
var eventIDPattern = regexp.MustCompile(`^[a-v0-9]+$`)

// ValidateEventID checks a caller-supplied event identifier.
func ValidateEventID(id string) error {
	if len(id) < minEventIDLength || len(id) > maxEventIDLength {
		return fmt.Errorf("event ID must be between %d and %d characters, got %d", minEventIDLength, maxEventIDLength, len(id))
	}
	if !eventIDPattern.MatchString(id) {
		return fmt.Errorf("event ID may only contain lowercase letters a-v and digits 0-9")
	}
	return nil
}
