package operations

import (
	"strings"

	"github.com/teemow/calmux/internal/calendar"
)

// mergeAttendees combines the existing guest list with the supplied one.
// Guests are matched by case-insensitive email. Known guests keep their
// server assigned metadata and take the supplied display name, optional flag
// and comment; unknown guests are appended as supplied. Emails in remove are
// dropped.
func mergeAttendees(existing, supplied []calendar.Attendee, remove []string) []calendar.Attendee {
	drop := map[string]bool{}
	for _, email := range remove {
		drop[normalizeEmail(email)] = true
	}

	merged := make([]calendar.Attendee, 0, len(existing)+len(supplied))
	index := map[string]int{}
	for _, a := range existing {
		key := normalizeEmail(a.Email)
		if drop[key] {
			continue
		}
		index[key] = len(merged)
		merged = append(merged, a)
	}

	for _, a := range supplied {
		key := normalizeEmail(a.Email)
		if key == "" || drop[key] {
			continue
		}
		i, ok := index[key]
		if !ok {
			index[key] = len(merged)
			merged = append(merged, a)
			continue
		}
		cur := &merged[i]
		if a.DisplayName != "" {
			cur.DisplayName = a.DisplayName
		}
		if a.Comment != "" {
			cur.Comment = a.Comment
		}
		if a.AdditionalGuests != 0 {
			cur.AdditionalGuests = a.AdditionalGuests
		}
		cur.Optional = a.Optional
	}
	return merged
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
