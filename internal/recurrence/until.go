package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Series is the recurrence of a master event.
type Series struct {
	// Rules are the RRULE, EXDATE and RDATE lines of the master.
	Rules []string
	// Start is the first occurrence. It fixes the zone occurrences are
	// generated in.
	Start  time.Time
	AllDay bool
}

// Truncation splits a series at a cutoff.
type Truncation struct {
	// Head are the rules of the original series, ending with its last
	// occurrence before the cutoff. Nil when Last is zero.
	Head []string
	// Tail are the rules of a series continuing at Next. A COUNT is reduced
	// by the occurrences kept in Head.
	Tail []string
	// Last is the last occurrence kept in Head, zero when the cutoff is at
	// or before the first occurrence.
	Last time.Time
	// Next is the first occurrence at or after the cutoff.
	Next time.Time
}

// TruncateRecurrence splits a timed series at before.
func TruncateRecurrence(rules []string, dtstart, before time.Time) (*Truncation, error) {
	return Series{Rules: rules, Start: dtstart}.Truncate(before)
}

// Truncate ends the series with the last occurrence before the cutoff. UNTIL
// is set to that occurrence and any COUNT is dropped from the head.
func (s Series) Truncate(before time.Time) (*Truncation, error) {
	if s.Start.IsZero() {
		return nil, fmt.Errorf("series start is required")
	}

	var (
		out   Truncation
		found bool
	)
	for _, line := range s.Rules {
		if !isRRule(line) {
			out.Head = append(out.Head, line)
			out.Tail = append(out.Tail, line)
			continue
		}
		if found {
			return nil, fmt.Errorf("series with more than one RRULE are not supported")
		}
		found = true

		opt, err := rrule.StrToROption(line)
		if err != nil {
			return nil, fmt.Errorf("invalid recurrence rule %q: %w", line, err)
		}
		opt.Dtstart = s.Start
		rule, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("invalid recurrence rule %q: %w", line, err)
		}

		kept := 0
		next := rule.Iterator()
		for {
			occ, ok := next()
			if !ok || !occ.Before(before) {
				break
			}
			out.Last = occ
			kept++
		}
		out.Next = rule.After(before, true)

		head := *opt
		head.Count = 0
		head.Until = out.Last
		out.Head = append(out.Head, s.render(head))

		tail := *opt
		if opt.Count > 0 {
			tail.Count = opt.Count - kept
		}
		out.Tail = append(out.Tail, s.render(tail))
	}

	if !found {
		return nil, fmt.Errorf("event has no recurrence rule")
	}
	if out.Next.IsZero() {
		return nil, ErrNoFutureOccurrences
	}
	if out.Last.IsZero() {
		out.Head = nil
	}
	return &out, nil
}

// render formats opt as an RRULE line. All-day series get a DATE valued UNTIL.
func (s Series) render(opt rrule.ROption) string {
	opt.Dtstart = time.Time{}
	until := opt.Until
	if s.AllDay {
		opt.Until = time.Time{}
	}
	line := "RRULE:" + opt.RRuleString()
	if s.AllDay && !until.IsZero() {
		line += ";UNTIL=" + until.UTC().Format(rrule.DateFormat)
	}
	return line
}

func isRRule(line string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), "RRULE:")
}
