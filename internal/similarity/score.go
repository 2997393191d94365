package similarity

import (
	"strings"
	"unicode/utf8"

	"github.com/teemow/calmux/internal/calendar"
)

// Fixed scores of the duplicate decision table.
const (
	ScoreExactOverlap   = 0.95
	ScoreSimilarOverlap = 0.7
	ScoreExactSameDay   = 0.6
	ScoreExactOtherDay  = 0.4
	ScoreSimilarTitle   = 0.3
	ScoreMixedDayKinds  = 0.2
	ScoreUnrelated      = 0.1
)

const (
	// DefaultDuplicateThreshold flags an existing event as a likely duplicate.
	DefaultDuplicateThreshold = 0.7

	// DefaultBlockingThreshold refuses creation unless explicitly overridden.
	DefaultBlockingThreshold = 0.9

	// minWordLength is the length a word must exceed to count in fuzzy title matching.
	minWordLength = 3

	// minCommonWordRatio is the share of common words that makes titles similar.
	minCommonWordRatio = 0.5
)

// TitleMatch classifies how closely two titles agree.
type TitleMatch int

const (
	TitleDifferent TitleMatch = iota
	TitleSimilar
	TitleExact
)

func (m TitleMatch) String() string {
	switch m {
	case TitleExact:
		return "exact"
	case TitleSimilar:
		return "similar"
	default:
		return "different"
	}
}

// NormalizeTitle lowercases and trims a title.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// MatchTitles compares two titles. Empty titles never match anything.
func MatchTitles(a, b string) TitleMatch {
	a, b = NormalizeTitle(a), NormalizeTitle(b)
	if a == "" || b == "" {
		return TitleDifferent
	}
	if a == b {
		return TitleExact
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return TitleSimilar
	}

	wa, wb := significantWords(a), significantWords(b)
	smaller := min(len(wa), len(wb))
	if smaller == 0 {
		return TitleDifferent
	}
	common := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			common++
		}
	}
	if float64(common)/float64(smaller) >= minCommonWordRatio {
		return TitleSimilar
	}
	return TitleDifferent
}

func significantWords(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) > minWordLength {
			words[w] = struct{}{}
		}
	}
	return words
}

// Score rates how likely a and b describe the same real-world event.
// Events with a missing or empty range are unrelated.
func Score(a, b *calendar.Event) float64 {
	ra, okA := FromEvent(a)
	rb, okB := FromEvent(b)
	if !okA || !okB {
		return ScoreUnrelated
	}
	if ra.AllDay != rb.AllDay {
		return ScoreMixedDayKinds
	}

	match := MatchTitles(a.Title, b.Title)
	overlap := Overlaps(ra, rb)

	switch {
	case match == TitleExact && overlap:
		return ScoreExactOverlap
	case match == TitleSimilar && overlap:
		return ScoreSimilarOverlap
	case match == TitleExact && SameDay(ra, rb):
		return ScoreExactSameDay
	case match == TitleExact:
		return ScoreExactOtherDay
	case match == TitleSimilar:
		return ScoreSimilarTitle
	default:
		return ScoreUnrelated
	}
}

// IsDuplicate applies threshold to score. A non-positive threshold selects
// DefaultDuplicateThreshold.
func IsDuplicate(score, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}
	return score >= threshold
}
