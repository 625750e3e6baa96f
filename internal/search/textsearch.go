// Package search implements text matching (C6) and the combined-ranking
// composition (C7) over a volume collection owned by the caller.
package search

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/libraryengine/stacks/internal/errors"
	"github.com/libraryengine/stacks/internal/store"
)

// TextMode selects how TextScore compares a query string to a volume's
// text.
type TextMode string

const (
	ModeExact     TextMode = "exact"
	ModeSubstring TextMode = "substring"
	ModeRegex     TextMode = "regex"
	ModeFuzzy     TextMode = "fuzzy"
	ModeToken     TextMode = "token"
	ModeBM25      TextMode = "bm25"
)

// DefaultFuzzyThreshold is applied when a caller requests fuzzy mode
// without specifying a threshold.
const DefaultFuzzyThreshold = 0.3

// ThresholdApplies reports whether mode honors a minimum-score threshold.
// exact/substring/regex always score 1 on a hit and are never thresholded.
func ThresholdApplies(mode TextMode) bool {
	switch mode {
	case ModeFuzzy, ModeToken, ModeBM25:
		return true
	default:
		return false
	}
}

// TextScore scores a single volume's text against query under mode. The
// bool return is false when the volume doesn't match at all (exact/
// substring/regex miss) and for ModeBM25, which the caller scores through
// the inverted index. Fuzzy and token modes always return true with the
// raw score; threshold filtering is the caller's job.
func TextScore(mode TextMode, query, text string, maxRegexPatternLength int, logger RegexRejectLogger) (float64, bool) {
	switch mode {
	case ModeExact:
		if query == text {
			return 1, true
		}
		return 0, false
	case ModeSubstring:
		if strings.Contains(strings.ToLower(text), strings.ToLower(query)) {
			return 1, true
		}
		return 0, false
	case ModeRegex:
		if maxRegexPatternLength > 0 && len(query) > maxRegexPatternLength {
			if logger != nil {
				logger.RegexRejected(query, "pattern exceeds maxRegexPatternLength")
			}
			return 0, false
		}
		re, err := regexp.Compile(query)
		if err != nil {
			if logger != nil {
				logger.RegexRejected(query, err.Error())
			}
			return 0, false
		}
		if re.MatchString(text) {
			return 1, true
		}
		return 0, false
	case ModeFuzzy:
		return FuzzySimilarity(query, text), true
	case ModeToken:
		sim := store.TokenCosine(store.TokenVector(query), store.TokenVector(text))
		return sim, true
	default:
		return 0, false
	}
}

// RegexRejectLogger receives a notification when a regex query is rejected
// (oversized pattern or invalid syntax), instead of the caller's regex
// search silently throwing.
type RegexRejectLogger interface {
	RegexRejected(pattern, reason string)
}

// FuzzySimilarity returns a Levenshtein-derived similarity in [0,1]:
// 1 - (editDistance / max(len(a), len(b))). Two empty strings are
// considered identical (similarity 1).
func FuzzySimilarity(a, b string) float64 {
	if a == b {
		return 1
	}

	la, lb := len(a), len(b)
	if la == 0 && lb == 0 {
		return 1
	}

	dist := levenshtein(a, b)
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}

	sim := 1 - float64(dist)/float64(maxLen)
	if sim < 0 {
		sim = 0
	}
	return sim
}

// levenshtein computes the classic edit distance using a two-row dynamic
// program over runes.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = minInt(del, minInt(ins, sub))
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// BM25Search runs a BM25 query over idx and returns renormalized [0,1]
// scores keyed by id.
func BM25Search(idx *store.InvertedIndex, query string) map[string]float64 {
	results := idx.Query(query)
	scores := make(map[string]float64, len(results))
	for _, r := range results {
		scores[r.ID] = r.Score
	}
	return scores
}

// ValidateRegexLength is a standalone guard callers can use before
// constructing a regex-mode query, returning a LibraryError if the pattern
// is too long.
func ValidateRegexLength(pattern string, maxLen int) error {
	if maxLen > 0 && len(pattern) > maxLen {
		return errors.New(errors.CodeInvalidRegex, "regex pattern exceeds maximum length", nil).
			WithDetail("maxLength", strconv.Itoa(maxLen))
	}
	return nil
}
