// CLAUDE:SUMMARY Parses 1-based range expressions ("1, 3-5") into zero-based page index sets and split groups.
// Package pagerange turns user-written page range expressions into page indices.
//
// Expressions are comma-separated tokens in 1-based inclusive notation:
//
//	""        all pages
//	"all"     all pages (case-insensitive, whole expression only)
//	"3"       page 3
//	"2-7"     pages 2 through 7, clamped to the document
//	"1, 4-6"  union of the tokens
//
// Full-width digits, commas and hyphens are accepted as their ASCII forms.
//
// Parsing is lenient: malformed or out-of-range tokens never produce an error,
// they are dropped. Callers that want to surface what was dropped use the
// Diagnose variants.
package pagerange

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// PageIndexSet is a strictly increasing set of zero-based page indices,
// each below the page count it was parsed against.
type PageIndexSet []int

// Empty reports whether no page is selected.
func (s PageIndexSet) Empty() bool { return len(s) == 0 }

// PageGroup is an ordered list of zero-based page indices produced from a
// single token. Order is kept as written.
type PageGroup []int

// AllPages returns {0, …, pageCount-1}.
func AllPages(pageCount int) PageIndexSet {
	if pageCount <= 0 {
		return PageIndexSet{}
	}
	s := make(PageIndexSet, pageCount)
	for i := range s {
		s[i] = i
	}
	return s
}

// Parse converts expr into the union of its tokens' pages, sorted and
// deduplicated. An empty result is valid and means "nothing selected".
func Parse(expr string, pageCount int) PageIndexSet {
	s, _ := ParseDiagnose(expr, pageCount)
	return s
}

// ParseDiagnose is Parse plus the list of tokens that contributed nothing.
func ParseDiagnose(expr string, pageCount int) (PageIndexSet, *Diagnostics) {
	diag := &Diagnostics{}
	compact := normalize(expr)
	if compact == "" || strings.EqualFold(compact, "all") {
		return AllPages(pageCount), diag
	}

	var spans [][2]int
	for _, tok := range strings.Split(compact, ",") {
		first, last, reason := resolve(tok, pageCount)
		if reason != "" {
			diag.drop(tok, reason)
			continue
		}
		spans = append(spans, [2]int{first, last})
	}
	return union(spans), diag
}

// union expands inclusive spans into a sorted set without duplicates. Work
// is proportional to the selection, not to the page count.
func union(spans [][2]int) PageIndexSet {
	slices.SortFunc(spans, func(a, b [2]int) int { return cmp.Compare(a[0], b[0]) })
	out := PageIndexSet{}
	next := 0
	for _, sp := range spans {
		for i := max(sp[0], next); i <= sp[1]; i++ {
			out = append(out, i)
		}
		next = max(next, sp[1]+1)
	}
	return out
}

// ParseGroups converts expr into one group per valid token, in input order.
// Tokens are not merged or deduplicated against each other; a token that
// yields no page yields no group. An empty result means nothing to split.
func ParseGroups(expr string, pageCount int) []PageGroup {
	g, _ := ParseGroupsDiagnose(expr, pageCount)
	return g
}

// ParseGroupsDiagnose is ParseGroups plus the list of dropped tokens.
func ParseGroupsDiagnose(expr string, pageCount int) ([]PageGroup, *Diagnostics) {
	diag := &Diagnostics{}
	compact := normalize(expr)
	if compact == "" {
		return nil, diag
	}
	var groups []PageGroup
	for _, tok := range strings.Split(compact, ",") {
		first, last, reason := resolve(tok, pageCount)
		if reason != "" {
			diag.drop(tok, reason)
			continue
		}
		g := make(PageGroup, 0, last-first+1)
		for i := first; i <= last; i++ {
			g = append(g, i)
		}
		groups = append(groups, g)
	}
	return groups, diag
}

// resolve maps one token to an inclusive zero-based range [first, last], or
// returns the reason it contributes nothing.
func resolve(tok string, pageCount int) (first, last int, reason Reason) {
	if tok == "" {
		return 0, 0, ReasonEmpty
	}
	lo, hi, isRange := strings.Cut(tok, "-")
	if !isRange {
		p, ok := atoi(tok)
		if !ok {
			return 0, 0, ReasonMalformed
		}
		if p < 1 || p > pageCount {
			return 0, 0, ReasonOutOfRange
		}
		return p - 1, p - 1, ""
	}

	a, okA := atoi(lo)
	b, okB := atoi(hi)
	if !okA || !okB {
		// Covers "-3", "3-", "1-2-3" and non-digits.
		return 0, 0, ReasonMalformed
	}
	a = max(1, a)
	b = min(pageCount, b)
	if a > b {
		return 0, 0, ReasonInverted
	}
	return a - 1, b - 1, ""
}

// atoi accepts ASCII digits only. Values too large for int saturate at
// math.MaxInt so that huge range ends still clamp to the last page.
func atoi(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int(c - '0')
		if n > (math.MaxInt-d)/10 {
			n = math.MaxInt
			continue
		}
		n = n*10 + d
	}
	return n, true
}

// normalize folds full-width digits and punctuation ("１－３，５") to ASCII
// and removes all whitespace.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, width.Narrow.String(s))
}
