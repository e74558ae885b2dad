package retrieval

import (
	"regexp"
	"sort"
	"strings"
)

// normalizeText lowercases text, folding the Turkish dotted capital I.
func normalizeText(text string) string {
	return strings.ToLower(strings.ReplaceAll(text, "İ", "i"))
}

func toSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// boundaryPattern wraps an alternation in Unicode-aware word boundaries.
// regexp's \b only understands ASCII, which splits Turkish words.
func boundaryPattern(alternation string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])(?:` + alternation + `)(?:[^\p{L}\p{N}_]|$)`)
}

// termSet matches whole terms inside normalized text. A trailing "*" on a
// term matches any word continuation ("ecolog*" matches "ecology").
type termSet struct {
	terms []string
	re    *regexp.Regexp
}

func newTermSet(terms []string) termSet {
	var alts []string
	clean := make([]string, 0, len(terms))
	for _, t := range terms {
		t = normalizeText(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		clean = append(clean, strings.TrimSuffix(t, "*"))
		if strings.HasSuffix(t, "*") {
			alts = append(alts, regexp.QuoteMeta(strings.TrimSuffix(t, "*"))+`[\p{L}\p{N}_]*`)
		} else {
			alts = append(alts, regexp.QuoteMeta(t))
		}
	}
	if len(alts) == 0 {
		return termSet{}
	}
	sort.SliceStable(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	return termSet{terms: clean, re: boundaryPattern(strings.Join(alts, "|"))}
}

// Match reports whether normalized contains any term as a whole word.
func (s termSet) Match(normalized string) bool {
	return s.re != nil && s.re.MatchString(normalized)
}

// Contains reports whether normalized contains any term as a substring.
func (s termSet) Contains(normalized string) bool {
	for _, t := range s.terms {
		if strings.Contains(normalized, t) {
			return true
		}
	}
	return false
}

func (s termSet) empty() bool { return s.re == nil }
