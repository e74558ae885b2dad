package retrieval

import "strings"

var stopWords = toSet([]string{
	"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "do", "does", "did", "will", "would", "could",
	"should", "may", "might", "must", "shall", "can", "need", "dare",
	"ought", "used", "to", "of", "in", "for", "on", "with", "at", "by",
	"from", "as", "into", "through", "during", "before", "after", "above",
	"below", "between", "under", "again", "further", "then", "once",
	"here", "there", "when", "where", "why", "how", "all", "each", "few",
	"more", "most", "other", "some", "such", "no", "nor", "not", "only",
	"own", "same", "so", "than", "too", "very", "just", "and", "but",
	"if", "or", "because", "until", "while", "what", "which", "who",
	"this", "that", "these", "those", "i", "me", "my", "myself", "we",
	"our", "ours", "ourselves", "you", "your", "yours", "yourself", "he",
	"him", "his", "himself", "she", "her", "hers", "herself", "it", "its",
	"itself", "they", "them", "their", "theirs", "themselves",
})

// ExtractKeywords returns the lowercase ASCII alphanumeric words of text
// longer than two characters that are not English stopwords, in order of
// appearance. Words containing non-ASCII letters are skipped entirely, so
// "markası" yields nothing rather than "marka".
func ExtractKeywords(text string) []string {
	var out []string
	for _, w := range wordPattern.FindAllString(normalizeText(text), -1) {
		if len(w) <= 2 || !isASCIIAlnum(w) || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// rawTokens returns every lowercase letter/digit run of text plus a bare
// "%" when present.
func rawTokens(text string) []string {
	normalized := normalizeText(text)
	tokens := wordPattern.FindAllString(normalized, -1)
	if strings.Contains(normalized, "%") {
		tokens = append(tokens, "%")
	}
	return tokens
}

func isASCIIAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// dedupe returns s without repeated entries, keeping first occurrences.
func dedupe(s []string) []string {
	seen := make(map[string]bool, len(s))
	out := s[:0:0]
	for _, v := range s {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
