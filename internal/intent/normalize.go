package intent

import (
	"regexp"
	"strings"
	"unicode"
)

var multiSpacePattern = regexp.MustCompile(`\s+`)

// Normalize lower-cases a raw query and collapses whitespace. It is the
// canonical form used as the grouping key for per-term analytics.
func Normalize(raw string) string {
	q := strings.ToLower(raw)
	q = multiSpacePattern.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// Tokenize splits a normalized query into word tokens, trimming surrounding
// punctuation but keeping inner characters such as "-" in "i7-14700k".
func Tokenize(normalized string) []string {
	words := strings.Fields(normalized)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		cleaned := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}
	return tokens
}

// ContainsKeyword reports whether kw occurs in the query: as a token for
// single words, as a substring for multi-word phrases.
func ContainsKeyword(normalized string, tokens map[string]bool, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(normalized, kw)
	}
	return tokens[kw]
}

func TokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
