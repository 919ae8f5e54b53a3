package catalog

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	tokenPunct  = "-_.:,;!?()[]{}'\""
	minTokenLen = 2
	maxTokens   = 10
)

// Tokenize turns free text into the index token set: lower-cased, punctuation
// stripped, Unicode letters and digits kept, whitespace-split, tokens shorter
// than two runes dropped, capped at the first ten tokens. The writer and the
// search engine must agree on this function exactly or postings and queries
// drift apart.
func Tokenize(text string) []string {
	normalized := strings.Map(func(r rune) rune {
		if strings.ContainsRune(tokenPunct, r) {
			return ' '
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var tokens []string
	for _, w := range strings.Fields(normalized) {
		if utf8.RuneCountInString(w) < minTokenLen {
			continue
		}
		tokens = append(tokens, w)
		if len(tokens) == maxTokens {
			break
		}
	}
	return tokens
}

// tokenSet returns the distinct tokens of a title+tags pair.
func tokenSet(title, tags string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(title + " " + tags) {
		set[t] = struct{}{}
	}
	return set
}
