// Package keywords extracts salient terms from free-form text for building
// knowledge queries and gap descriptions.
package keywords

import (
	"strings"
	"unicode"
)

// stopwords are common English words carrying no topical signal. Words of
// three characters or fewer are already dropped by the length rule.
var stopwords = map[string]struct{}{
	"about": {}, "above": {}, "after": {}, "again": {}, "also": {},
	"back": {}, "because": {}, "been": {}, "before": {}, "being": {},
	"between": {}, "both": {}, "cannot": {}, "could": {}, "does": {},
	"doing": {}, "down": {}, "during": {}, "each": {}, "even": {},
	"every": {}, "from": {}, "further": {}, "have": {}, "having": {},
	"here": {}, "into": {}, "itself": {}, "just": {}, "like": {},
	"made": {}, "make": {}, "many": {}, "more": {}, "most": {},
	"much": {}, "must": {}, "need": {}, "only": {}, "other": {},
	"over": {}, "same": {}, "should": {}, "some": {}, "such": {},
	"than": {}, "that": {}, "their": {}, "them": {}, "then": {},
	"there": {}, "these": {}, "they": {}, "this": {}, "those": {},
	"through": {}, "under": {}, "until": {}, "very": {}, "want": {},
	"well": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "while": {}, "will": {}, "with": {}, "would": {},
	"your": {},
}

// Extract returns up to max distinct keywords from text: lowercased words
// longer than three characters with stopwords removed, in first-seen
// order. max <= 0 means no limit.
func Extract(text string, max int) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) <= 3 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}
