// Package relevance decides whether collected text is worth keeping.
package relevance

import "strings"

// MinMatches is the fixed number of keyword hits required to retain a record.
const MinMatches = 1

// Matches returns the keywords found in text, in the given order.
// Matching is a case-insensitive substring test.
func Matches(text string, keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}

	lowered := strings.ToLower(text)
	var found []string
	for _, kw := range keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	return found
}

// IsRelevant reports whether at least one keyword occurs in text.
func IsRelevant(text string, keywords []string) bool {
	return len(Matches(text, keywords)) >= MinMatches
}
