package contextpack

import (
	"strings"
	"unicode"
)

// stopWords are discarded during keyword extraction. Question scaffolding
// ("how do we...") carries no retrieval signal.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "this": true, "that": true, "with": true, "from": true,
	"what": true, "when": true, "where": true, "why": true, "how": true,
	"who": true, "does": true, "did": true, "can": true, "could": true,
	"should": true, "would": true, "will": true, "have": true, "has": true,
	"had": true, "been": true, "about": true, "into": true, "then": true,
	"than": true, "you": true, "your": true, "our": true, "not": true,
	"but": true, "all": true, "any": true, "out": true, "get": true,
	"use": true, "using": true, "need": true, "want": true, "like": true,
}

// ExtractKeywords lower-cases the message, strips punctuation, splits
// on whitespace, and drops stop words and tokens of length <= 2.
func ExtractKeywords(message string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, message)

	var keywords []string
	seen := map[string]bool{}
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}
	return keywords
}

// scoreOverlap computes keyword-overlap relevance: the fraction of
// keywords found as substrings of the text. With no keywords the score
// is a neutral 0.5 so identity-only queries still surface items.
func scoreOverlap(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return 0.5
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}
