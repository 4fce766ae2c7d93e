package rag

import "regexp"

var (
	entityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:TSLA|NVDA|AAPL|GOOGL|MSFT|AMZN|META)\b`),
		regexp.MustCompile(`\b\d{4}\b`),
		regexp.MustCompile(`\$\d+(?:\.\d+)?[MBKmbk]?\b`),
		regexp.MustCompile(`\b\d+(?:\.\d+)?%`),
	}
	capitalizedWord = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
)

const maxCapitalizedEntities = 5

// extractEntities finds ticker symbols, years, currency amounts, percentages
// and up to five capitalized words. The result is deduplicated and keeps
// first-occurrence order.
func extractEntities(query string) []string {
	seen := map[string]bool{}
	out := []string{}
	add := func(e string) {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}

	for _, re := range entityPatterns {
		for _, m := range re.FindAllString(query, -1) {
			add(m)
		}
	}
	for _, m := range capitalizedWord.FindAllString(query, maxCapitalizedEntities) {
		add(m)
	}
	return out
}
