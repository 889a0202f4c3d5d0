package memory

import (
	"strings"
	"time"
)

const (
	substringMatchBonus = 10
	keywordMatchBonus   = 5
	accessCountCeiling  = 5
	recencyWindowDays   = 10
)

// relevanceScore ranks an item against a free-text query. Exact textual
// relevance dominates, keyword overlap is a secondary signal, then
// importance, recall frequency, and recency.
func relevanceScore(item *Item, query string, now time.Time) int {
	queryLower := strings.ToLower(query)

	score := 0
	if strings.Contains(strings.ToLower(item.Content), queryLower) {
		score += substringMatchBonus
	}
	for _, kw := range item.Keywords {
		if strings.Contains(queryLower, strings.ToLower(kw)) {
			score += keywordMatchBonus
		}
	}
	score += item.Importance

	access := item.AccessCount
	if access > accessCountCeiling {
		access = accessCountCeiling
	}
	score += access

	days := int(now.Sub(item.CreatedAt).Hours() / 24)
	if recency := recencyWindowDays - days; recency > 0 {
		score += recency
	}
	return score
}

// summarize renders retrieved items as a newline-joined digest.
func summarize(items []Item) string {
	if len(items) == 0 {
		return ""
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "- "+item.Content)
	}
	return strings.Join(lines, "\n")
}
