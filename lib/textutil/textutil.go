// Package textutil holds small text helpers shared by the scraper and
// its presentation layers.
package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeSpace trims a fragment and collapses internal whitespace
// runs, so multi-line innerText renders match single-line patterns.
func NormalizeSpace(text string) string {
	text = strings.TrimSpace(text)
	return whitespaceRegex.ReplaceAllString(text, " ")
}

// Truncate shortens a string for logs and summaries.
func Truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
