package service

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+`)

// NormalizeText lowercases text, strips URLs and collapses whitespace.
func NormalizeText(text string) string {
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// TokenCount counts whitespace-separated tokens.
func TokenCount(text string) int {
	return len(strings.Fields(text))
}
