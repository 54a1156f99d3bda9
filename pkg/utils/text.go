package utils

import (
	"strings"
	"unicode"
)

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Excerpt returns the first maxLen characters of s, cut at a word boundary
// where possible, with "..." appended if anything was cut.
func Excerpt(s string, maxLen int) string {
	s = CollapseWhitespace(s)
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// CollapseWhitespace trims s and collapses runs of whitespace to single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CountWords returns the number of whitespace-separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
