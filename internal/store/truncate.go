package store

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Truncate trims s and cuts it to at most limit runes. It is the only place
// identity keys are shortened, so comparisons and writes agree.
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return strings.TrimRightFunc(s[:i], unicode.IsSpace)
		}
		count++
	}
	return s
}

