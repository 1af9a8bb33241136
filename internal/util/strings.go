package util

import (
	"strings"
	"unicode/utf8"
)

// Shorten cuts s to at most max runes including suffix, preferring the last
// space before the cut. Strings that already fit are returned unchanged.
func Shorten(s string, max int, suffix string) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	limit := max - utf8.RuneCountInString(suffix)
	if limit <= 0 {
		return string([]rune(suffix)[:max])
	}

	head := string([]rune(s)[:limit])
	// a space right after the cut means the word ends exactly at the limit
	if next := []rune(s)[limit]; next != ' ' {
		if i := strings.LastIndexByte(head, ' '); i > 0 {
			head = head[:i]
		}
	}
	return strings.TrimSpace(head) + suffix
}
