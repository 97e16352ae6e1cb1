package util

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis terminates text shortened by Clamp.
const Ellipsis = "…"

// Clamp shortens s to at most limit runes, replacing the tail with an
// ellipsis when it had to cut. A non-positive limit returns s unchanged.
func Clamp(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit == 1 {
		return Ellipsis
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:limit-1]), isSpace) + Ellipsis
}

// Tail keeps the last limit runes of s and reports whether it cut anything.
func Tail(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	runes := []rune(s)
	return string(runes[len(runes)-limit:]), true
}

// FirstNonEmpty returns the first argument that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func isSpace(r rune) bool { return r == ' ' || r == '\n' || r == '\t' || r == '\r' }
