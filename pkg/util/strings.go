package util

import "strings"

// PadLeft prefixes s with pad until it is at least width runes long.
// Strings already at or above width are returned unchanged, never truncated.
func PadLeft(s string, width int, pad rune) string {
	missing := width - len([]rune(s))
	if missing <= 0 {
		return s
	}

	return strings.Repeat(string(pad), missing) + s
}
