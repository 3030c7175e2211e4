// Package align maps offsets in spoken text onto the rendered content.
//
// Spoken text and rendered text are normalized identically (trim, then
// collapse every whitespace run to one space) so the same offset means the
// same character in both. A PositionMap records, for each normalized rune,
// the text node and byte offset it came from.
package align

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize trims s and collapses every run of whitespace to a single space.
// It is idempotent.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RuneLen returns the length of s in the offset unit used by boundary events.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
