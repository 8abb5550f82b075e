package dialog

import (
	"strings"
	"unicode"
)

// CleanInput normalises user text for control-keyword matching: lowercased,
// runs of non-alphanumerics collapsed to single spaces, trimmed.
func CleanInput(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	lastSpace := false
	for _, r := range strings.ToLower(input) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}
