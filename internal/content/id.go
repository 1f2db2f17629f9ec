package content

import "strings"

const idTextPrefix = 50

// DeriveID returns the stable identifier of a content record.
//
// The id is the page URL, an underscore, and the first 50 runes of text with
// every rune outside [A-Za-z0-9] replaced by an underscore. Truncation counts
// runes rather than bytes, so multi-byte text never splits a character and
// each replaced rune contributes exactly one underscore. Text shorter than 50
// runes is used whole. Two texts sharing the same sanitized prefix on the same
// URL collide and merge into one node.
func DeriveID(url, text string) string {
	var b strings.Builder
	b.Grow(len(url) + 1 + idTextPrefix)
	b.WriteString(url)
	b.WriteByte('_')
	n := 0
	for _, r := range text {
		if n == idTextPrefix {
			break
		}
		if isIDRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}
	return b.String()
}

func isIDRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
