package policy

import "strings"

const maxSearchTermLen = 100

// SanitizeSearchTerm strips characters with meaning to downstream query
// languages and bounds the length. The result is safe to embed in a
// directory search expression.
func SanitizeSearchTerm(term string) string {
	var b strings.Builder
	b.Grow(len(term))
	for _, r := range strings.TrimSpace(term) {
		switch r {
		case '<', '>', '"', '\'', ';', '\\', '(', ')', '*', '\x00':
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if len(out) > maxSearchTermLen {
		out = out[:maxSearchTermLen]
	}
	return out
}
