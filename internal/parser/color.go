package parser

import "strings"

// DefaultColor is the sentinel substituted for missing or malformed color
// tokens. A malformed color never fails an annotation.
const DefaultColor = "#000000"

// NormalizeColor turns a color token into the canonical "#rrggbb" form.
// The leading '#' is optional on input and always present on output; hex
// digits are lowercased. Anything that is not six hex digits after stripping
// the '#' collapses to DefaultColor. The function is idempotent.
func NormalizeColor(token string) string {
	s := strings.TrimSpace(token)
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return DefaultColor
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return DefaultColor
		}
	}
	return "#" + strings.ToLower(s)
}
