// Package jsonrepair fixes backslash-escaping collisions produced by a
// language model mixing LaTeX syntax with JSON string literals.
//
// The extraction model is told to double backslashes inside JSON strings
// ("\\frac"), but it does not reliably do so. A single "\frac" makes a JSON
// parser choke on an invalid escape, while "\tau" silently turns into a tab
// plus "au". Repair walks the text once and doubles exactly the backslashes
// that start a known LaTeX command, leaving every legitimate JSON escape and
// everything outside string literals untouched.
package jsonrepair

import "strings"

// Repair returns input with LaTeX-colliding backslashes doubled so the result
// is parseable JSON. Characters outside double-quoted strings are copied
// verbatim. Already-valid JSON without LaTeX comes back unchanged.
func Repair(input string) string {
	var b strings.Builder
	b.Grow(len(input) + 16)

	inString := false
	i := 0
	for i < len(input) {
		c := input[i]

		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			i++
			continue
		}

		if c == '"' {
			// Unescaped closing quote: escaped ones are consumed in pairs below.
			inString = false
			b.WriteByte(c)
			i++
			continue
		}

		if c != '\\' {
			b.WriteByte(c)
			i++
			continue
		}

		// Backslash inside a string literal.
		if i+1 >= len(input) {
			// Dangling backslash at end-of-text; double it so the string
			// at least stays parseable.
			b.WriteString(`\\`)
			i++
			continue
		}

		next := input[i+1]
		switch {
		case next == '\\' || next == '"' || next == '/':
			b.WriteByte('\\')
			b.WriteByte(next)
			i += 2
		case next == 'u' && hasHex4(input[i+2:]):
			b.WriteString(input[i : i+6])
			i += 6
		case isCollisionLetter(next):
			if matchesLatexCommand(input[i+1:]) {
				// "\frac" was meant literally: double the backslash and let
				// the command body copy through on subsequent iterations.
				b.WriteString(`\\`)
				b.WriteByte(next)
			} else {
				// Genuine JSON escape such as "\t" or "\n".
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			i += 2
		default:
			// Not a legal JSON escape at all ("\alpha", "\sum", ...): the
			// only valid single-character escapes are handled above, so this
			// backslash must be doubled.
			b.WriteString(`\\`)
			b.WriteByte(next)
			i += 2
		}
	}
	return b.String()
}

// hasHex4 reports whether s begins with four hex digits.
func hasHex4(s string) bool {
	if len(s) < 4 {
		return false
	}
	for j := 0; j < 4; j++ {
		if !isHexDigit(s[j]) {
			return false
		}
	}
	return true
}
