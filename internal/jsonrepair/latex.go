package jsonrepair

// latexCommands lists LaTeX command words whose first letter collides with one
// of JSON's single-character escapes (\b \f \n \r \t). The set is open: the
// filter is only complete for the commands enumerated here, and unmatched
// commands starting with a collision letter are left as JSON escapes. Extend
// the table when a new command shows up in real transcripts.
var latexCommands = map[byte][]string{
	'b': {
		"backslash", "bar", "because", "begin", "beta", "big", "bigcap",
		"bigcup", "binom", "bmod", "boldsymbol", "bot", "bullet",
	},
	'f': {
		"forall", "frac",
	},
	'n': {
		"nabla", "nearrow", "neg", "neq", "nexists", "ni", "not", "notin", "nu",
	},
	'r': {
		"rangle", "rceil", "rfloor", "rho", "right", "rightarrow",
	},
	't': {
		"tan", "tanh", "tau", "text", "textbf", "textit", "tfrac", "theta",
		"therefore", "tilde", "times", "to", "top", "triangle",
	},
}

// isCollisionLetter reports whether c is a letter that is both a legal JSON
// escape and a common LaTeX command initial.
func isCollisionLetter(c byte) bool {
	switch c {
	case 'b', 'f', 'n', 'r', 't':
		return true
	}
	return false
}

// matchesLatexCommand reports whether rest (starting at a collision letter)
// spells a complete command from the table. A match requires the character
// after the command word to be non-alphabetic or end-of-text, so "\tb" is not
// mistaken for a prefix of "\tbsomething" and "\t " stays a tab escape.
func matchesLatexCommand(rest string) bool {
	if rest == "" {
		return false
	}
	for _, cmd := range latexCommands[rest[0]] {
		if len(rest) < len(cmd) || rest[:len(cmd)] != cmd {
			continue
		}
		if len(rest) == len(cmd) || !isAlpha(rest[len(cmd)]) {
			return true
		}
	}
	return false
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
