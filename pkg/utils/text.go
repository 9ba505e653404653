package utils

// Truncate returns s truncated to maxLen runes, with no ellipsis appended.
// Used for section content previews fed back into the extraction prompt.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
