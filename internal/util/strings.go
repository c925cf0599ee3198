package util

// Truncate returns s clipped to at most max runes. Clipping on rune
// boundaries keeps the result valid UTF-8 for storage.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
