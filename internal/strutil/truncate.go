// Package strutil provides string utilities for the ai packages.
package strutil

// Truncate truncates a string to maxLen runes, appending an ellipsis when
// content was cut. Rune-level slicing keeps multi-byte characters intact.
func Truncate(s string, maxLen int) string {
	if s == "" || maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// Head returns the first maxLen runes without an ellipsis marker, for use in
// hash keys and comparisons where the marker would pollute the value.
func Head(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
