package rewrite

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxTextLength is the ceiling applied to incoming text before chunking.
	DefaultMaxTextLength = 8000

	// TruncationMarker is appended to text cut at the ceiling.
	TruncationMarker = "\n\n[Text truncated for length]"
)

// Clamp trims surrounding whitespace, then hard-truncates text to maxChars
// characters and appends TruncationMarker. It reports whether the text was
// truncated. maxChars <= 0 uses DefaultMaxTextLength.
func Clamp(text string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		maxChars = DefaultMaxTextLength
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxChars {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:maxChars]) + TruncationMarker, true
}
