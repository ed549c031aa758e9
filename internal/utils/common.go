package utils

import (
	"strings"
	"time"
)

// MinDuration returns the smaller of two durations.
func MinDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// RemoveControlCharacters strips control characters from transcribed text,
// keeping tabs and newlines.
func RemoveControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, text)
}

// CollapseWhitespace folds runs of whitespace into single spaces and trims
// the ends. Transcription output tends to carry stray double spaces.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
