package utils

import "strings"

// Rough token estimation for chat model prompts: 1 token ~= 4 characters.

// EstimateTokens returns the approximate token count of text.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncatedMarker ends text cut by TruncateLines.
const TruncatedMarker = "\n[... truncated]"

// TruncateLines keeps whole lines of text within limit tokens and marks the
// cut. A single over-long first line is cut mid-line.
func TruncateLines(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if EstimateTokens(text) <= limit {
		return text
	}
	budget := limit*4 - len([]rune(TruncatedMarker))
	if budget <= 0 {
		return ""
	}
	runes := []rune(text)
	cut := string(runes[:budget])
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + TruncatedMarker
}
