package utils

import "unicode/utf8"

// CharsPerToken is the rough characters-per-token ratio of BPE tokenizers on
// English text.
const CharsPerToken = 4.0

// EstimateTokens approximates the token count of text. It is used only for
// budget checks before a provider call; billing uses provider-reported usage.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	tokens := float64(utf8.RuneCountInString(text)) / CharsPerToken
	n := int64(tokens + 0.5)
	if n == 0 {
		n = 1
	}
	return n
}
