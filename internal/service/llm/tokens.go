package llm

import (
	"math"
	"unicode/utf8"
)

// charsPerToken is the average characters per token across common tokenizers
const charsPerToken = 3.5

// EstimateTokens approximates the token count of text without a tokenizer.
// Non-empty text is always at least one token.
func EstimateTokens(text string) int {
	chars := utf8.RuneCountInString(text)
	if chars == 0 {
		return 0
	}
	return int(math.Ceil(float64(chars) / charsPerToken))
}

// EstimateMessagesTokens sums EstimateTokens over the message contents
func EstimateMessagesTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}
