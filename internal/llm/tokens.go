package llm

import (
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts and caps prompt sizes so milestone analysis stays
// within a fixed context budget no matter how large the story corpus gets.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a counter using the o200k vocabulary.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		return nil, err
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the token count of text.
func (c *TokenCounter) Count(text string) (int, error) {
	return c.codec.Count(text)
}

// Truncate caps text at maxTokens, cutting at a token boundary.
func (c *TokenCounter) Truncate(text string, maxTokens int) (string, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return "", err
	}
	if len(ids) <= maxTokens {
		return text, nil
	}
	return c.codec.Decode(ids[:maxTokens])
}

func splitWords(s string) []string {
	return strings.Fields(s)
}
