package utils

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates model token counts for operator display. The
// working-memory budget never uses these counts; it is defined over the
// codec's encoded length.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a counter for the given model encoding, e.g.
// "gpt-4". The encoding comes from the memory.tokenizer config key; unknown
// encodings are an error rather than silently approximated.
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(encoding))
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for %s: %w", encoding, err)
	}

	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of model tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}

	return count
}
