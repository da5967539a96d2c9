package completion

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator approximates token counts when the provider does not report
// them, as in streaming mode.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

const defaultCharsPerToken = 4

// RatioEstimator assumes a fixed characters-per-token ratio. Zero value uses
// four characters per token.
type RatioEstimator struct {
	CharsPerToken int
}

func (r RatioEstimator) EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	cpt := r.CharsPerToken
	if cpt <= 0 {
		cpt = defaultCharsPerToken
	}
	return (n + cpt - 1) / cpt
}

// TiktokenEstimator counts tokens with a BPE encoding. Counts are exact for
// OpenAI-family models and a close approximation for others.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding, typically "cl100k_base".
// The first load may download the BPE ranks.
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenEstimator{encoding: enc}, nil
}

func (t *TiktokenEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}
