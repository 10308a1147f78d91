package tokenizer

import (
	"fmt"
	"unicode/utf8"
)

// EstimatorTokenizer is a character-count-based token estimator used when
// tiktoken data cannot be loaded. It distinguishes CJK and ASCII characters.
type EstimatorTokenizer struct {
	maxTokens int
}

// NewEstimatorTokenizer creates a generic estimator.
func NewEstimatorTokenizer(maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &EstimatorTokenizer{maxTokens: maxTokens}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(1, int(e.weight(text))), nil
}

// weight: CJK ~1.5 chars/token, everything else ~4 chars/token.
func (e *EstimatorTokenizer) weight(text string) float64 {
	var w float64
	for _, r := range text {
		w += runeWeight(r)
	}
	return w
}

func runeWeight(r rune) float64 {
	if isCJK(r) {
		return 1 / 1.5
	}
	return 1 / 4.0
}

// TailText returns the longest suffix of text estimated at no more than maxTokens.
func (e *EstimatorTokenizer) TailText(text string, maxTokens int) string {
	budget := float64(maxTokens)
	cut := len(text)
	for cut > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:cut])
		w := runeWeight(r)
		if budget-w < 0 {
			break
		}
		budget -= w
		cut -= size
	}
	return text[cut:]
}

func (e *EstimatorTokenizer) Encode(text string) ([]int, error) {
	count, _ := e.CountTokens(text)
	tokens := make([]int, count)
	for i := range tokens {
		tokens[i] = i
	}
	return tokens, nil
}

func (e *EstimatorTokenizer) Decode(_ []int) (string, error) {
	return "", fmt.Errorf("estimator tokenizer does not support decode")
}

func (e *EstimatorTokenizer) MaxTokens() int {
	return e.maxTokens
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}

// isCJK returns true if the rune is a CJK character.
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
