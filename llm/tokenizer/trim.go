package tokenizer

import (
	"errors"
	"fmt"
)

// ErrInvalidBudget is returned when the token budget is not positive.
var ErrInvalidBudget = errors.New("maxTokens must be positive")

// TrimTokens keeps the last maxTokens tokens of text. Prompts put the newest
// conversation at the end, so the head is what gets dropped.
// If the tokenizer cannot encode (e.g. tiktoken data unavailable offline) the
// character estimator trims instead.
func TrimTokens(t Tokenizer, text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", ErrInvalidBudget
	}
	if text == "" {
		return "", nil
	}

	if est, ok := t.(*EstimatorTokenizer); ok {
		return est.TailText(text, maxTokens), nil
	}

	tokens, err := t.Encode(text)
	if err != nil {
		return NewEstimatorTokenizer(0).TailText(text, maxTokens), nil
	}
	if len(tokens) <= maxTokens {
		return text, nil
	}

	out, err := t.Decode(tokens[len(tokens)-maxTokens:])
	if err != nil {
		return "", fmt.Errorf("decode trimmed tokens: %w", err)
	}
	return out, nil
}

// SplitByTokens cuts text into consecutive pieces of at most size tokens,
// each overlapping the previous by bleed tokens.
func SplitByTokens(t Tokenizer, text string, size, bleed int) ([]string, error) {
	if size <= 0 {
		return nil, ErrInvalidBudget
	}
	tokens, err := t.Encode(text)
	if err != nil {
		return nil, err
	}
	bleed = min(max(bleed, 0), size/4)
	step := max(1, size-bleed)

	var parts []string
	for start := 0; start < len(tokens); start += step {
		end := min(start+size, len(tokens))
		part, err := t.Decode(tokens[start:end])
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		if end == len(tokens) {
			break
		}
	}
	return parts, nil
}
