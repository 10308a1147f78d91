package llm

import (
	"regexp"
	"strings"
)

// Reasoning models wrap their chain of thought in one of these tags.
var (
	thinkingBlock    = regexp.MustCompile(`(?is)<(think|thinking|reasoning)>.*?</(think|thinking|reasoning)>\s*`)
	danglingThinking = regexp.MustCompile(`(?is)^\s*<(think|thinking|reasoning)>.*$`)
	orphanClosing    = regexp.MustCompile(`(?is)^.*?</(think|thinking|reasoning)>\s*`)
)

// StripThinking removes reasoning blocks from model output. An unterminated
// opening tag drops the rest of the text; an orphan closing tag drops what precedes it.
func StripThinking(text string) string {
	out := thinkingBlock.ReplaceAllString(text, "")
	out = danglingThinking.ReplaceAllString(out, "")
	out = orphanClosing.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
