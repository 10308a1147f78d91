package parsing

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Parser extracts one JSON value from free-form model output.
type Parser interface {
	Name() string
	Parse(text string) (json.RawMessage, bool)
}

// Chain tries each parser in order and returns the first success.
type Chain []Parser

// Parse runs the chain.
func (c Chain) Parse(text string) (json.RawMessage, bool) {
	for _, p := range c {
		if raw, ok := p.Parse(text); ok {
			return raw, true
		}
	}
	return nil, false
}

// ObjectChain is the default chain for JSON objects:
// fenced block, then the first balanced {...}, then key: value attributes.
func ObjectChain() Chain {
	return Chain{FencedJSONParser{Want: '{'}, BareBraceParser{Open: '{', Close: '}'}, AttributeRegexParser{}}
}

// ArrayChain is the default chain for JSON arrays.
func ArrayChain() Chain {
	return Chain{FencedJSONParser{Want: '['}, BareBraceParser{Open: '[', Close: ']'}}
}

// ---------------------------------------------------------------------------
// FencedJSONParser
// ---------------------------------------------------------------------------

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// FencedJSONParser reads the first ``` fenced block whose payload starts with Want.
type FencedJSONParser struct {
	Want byte
}

func (FencedJSONParser) Name() string { return "fenced_json" }

func (p FencedJSONParser) Parse(text string) (json.RawMessage, bool) {
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if body == "" || (p.Want != 0 && body[0] != p.Want) {
			continue
		}
		if raw, ok := decodeLenient(body); ok {
			return raw, true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// BareBraceParser
// ---------------------------------------------------------------------------

// BareBraceParser finds the first balanced Open...Close span outside of strings.
type BareBraceParser struct {
	Open, Close byte
}

func (BareBraceParser) Name() string { return "bare_brace" }

func (p BareBraceParser) Parse(text string) (json.RawMessage, bool) {
	text = NormalizeQuotes(text)
	for start := strings.IndexByte(text, p.Open); start >= 0; {
		if span, ok := balancedSpan(text[start:], p.Open, p.Close); ok {
			if raw, ok := decodeLenient(span); ok {
				return raw, true
			}
		}
		next := strings.IndexByte(text[start+1:], p.Open)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

func balancedSpan(text string, open, close byte) (string, bool) {
	depth := 0
	inString, escape := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[:i+1], true
			}
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// AttributeRegexParser
// ---------------------------------------------------------------------------

var attributePattern = regexp.MustCompile(`(?m)"?([A-Za-z_][A-Za-z0-9_]*)"?\s*:\s*("(?:[^"\\]|\\.)*"|\[[^\]]*\]|[^,}\n]+)`)

// AttributeRegexParser collects `key: value` pairs into an object.
// It is the last resort for output that attempted an object but is not
// repairable JSON, so text without an opening brace is ignored.
type AttributeRegexParser struct{}

func (AttributeRegexParser) Name() string { return "attribute_regex" }

func (AttributeRegexParser) Parse(text string) (json.RawMessage, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	matches := attributePattern.FindAllStringSubmatch(NormalizeQuotes(text[start:]), -1)
	if len(matches) == 0 {
		return nil, false
	}
	obj := make(map[string]any, len(matches))
	for _, m := range matches {
		key, val := m[1], strings.TrimSpace(m[2])
		if _, seen := obj[key]; seen {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(val), &v); err == nil {
			obj[key] = v
			continue
		}
		obj[key] = strings.Trim(val, `"`)
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`,
	"‘", "'", "’", "'",
)

// NormalizeQuotes replaces typographic quotes with their ASCII forms.
func NormalizeQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

// decodeLenient accepts strict JSON first, then whatever jsonrepair can fix.
func decodeLenient(s string) (json.RawMessage, bool) {
	s = NormalizeQuotes(strings.TrimSpace(s))
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), true
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil || !json.Valid([]byte(repaired)) {
		return nil, false
	}
	return json.RawMessage(repaired), true
}
