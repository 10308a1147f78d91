package parsing

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParseJSONObjectFromText returns the first JSON object found in text, or nil.
func ParseJSONObjectFromText(text string) map[string]any {
	raw, ok := ObjectChain().Parse(text)
	if !ok {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

// ParseJSONArrayFromText returns the first JSON array found in text, or nil.
func ParseJSONArrayFromText(text string) []any {
	raw, ok := ArrayChain().Parse(text)
	if !ok {
		return nil
	}
	var arr []any
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil
	}
	return arr
}

// Decode parses the first JSON value of text into T using chain.
func Decode[T any](chain Chain, text string) (T, bool) {
	var out T
	raw, ok := chain.Parse(text)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

var (
	affirmative = map[string]struct{}{"YES": {}, "Y": {}, "TRUE": {}, "T": {}, "1": {}, "ON": {}, "ENABLE": {}}
	negative    = map[string]struct{}{"NO": {}, "N": {}, "FALSE": {}, "F": {}, "0": {}, "OFF": {}, "DISABLE": {}}
)

// ParseBooleanFromText maps yes/no style answers to a bool; anything else is nil.
func ParseBooleanFromText(text string) *bool {
	norm := strings.ToUpper(strings.TrimSpace(text))
	norm = strings.Trim(norm, ".!\"'`[]")
	if _, ok := affirmative[norm]; ok {
		v := true
		return &v
	}
	if _, ok := negative[norm]; ok {
		v := false
		return &v
	}
	return nil
}

// ShouldRespond is the verdict of a should-respond prompt.
type ShouldRespond string

const (
	Respond ShouldRespond = "RESPOND"
	Ignore  ShouldRespond = "IGNORE"
	Stop    ShouldRespond = "STOP"
)

var shouldRespondExact = regexp.MustCompile(`^(RESPOND|IGNORE|STOP)$`)

// ParseShouldRespondFromText reads the verdict from the first line, falling
// back to a substring search. Returns "" when no verdict is present.
func ParseShouldRespondFromText(text string) ShouldRespond {
	first := strings.SplitN(strings.TrimSpace(text), "\n", 2)[0]
	first = strings.ToUpper(strings.NewReplacer("[", "", "]", "").Replace(strings.TrimSpace(first)))
	if m := shouldRespondExact.FindString(first); m != "" {
		return ShouldRespond(m)
	}
	// 回退只认大写标记，普通行文里的 respond/stop 不算结论
	for _, v := range []ShouldRespond{Respond, Ignore, Stop} {
		if strings.Contains(text, string(v)) {
			return v
		}
	}
	return ""
}

// ActionResponse is the set of social actions chosen for a post.
type ActionResponse struct {
	Like    bool `json:"like"`
	Retweet bool `json:"retweet"`
	Quote   bool `json:"quote"`
	Reply   bool `json:"reply"`
}

var actionPatterns = map[string]*regexp.Regexp{
	"like":    regexp.MustCompile(`(?i)\[LIKE\]|\bLIKE\s*:\s*true\b`),
	"retweet": regexp.MustCompile(`(?i)\[RETWEET\]|\bRETWEET\s*:\s*true\b`),
	"quote":   regexp.MustCompile(`(?i)\[QUOTE\]|\bQUOTE\s*:\s*true\b`),
	"reply":   regexp.MustCompile(`(?i)\[REPLY\]|\bREPLY\s*:\s*true\b`),
}

// ParseActionResponseFromText returns nil when no action marker is present.
func ParseActionResponseFromText(text string) *ActionResponse {
	a := &ActionResponse{
		Like:    actionPatterns["like"].MatchString(text),
		Retweet: actionPatterns["retweet"].MatchString(text),
		Quote:   actionPatterns["quote"].MatchString(text),
		Reply:   actionPatterns["reply"].MatchString(text),
	}
	if !a.Like && !a.Retweet && !a.Quote && !a.Reply {
		return nil
	}
	return a
}

// CleanJSONResponse strips code fences and surrounding prose markers.
func CleanJSONResponse(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
