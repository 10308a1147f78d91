package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercase and whitespace", "  Hello\n\n\tWORLD  ", "hello world"},
		{"code fence", "before\n```go\nfmt.Println(1)\n```\nafter", "before after"},
		{"inline code", "run `make test` now", "run now"},
		{"headers", "# Title\n## Sub Title", "title sub title"},
		{"image keeps alt text", "see ![a diagram](img.png) here", "see a diagram here"},
		{"link keeps label", "read [the docs](https://example.com/docs)", "read the docs"},
		{"url keeps host and path", "visit https://www.example.com/page", "visit example.com/page"},
		{"html tags", "<p>Hello <b>there</b></p>", "hello there"},
		{"mentions", "hi <@!12345> and <@&678>", "hi and"},
		{"horizontal rule", "above\n---\nbelow", "above below"},
		{"block comment", "keep /* drop\nthis */ keep", "keep keep"},
		{"line comment", "value // trailing note\nnext", "value next"},
		{"symbols stripped", "Price: $5 (approx)!", "price: 5 approx"},
		{"non-latin letters kept", "你好，世界", "你好世界"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preprocess(tt.in))
		})
	}
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t,
		[]string{"golang", "channels", "concurrency"},
		QueryTerms("How do Golang channels and the concurrency of golang work"),
	)
	assert.Empty(t, QueryTerms("is it at an"))
	assert.Equal(t, []string{"天气预报"}, QueryTerms("天气预报 好"))
}

func TestHasProximityMatch(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		terms []string
		want  bool
	}{
		{"single term", "golang is fun", []string{"golang"}, false},
		{"adjacent", "golang channels are great", []string{"golang", "channels"}, true},
		{"exactly five apart", "golang a b c d channels", []string{"golang", "channels"}, true},
		{"six apart", "golang a b c d e channels", []string{"golang", "channels"}, false},
		{"reverse order", "channels then golang", []string{"golang", "channels"}, true},
		{"one missing", "golang only", []string{"golang", "channels"}, false},
		{"substring match", "golang's channelsfoo", []string{"golang", "channels"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasProximityMatch(tt.text, tt.terms))
		})
	}
}
