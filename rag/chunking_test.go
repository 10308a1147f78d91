package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		chunkSize int
		bleed     int
		want      []string
	}{
		{"overlapping windows", "ABCDEFGHIJ", 4, 1, []string{"ABCD", "DEFG", "GHIJ"}},
		{"empty", "", 4, 1, nil},
		{"shorter than one chunk", "abc", 10, 2, []string{"abc"}},
		{"exact fit", "abcd", 4, 0, []string{"abcd"}},
		{"no bleed", "abcdefgh", 3, 0, []string{"abc", "def", "gh"}},
		{"bleed clamped to a quarter", "abcdefghij", 4, 3, []string{"abcd", "defg", "ghij"}},
		{"negative bleed", "abcdef", 3, -5, []string{"abc", "def"}},
		{"runes not bytes", "你好世界再见", 4, 1, []string{"你好世界", "界再见"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitChunks(tt.content, tt.chunkSize, tt.bleed))
		})
	}
}

func TestSplitChunks_DefaultSize(t *testing.T) {
	content := strings.Repeat("x", DefaultChunkSize+1)
	chunks := SplitChunks(content, 0, 0)
	assert.Len(t, chunks, 2)
	assert.Len(t, chunks[0], DefaultChunkSize)
}

// 属性：每块不超过 chunkSize；相邻块重叠 bleed 个 rune；去掉重叠后拼接还原原文
func TestSplitChunks_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.StringN(0, 300, -1).Draw(t, "content")
		chunkSize := rapid.IntRange(1, 64).Draw(t, "chunkSize")
		bleed := rapid.IntRange(-4, 64).Draw(t, "bleed")

		chunks := SplitChunks(content, chunkSize, bleed)
		if content == "" {
			if len(chunks) != 0 {
				t.Fatalf("expected no chunks for empty content, got %d", len(chunks))
			}
			return
		}

		overlap := clampBleed(chunkSize, bleed)
		var rebuilt strings.Builder
		for i, c := range chunks {
			n := utf8.RuneCountInString(c)
			if n > chunkSize || n == 0 {
				t.Fatalf("chunk %d has %d runes, size %d", i, n, chunkSize)
			}
			runes := []rune(c)
			if i == 0 {
				rebuilt.WriteString(c)
				continue
			}
			prev := []rune(chunks[i-1])
			if string(prev[len(prev)-overlap:]) != string(runes[:overlap]) {
				t.Fatalf("chunk %d does not overlap its predecessor by %d runes", i, overlap)
			}
			rebuilt.WriteString(string(runes[overlap:]))
		}
		if rebuilt.String() != content {
			t.Fatalf("reconstruction mismatch: %q != %q", rebuilt.String(), content)
		}
	})
}
