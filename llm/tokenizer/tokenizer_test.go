package tokenizer

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordTokenizer treats every space separated word as one token.
type wordTokenizer struct{ vocab []string }

func (w *wordTokenizer) CountTokens(text string) (int, error) { return len(strings.Fields(text)), nil }
func (w *wordTokenizer) Encode(text string) ([]int, error) {
	var ids []int
	for _, f := range strings.Fields(text) {
		w.vocab = append(w.vocab, f)
		ids = append(ids, len(w.vocab)-1)
	}
	return ids, nil
}
func (w *wordTokenizer) Decode(ids []int) (string, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = w.vocab[id]
	}
	return strings.Join(parts, " "), nil
}
func (w *wordTokenizer) MaxTokens() int { return 100 }
func (w *wordTokenizer) Name() string   { return "words" }

type brokenTokenizer struct{ wordTokenizer }

func (b *brokenTokenizer) Encode(string) ([]int, error) { return nil, errors.New("no data") }

func TestTrimTokens_KeepsTail(t *testing.T) {
	tok := &wordTokenizer{}

	out, err := TrimTokens(tok, "one two three four five", 2)
	require.NoError(t, err)
	assert.Equal(t, "four five", out)

	out, err = TrimTokens(tok, "short text", 10)
	require.NoError(t, err)
	assert.Equal(t, "short text", out)
}

func TestTrimTokens_InvalidBudget(t *testing.T) {
	_, err := TrimTokens(&wordTokenizer{}, "x", 0)
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestTrimTokens_FallsBackToEstimator(t *testing.T) {
	text := strings.Repeat("a", 400) + "TAIL"
	out, err := TrimTokens(&brokenTokenizer{}, text, 10)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "TAIL"))
	assert.Len(t, out, 40)
}

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer(0)

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, _ = e.CountTokens("abcdefgh")
	assert.Equal(t, 2, n)

	n, _ = e.CountTokens("你好世界")
	assert.Equal(t, 2, n)

	assert.Equal(t, 4096, e.MaxTokens())
}

func TestEstimator_TailTextRespectsRunes(t *testing.T) {
	e := NewEstimatorTokenizer(0)
	out := e.TailText("前面的内容后面", 2)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasSuffix(out, "后面"))
	assert.LessOrEqual(t, utf8.RuneCountInString(out), 3)
}

func TestSplitByTokens(t *testing.T) {
	tok := &wordTokenizer{}
	parts, err := SplitByTokens(tok, "a b c d e f g h i j", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a b c d", "d e f g", "g h i j"}, parts)
}

func TestRegistry_PrefixMatch(t *testing.T) {
	r := NewRegistry()
	short := &wordTokenizer{}
	long := &wordTokenizer{}
	r.Register("gpt-4", short)
	r.Register("gpt-4o", long)

	got, ok := r.Get("gpt-4o-mini-2024-07-18")
	require.True(t, ok)
	assert.Same(t, long, got)

	got, ok = r.Get("gpt-4-0613")
	require.True(t, ok)
	assert.Same(t, short, got)

	_, ok = r.Get("claude-3")
	assert.False(t, ok)
}

func TestRegistry_ForModelCreatesTiktoken(t *testing.T) {
	r := NewRegistry()
	tok := r.ForModel("some-unknown-model")
	require.NotNil(t, tok)
	assert.Equal(t, "tiktoken[cl100k_base]", tok.Name())

	again := r.ForModel("some-unknown-model")
	assert.Same(t, tok, again)
}

func TestNewTiktokenTokenizer_Encodings(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", NewTiktokenTokenizer("gpt-4o-mini").Name())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktokenTokenizer("gpt-4-0613").Name())
	assert.Equal(t, 8192, NewTiktokenTokenizer("gpt-4").MaxTokens())
}
