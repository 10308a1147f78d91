package adapter

import (
	"testing"

	"github.com/BaSui01/agentruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestProperty_CosineBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 16).Draw(t, "n")
		a := rapid.SliceOfN(rapid.Float32Range(-10, 10), n, n).Draw(t, "a")
		b := rapid.SliceOfN(rapid.Float32Range(-10, 10), n, n).Draw(t, "b")
		s := CosineSimilarity(a, b)
		if s < -1.000001 || s > 1.000001 {
			t.Fatalf("similarity %v out of range", s)
		}
	})
}

func TestRankCachedEmbeddings(t *testing.T) {
	p := CachedEmbeddingsParams{QueryInput: "hello world", QueryThreshold: 2, QueryMatchCount: 2}
	got := RankCachedEmbeddings(p, []CachedEmbeddingCandidate{
		{Text: "hello word", Embedding: []float32{2}},
		{Text: "hello world", Embedding: []float32{1}},
		{Text: "goodbye", Embedding: []float32{3}},
		{Text: "hello world", Embedding: nil},
		{Text: "hallo wurld", Embedding: []float32{4}},
	})
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].LevenshteinScore)
	assert.Equal(t, []float32{1}, got[0].Embedding)
	assert.Equal(t, 1, got[1].LevenshteinScore)
}

func TestContentField(t *testing.T) {
	c := types.Content{Text: "t", Action: "REPLY", Extra: map[string]any{"summary": "s", "n": 1}}
	tests := []struct {
		field, sub, want string
	}{
		{"content", "text", "t"},
		{"", "", "t"},
		{"content", "action", "REPLY"},
		{"content", "summary", "s"},
		{"content", "n", ""},
	}
	for _, tt := range tests {
		got, err := ContentField(c, tt.field, tt.sub)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.sub)
	}
	_, err := ContentField(c, "embedding", "")
	assert.Error(t, err)
}

func TestSortBySimilarity(t *testing.T) {
	items := []float64{0.2, 0.9, 0.05, 0.5}
	got := SortBySimilarity(items, func(v float64) float64 { return v }, 0.1, 2)
	assert.Equal(t, []float64{0.9, 0.5}, got)
	assert.Len(t, items, 4, "input must not be reordered in place")
	assert.Equal(t, 0.2, items[0])
}
