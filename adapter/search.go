package adapter

import (
	"fmt"
	"math"
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/BaSui01/agentruntime/types"
)

// UniqueThreshold 新记忆与同房间已有记忆的相似度达到该值时视为重复。
const UniqueThreshold = 0.95

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector is empty, zero or of a different length.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// IsZeroVector reports whether v carries no direction.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// ContentField reads the text compared by GetCachedEmbeddings.
// Only the "content" field is stored; sub selects text or an extra string key.
func ContentField(c types.Content, field, sub string) (string, error) {
	if field != "" && field != "content" {
		return "", fmt.Errorf("unsupported cached embedding field %q", field)
	}
	switch sub {
	case "", "text":
		return c.Text, nil
	case "action":
		return c.Action, nil
	case "source":
		return c.Source, nil
	case "url":
		return c.URL, nil
	}
	if v, ok := c.Extra[sub].(string); ok {
		return v, nil
	}
	return "", nil
}

// CachedEmbeddingCandidate 是参与 Levenshtein 比较的一条已存向量.
type CachedEmbeddingCandidate struct {
	Text      string
	Embedding []float32
}

// RankCachedEmbeddings keeps candidates within p.QueryThreshold edits of
// p.QueryInput, closest first, truncated to p.QueryMatchCount.
func RankCachedEmbeddings(p CachedEmbeddingsParams, candidates []CachedEmbeddingCandidate) []types.CachedEmbedding {
	out := make([]types.CachedEmbedding, 0)
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		d := levenshtein.ComputeDistance(p.QueryInput, c.Text)
		if d > p.QueryThreshold {
			continue
		}
		out = append(out, types.CachedEmbedding{Embedding: c.Embedding, LevenshteinScore: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LevenshteinScore < out[j].LevenshteinScore })
	if p.QueryMatchCount > 0 && len(out) > p.QueryMatchCount {
		out = out[:p.QueryMatchCount]
	}
	return out
}

// SortBySimilarity orders search hits by descending similarity and applies
// threshold and count.
func SortBySimilarity[T any](items []T, sim func(T) float64, threshold float64, count int) []T {
	kept := items[:0:0]
	for _, it := range items {
		if sim(it) >= threshold {
			kept = append(kept, it)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return sim(kept[i]) > sim(kept[j]) })
	if count > 0 && len(kept) > count {
		kept = kept[:count]
	}
	return kept
}
