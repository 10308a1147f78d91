// Package embeddingtest provides deterministic embedding providers for tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BaSui01/agentruntime/llm/embedding"
)

// HashProvider embeds text by hashing each lowercase word into a bucket.
// Texts sharing words get a positive cosine similarity; identical texts get 1.
type HashProvider struct {
	dimensions int
	calls      atomic.Int64
	// Err, when set, is returned by every call.
	Err error
}

// NewHashProvider returns a provider with the given dimensions (384 when <= 0).
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = embedding.LocalDimensions
	}
	return &HashProvider{dimensions: dimensions}
}

func (p *HashProvider) Name() string    { return "hash" }
func (p *HashProvider) Dimensions() int { return p.dimensions }

// Calls reports how many texts were embedded.
func (p *HashProvider) Calls() int64 { return p.calls.Load() }

func (p *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.calls.Add(1)
	if p.Err != nil {
		return nil, p.Err
	}
	return Vector(text, p.dimensions), nil
}

func (p *HashProvider) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	out := make([][]float32, 0, len(req.Input))
	for _, in := range req.Input {
		v, err := p.EmbedQuery(ctx, in)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return &embedding.EmbeddingResponse{Provider: p.Name(), Embeddings: out, CreatedAt: time.Now()}, nil
}

// Vector is the unit-length bag-of-words vector for text.
func Vector(text string, dimensions int) []float32 {
	vec := make([]float32, dimensions)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(w))
		sum := h.Sum64()
		vec[sum%uint64(dimensions)] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
