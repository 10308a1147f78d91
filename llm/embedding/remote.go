package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RemoteProvider 调用 OpenAI 兼容的 POST {endpoint}/embeddings。
// OpenAI、Ollama、GaiaNet、Heurist 以及模型 Provider 回退共用这一实现。
type RemoteProvider struct {
	*BaseProvider
}

// NewRemoteProvider creates a remote embedding provider.
func NewRemoteProvider(cfg BaseConfig) *RemoteProvider {
	return &RemoteProvider{BaseProvider: NewBaseProvider(cfg)}
}

type remoteEmbedRequest struct {
	Input      any    `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type remoteEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed generates embeddings for the given inputs.
func (p *RemoteProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	dims := req.Dimensions
	if dims == 0 {
		dims = p.dimensions
	}
	body := remoteEmbedRequest{
		Model:      ChooseModel(req.Model, p.model, "text-embedding-3-small"),
		Dimensions: dims,
	}
	if len(req.Input) == 1 {
		body.Input = req.Input[0]
	} else {
		body.Input = req.Input
	}

	respBody, err := p.DoRequest(ctx, http.MethodPost, "/embeddings", body)
	if err != nil {
		return nil, err
	}

	var out remoteEmbedResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.Data) != len(req.Input) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrMalformedResponse, len(req.Input), len(out.Data))
	}

	embeddings := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrMalformedResponse, i)
		}
		idx := d.Index
		if idx < 0 || idx >= len(embeddings) || embeddings[idx] != nil {
			idx = i
		}
		embeddings[idx] = d.Embedding
	}

	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      out.Model,
		Embeddings: embeddings,
		CreatedAt:  time.Now(),
	}, nil
}

// EmbedQuery embeds a single text.
func (p *RemoteProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, p, text)
}
