package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/agentruntime/llm/providers/gemini"
	"google.golang.org/genai"
)

// GeminiProvider 通过 genai SDK 的 EmbedContent 执行嵌入.
type GeminiProvider struct {
	cfg    GeminiConfig
	client *genai.Client
}

// GeminiConfig 配置 Gemini 嵌入提供者.
type GeminiConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// NewGeminiProvider 创建新的 Gemini 嵌入提供者.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 768
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client, err := gemini.NewClient(ctx, cfg.APIKey, cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{cfg: cfg, client: client}, nil
}

func (p *GeminiProvider) Name() string    { return "google" }
func (p *GeminiProvider) Dimensions() int { return p.cfg.Dimensions }

// Embed 每个输入对应一个 Content，一次调用返回全部向量。
func (p *GeminiProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	model := ChooseModel(req.Model, p.cfg.Model, "text-embedding-004")
	dims := int32(p.cfg.Dimensions)
	if req.Dimensions > 0 {
		dims = int32(req.Dimensions)
	}

	contents := make([]*genai.Content, 0, len(req.Input))
	for _, in := range req.Input {
		contents = append(contents, genai.NewContentFromText(in, genai.RoleUser))
	}

	resp, err := p.client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, gemini.MapError(err, p.Name())
	}
	if len(resp.Embeddings) != len(req.Input) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrMalformedResponse, len(req.Input), len(resp.Embeddings))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrMalformedResponse, i)
		}
		out[i] = e.Values
	}
	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      model,
		Embeddings: out,
		CreatedAt:  time.Now(),
	}, nil
}

func (p *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, p, text)
}
