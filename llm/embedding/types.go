package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/agentruntime/types"
)

// 默认维度
const (
	LocalDimensions   = 384
	OpenAIDimensions  = 1536
	OllamaDimensions  = 1024
	GaiaNetDimensions = 768
	HeuristDimensions = 1024
)

// Provider ids understood by the selector.
const (
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
	ProviderGaiaNet = "gaianet"
	ProviderHeurist = "heurist"
	ProviderLocal   = "local"
	ProviderRemote  = "remote"
)

var (
	// ErrMalformedResponse 上游返回了无法解析或缺少向量的响应
	ErrMalformedResponse = errors.New("embedding: malformed response")
	// ErrLocalUnavailable 本地模型未编译进当前二进制或未配置
	ErrLocalUnavailable = errors.New("embedding: local model unavailable")
	// ErrNoProvider 没有任何可用的嵌入 Provider
	ErrNoProvider = errors.New("embedding: no provider configured")
)

// EmbeddingRequest 表示生成嵌入的请求.
type EmbeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// EmbeddingResponse 表示嵌入请求的响应.
type EmbeddingResponse struct {
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	CreatedAt  time.Time   `json:"created_at,omitempty"`
}

// Provider 定义统一的嵌入提供者接口.
type Provider interface {
	// Embed 为给定输入生成嵌入.
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)

	// EmbedQuery 是嵌入单个文本的便捷方法.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Name 返回提供者名称.
	Name() string

	// Dimensions 返回默认嵌入维度.
	Dimensions() int
}

// Cache 按文本查找已存储的向量，通常由消息 MemoryManager 实现。
type Cache interface {
	GetCachedEmbeddings(ctx context.Context, text string) ([]types.CachedEmbedding, error)
}

// Observer 接收嵌入调用的指标。
type Observer interface {
	ObserveEmbedding(provider string, cacheHit bool, d time.Duration, err error)
}

func embedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	resp, err := p.Embed(ctx, &EmbeddingRequest{Input: []string{text}})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, ErrMalformedResponse
	}
	return resp.Embeddings[0], nil
}
