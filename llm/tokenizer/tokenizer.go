package tokenizer

import (
	"strings"
	"sync"
)

// Tokenizer 是统一的 token 计数与编解码接口。
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Encode 将文本转换为 token ID 列表.
	Encode(text string) ([]int, error)

	// Decode 将 token ID 转换回文本.
	Decode(tokens []int) (string, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Registry 按模型名管理分词器，由运行时构造并注入，不使用全局状态。
type Registry struct {
	mu         sync.RWMutex
	tokenizers map[string]Tokenizer
}

// NewRegistry 创建空注册表.
func NewRegistry() *Registry {
	return &Registry{tokenizers: make(map[string]Tokenizer)}
}

// DefaultRegistry 预注册所有已知 OpenAI 系列模型的 tiktoken 分词器.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for model := range modelEncodings {
		r.Register(model, NewTiktokenTokenizer(model))
	}
	return r
}

// Register 为给定模型名注册分词器.
func (r *Registry) Register(model string, t Tokenizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenizers[model] = t
}

// Get 返回模型的分词器，支持最长前缀匹配（"gpt-4o" 匹配 "gpt-4o-mini-2024"）。
func (r *Registry) Get(model string) (Tokenizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.tokenizers[model]; ok {
		return t, true
	}

	var best Tokenizer
	bestLen := 0
	for prefix, t := range r.tokenizers {
		if len(prefix) > bestLen && strings.HasPrefix(model, prefix) {
			best, bestLen = t, len(prefix)
		}
	}
	return best, best != nil
}

// ForModel 返回注册的分词器；未注册的模型按默认编码创建 tiktoken 分词器并缓存。
func (r *Registry) ForModel(model string) Tokenizer {
	if t, ok := r.Get(model); ok {
		return t
	}
	t := NewTiktokenTokenizer(model)
	r.Register(model, t)
	return t
}
