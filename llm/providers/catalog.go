package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/agentruntime/llm"
)

// Kind 决定使用哪种协议实现与厂商通信。
type Kind string

const (
	KindOpenAICompat Kind = "openai_compat"
	KindAnthropic    Kind = "anthropic"
	KindGoogle       Kind = "google"
)

// Entry 描述目录中的一个模型厂商。
type Entry struct {
	ID       string
	Kind     Kind
	Endpoint string
	// Gateway 为 true 时允许通过 AI 网关转发（base URL 被替换为 {gateway}/{id}）
	Gateway bool
	Models  map[llm.ModelClass]llm.ModelSettings
}

// Catalog 是厂商目录，可在启动时通过配置覆盖端点与模型名。
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCatalog creates a catalog from entries.
func NewCatalog(entries ...Entry) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, s := range entries {
		c.Put(s)
	}
	return c
}

// DefaultCatalog returns the built-in vendor table.
func DefaultCatalog() *Catalog {
	return NewCatalog(builtinEntries()...)
}

// Put adds or replaces an entry.
func (c *Catalog) Put(s Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.ID = normalizeID(s.ID)
	c.entries[s.ID] = cloneEntry(s)
}

// Get returns a copy of the entry registered under id.
func (c *Catalog) Get(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[normalizeID(id)]
	if !ok {
		return Entry{}, false
	}
	return cloneEntry(s), true
}

// IDs returns all provider ids in sorted order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Settings returns the model settings of provider for class.
func (c *Catalog) Settings(provider string, class llm.ModelClass) (llm.ModelSettings, error) {
	s, ok := c.Get(provider)
	if !ok {
		return llm.ModelSettings{}, &llm.Error{
			Code:     llm.ErrRoutingUnavailable,
			Message:  fmt.Sprintf("unknown model provider %q", provider),
			Provider: provider,
		}
	}
	m, ok := s.Models[class]
	if !ok || m.Name == "" {
		return llm.ModelSettings{}, &llm.Error{
			Code:     llm.ErrRoutingUnavailable,
			Message:  fmt.Sprintf("provider %q has no %s model", provider, class),
			Provider: provider,
		}
	}
	return m, nil
}

// OverrideModel replaces the model name used for class, keeping the limits.
func (c *Catalog) OverrideModel(provider string, class llm.ModelClass, name string) {
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := normalizeID(provider)
	s, ok := c.entries[id]
	if !ok {
		return
	}
	m, ok := s.Models[class]
	if !ok {
		m = llm.DefaultModelSettings(class, name)
	}
	m.Name = name
	s.Models[class] = m
	c.entries[id] = s
}

// OverrideEndpoint replaces the base URL of provider.
func (c *Catalog) OverrideEndpoint(provider, endpoint string) {
	if endpoint == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := normalizeID(provider)
	if s, ok := c.entries[id]; ok {
		s.Endpoint = endpoint
		c.entries[id] = s
	}
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func cloneEntry(s Entry) Entry {
	models := make(map[llm.ModelClass]llm.ModelSettings, len(s.Models))
	for k, v := range s.Models {
		v.Stop = append([]string(nil), v.Stop...)
		models[k] = v
	}
	s.Models = models
	return s
}

// ---------------------------------------------------------------------------
// 内置厂商表
// ---------------------------------------------------------------------------

// tier 按 small/medium/large/embedding/image 顺序给出模型名，空串表示不支持。
func tier(small, medium, large, embedding, image string) map[llm.ModelClass]llm.ModelSettings {
	out := make(map[llm.ModelClass]llm.ModelSettings, 5)
	for class, name := range map[llm.ModelClass]string{
		llm.ModelClassSmall:     small,
		llm.ModelClassMedium:    medium,
		llm.ModelClassLarge:     large,
		llm.ModelClassEmbedding: embedding,
		llm.ModelClassImage:     image,
	} {
		if name != "" {
			out[class] = llm.DefaultModelSettings(class, name)
		}
	}
	return out
}

func withDims(m map[llm.ModelClass]llm.ModelSettings, dims int) map[llm.ModelClass]llm.ModelSettings {
	if e, ok := m[llm.ModelClassEmbedding]; ok {
		e.Dimensions = dims
		m[llm.ModelClassEmbedding] = e
	}
	return m
}

func compat(id, endpoint string, models map[llm.ModelClass]llm.ModelSettings) Entry {
	return Entry{ID: id, Kind: KindOpenAICompat, Endpoint: endpoint, Models: models}
}

func builtinEntries() []Entry {
	entries := []Entry{
		{
			ID: "openai", Kind: KindOpenAICompat, Endpoint: "https://api.openai.com/v1", Gateway: true,
			Models: tier("gpt-4o-mini", "gpt-4o", "gpt-4o", "text-embedding-3-small", "dall-e-3"),
		},
		{
			ID: "anthropic", Kind: KindAnthropic, Endpoint: "https://api.anthropic.com", Gateway: true,
			Models: tier("claude-3-haiku-20240307", "claude-3-5-sonnet-20241022", "claude-3-5-sonnet-20241022", "", ""),
		},
		{
			ID: "google", Kind: KindGoogle, Endpoint: "https://generativelanguage.googleapis.com",
			Models: withDims(tier("gemini-2.0-flash-exp", "gemini-2.0-flash-exp", "gemini-2.0-flash-exp", "text-embedding-004", ""), 768),
		},
		{
			ID: "groq", Kind: KindOpenAICompat, Endpoint: "https://api.groq.com/openai/v1", Gateway: true,
			Models: tier("llama-3.1-8b-instant", "llama-3.3-70b-versatile", "llama-3.2-90b-vision-preview", "llama-3.1-8b-instant", ""),
		},
		compat("grok", "https://api.x.ai/v1", tier("grok-2-1212", "grok-2-1212", "grok-2-1212", "grok-2-1212", "")),
		compat("llama_cloud", "https://api.together.ai/v1", tier(
			"meta-llama/Llama-3.2-3B-Instruct-Turbo", "meta-llama-3.1-8b-instruct",
			"meta-llama/Meta-Llama-3.1-405B-Instruct-Turbo", "togethercomputer/m2-bert-80M-32k-retrieval",
			"black-forest-labs/FLUX.1-schnell")),
		compat("together", "https://api.together.ai/v1", tier(
			"meta-llama/Llama-3.2-3B-Instruct-Turbo", "meta-llama/Meta-Llama-3.1-70B-Instruct-Turbo",
			"meta-llama/Meta-Llama-3.1-405B-Instruct-Turbo", "togethercomputer/m2-bert-80M-32k-retrieval",
			"black-forest-labs/FLUX.1-schnell")),
		compat("ollama", "http://localhost:11434/v1", withDims(tier("llama3.2", "hermes3", "hermes3:70b", "mxbai-embed-large", ""), 1024)),
		compat("llama_local", "http://localhost:11434/v1", withDims(tier("llama3.2", "hermes3", "hermes3:70b", "mxbai-embed-large", ""), 1024)),
		compat("mistral", "https://api.mistral.ai/v1", tier("mistral-small-latest", "mistral-large-latest", "mistral-large-latest", "mistral-embed", "")),
		compat("deepseek", "https://api.deepseek.com", tier("deepseek-chat", "deepseek-chat", "deepseek-chat", "", "")),
		compat("openrouter", "https://openrouter.ai/api/v1", tier(
			"nousresearch/hermes-3-llama-3.1-405b", "nousresearch/hermes-3-llama-3.1-405b",
			"nousresearch/hermes-3-llama-3.1-405b", "text-embedding-3-small", "")),
		compat("heurist", "https://llm-gateway.heurist.xyz/v1", withDims(tier(
			"meta-llama/llama-3-70b-instruct", "meta-llama/llama-3-70b-instruct",
			"meta-llama/llama-3.3-70b-instruct", "BAAI/bge-large-en-v1.5", "FLUX.1-dev"), 1024)),
		compat("gaianet", "https://llama8b.gaia.domains/v1", withDims(tier("llama3b", "llama", "qwen72b", "nomic-embed", ""), 768)),
		compat("venice", "https://api.venice.ai/api/v1", tier("llama-3.3-70b", "llama-3.3-70b", "llama-3.1-405b", "", "fluently-xl")),
		compat("nanogpt", "https://nano-gpt.com/api/v1", tier("gpt-4o-mini", "gpt-4o", "gpt-4o", "", "")),
		compat("hyperbolic", "https://api.hyperbolic.xyz/v1", tier(
			"meta-llama/Llama-3.2-3B-Instruct", "meta-llama/Meta-Llama-3.1-70B-Instruct",
			"meta-llama/Meta-Llama-3.1-405-Instruct", "", "FLUX.1-dev")),
		compat("akash_chat_api", "https://chatapi.akash.network/api/v1", tier(
			"Meta-Llama-3-1-8B-Instruct-FP8", "Meta-Llama-3-3-70B-Instruct", "Meta-Llama-3-1-405B-Instruct-FP8", "", "")),
		compat("livepeer", "https://dream-gateway.livepeer.cloud/v1", tier(
			"meta-llama/Meta-Llama-3.1-8B-Instruct", "meta-llama/Meta-Llama-3.1-8B-Instruct",
			"meta-llama/Meta-Llama-3.1-8B-Instruct", "", "ByteDance/SDXL-Lightning")),
		compat("nineteen_ai", "https://api.nineteen.ai/v1", tier(
			"unsloth/Llama-3.2-3B-Instruct", "unsloth/Meta-Llama-3.1-8B-Instruct",
			"hugging-quants/Meta-Llama-3.1-70B-Instruct-AWQ-INT4", "", "dataautogpt3/ProteusV0.4-Lightning")),
		compat("infera", "https://api.infera.org/v1", tier("llama3.2:3b", "mistral-nemo:latest", "mistral-small:latest", "", "")),
		compat("atoma", "https://api.atoma.network/v1", tier(
			"meta-llama/Llama-3.3-70B-Instruct", "meta-llama/Llama-3.3-70B-Instruct", "meta-llama/Llama-3.3-70B-Instruct", "", "")),
		compat("nvidia", "https://integrate.api.nvidia.com/v1", tier(
			"meta/llama-3.2-3b-instruct", "meta/llama-3.3-70b-instruct", "meta/llama-3.1-405b-instruct", "", "")),
		compat("secret_ai", "https://ai1.scrtlabs.com:21434/v1", tier("deepseek-r1:70b", "deepseek-r1:70b", "deepseek-r1:70b", "", "")),
		compat("nearai", "https://api.near.ai/v1", tier(
			"fireworks::accounts/fireworks/models/llama-v3p2-3b-instruct",
			"fireworks::accounts/fireworks/models/llama-v3p1-70b-instruct",
			"fireworks::accounts/fireworks/models/llama-v3p1-405b-instruct", "", "fireworks::accounts/fireworks/models/flux-1-dev-fp8")),
		compat("qwen", "https://dashscope.aliyuncs.com/compatible-mode/v1", tier("qwen-turbo", "qwen-plus", "qwen-max", "text-embedding-v3", "")),
		compat("ali_bailian", "https://dashscope.aliyuncs.com/compatible-mode/v1", tier("qwen-turbo", "qwen-plus", "qwen-max", "", "")),
		compat("volengine", "https://ark.cn-beijing.volces.com/api/v3", tier("doubao-lite-128k", "doubao-pro-128k", "doubao-pro-256k", "doubao-embedding", "")),
		compat("kimi", "https://api.moonshot.cn/v1", tier("moonshot-v1-8k", "moonshot-v1-32k", "moonshot-v1-128k", "", "")),
		compat("glm", "https://open.bigmodel.cn/api/paas/v4", tier("glm-4-flash", "glm-4-plus", "glm-4-plus", "embedding-3", "cogview-3")),
		compat("minimax", "https://api.minimax.chat/v1", tier("abab6.5s-chat", "abab6.5s-chat", "abab6.5-chat", "embo-01", "")),
		compat("hunyuan", "https://api.hunyuan.cloud.tencent.com/v1", tier("hunyuan-lite", "hunyuan-standard", "hunyuan-turbo", "hunyuan-embedding", "")),
		compat("galadriel", "https://api.galadriel.com/v1/verified", tier("gpt-4o-mini", "gpt-4o", "gpt-4o", "", "")),
		compat("redpill", "https://api.red-pill.ai/v1", tier("gpt-4o-mini", "gpt-4o", "gpt-4o", "", "")),
		compat("bedrock", "http://localhost:8080/api/v1", tier(
			"amazon.nova-micro-v1:0", "amazon.nova-lite-v1:0", "amazon.nova-pro-v1:0", "amazon.titan-embed-text-v2:0", "")),
	}
	return entries
}
