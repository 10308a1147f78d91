package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/providers"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Embedder 是运行时使用的嵌入入口：缓存查找、并发去重、Provider 调用。
type Embedder struct {
	provider Provider
	cache    Cache
	observer Observer
	logger   *zap.Logger
	group    singleflight.Group
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithCache 设置向量缓存（通常是 messages 表的 MemoryManager）。
func WithCache(c Cache) Option { return func(e *Embedder) { e.cache = c } }

// WithObserver 设置指标观察者。
func WithObserver(o Observer) Option { return func(e *Embedder) { e.observer = o } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Embedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEmbedder wraps p.
func NewEmbedder(p Provider, opts ...Option) *Embedder {
	e := &Embedder{provider: p, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With(zap.String("component", "embedding"))
	return e
}

// SetCache 在 MemoryManager 创建后补充缓存。
func (e *Embedder) SetCache(c Cache) { e.cache = c }

// Provider returns the active provider name.
func (e *Embedder) Provider() string {
	if e.provider == nil {
		return ""
	}
	return e.provider.Name()
}

// Dimensions 返回当前 Provider 的维度，未配置时为 384。
func (e *Embedder) Dimensions() int {
	if e.provider == nil || e.provider.Dimensions() <= 0 {
		return LocalDimensions
	}
	return e.provider.Dimensions()
}

// ZeroVector 返回与当前 Provider 维度一致的零向量。
func (e *Embedder) ZeroVector() []float32 {
	return make([]float32, e.Dimensions())
}

// Embed 返回 text 的向量。空文本直接返回空向量。
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return []float32{}, nil
	}

	start := time.Now()
	if vec := e.lookupCache(ctx, text); vec != nil {
		e.observe(true, start, nil)
		return vec, nil
	}
	if e.provider == nil {
		return nil, ErrNoProvider
	}

	// 共享计算不随首个调用者取消
	shareCtx := context.WithoutCancel(ctx)
	v, err, shared := e.group.Do(text, func() (any, error) {
		return e.provider.EmbedQuery(shareCtx, text)
	})
	e.observe(false, start, err)
	if err != nil {
		e.logger.Warn("embedding failed",
			zap.String("provider", e.provider.Name()),
			zap.Error(err))
		return nil, err
	}
	vec := v.([]float32)
	if shared {
		vec = append([]float32(nil), vec...)
	}
	return vec, nil
}

func (e *Embedder) lookupCache(ctx context.Context, text string) []float32 {
	if e.cache == nil {
		return nil
	}
	hits, err := e.cache.GetCachedEmbeddings(ctx, text)
	if err != nil {
		e.logger.Debug("embedding cache lookup failed", zap.Error(err))
		return nil
	}
	for _, h := range hits {
		// 零向量是嵌入失败时写入的占位，不能当作命中
		if h.LevenshteinScore == 0 && len(h.Embedding) > 0 && !adapter.IsZeroVector(h.Embedding) {
			return h.Embedding
		}
	}
	return nil
}

func (e *Embedder) observe(cacheHit bool, start time.Time, err error) {
	if e.observer == nil {
		return
	}
	name := ""
	if e.provider != nil {
		name = e.provider.Name()
	}
	e.observer.ObserveEmbedding(name, cacheHit, time.Since(start), err)
}

// ---------------------------------------------------------------------------
// Provider 选择
// ---------------------------------------------------------------------------

// SelectOptions 是选择嵌入 Provider 所需的上下文。
type SelectOptions struct {
	Config  Config
	Catalog *providers.Catalog
	// ModelProvider 是角色使用的模型 Provider id，用于远程回退
	ModelProvider string
	// ModelEndpoint 覆盖模型 Provider 的端点
	ModelEndpoint string
	Secrets       providers.SecretLookup
	// Local 为空时使用 NewONNXLoader(Config.ONNX)，前提是以 onnx 标签编译且配置了模型路径
	Local  LocalLoader
	Logger *zap.Logger
}

// SelectProvider 按 显式覆盖 → 本地模型 → 模型 Provider 端点 的顺序选择。
func SelectProvider(ctx context.Context, opts SelectOptions) (Provider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = providers.DefaultCatalog()
	}
	secrets := opts.Secrets
	if secrets == nil {
		secrets = providers.EnvSecrets
	}
	cfg := opts.Config

	if id := cfg.Override(); id != "" {
		p, err := remoteFor(catalog, id, id, "", secrets, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("embedding provider selected", zap.String("provider", id), zap.Int("dimensions", p.Dimensions()))
		return p, nil
	}

	if load := localLoader(opts, logger); load != nil {
		dims := cfg.Dimensions
		if dims == 0 {
			dims = LocalDimensions
		}
		logger.Info("embedding provider selected", zap.String("provider", ProviderLocal), zap.Int("dimensions", dims))
		return NewLocalProvider(load, dims, logger), nil
	}

	if opts.ModelProvider == "" {
		return nil, ErrNoProvider
	}
	entry, ok := catalog.Get(opts.ModelProvider)
	if !ok {
		return nil, fmt.Errorf("%w: unknown model provider %q", ErrNoProvider, opts.ModelProvider)
	}
	if entry.Kind == providers.KindGoogle {
		settings, _ := catalog.Settings(entry.ID, llm.ModelClassEmbedding)
		dims := cfg.Dimensions
		if dims == 0 {
			dims = settings.Dimensions
		}
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey:     secrets(providers.APIKeyName(entry.ID)),
			BaseURL:    opts.ModelEndpoint,
			Model:      settings.Name,
			Dimensions: dims,
			Timeout:    cfg.Timeout,
		})
	}
	p, err := remoteFor(catalog, entry.ID, ProviderRemote, opts.ModelEndpoint, secrets, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("embedding provider selected",
		zap.String("provider", ProviderRemote),
		zap.String("model_provider", entry.ID),
		zap.Int("dimensions", p.Dimensions()))
	return p, nil
}

// localLoader 返回可用的本地模型加载器。未启用本地模型、未编译 ONNX 支持
// 或未配置模型路径时返回 nil，选择继续回退到模型 Provider 端点。
func localLoader(opts SelectOptions, logger *zap.Logger) LocalLoader {
	cfg := opts.Config
	if !cfg.LocalEnabled {
		return nil
	}
	if opts.Local != nil {
		return opts.Local
	}
	if !onnxBuiltIn || cfg.ONNX.ModelPath == "" {
		logger.Info("local embedding model unavailable, falling back to model provider",
			zap.Bool("onnx_built_in", onnxBuiltIn))
		return nil
	}
	return NewONNXLoader(cfg.ONNX)
}

func remoteFor(catalog *providers.Catalog, id, name, endpoint string, secrets providers.SecretLookup, cfg Config) (*RemoteProvider, error) {
	entry, ok := catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNoProvider, id)
	}
	if endpoint == "" {
		endpoint = entry.Endpoint
	}
	if endpoint == "" {
		return nil, fmt.Errorf("%w: provider %q has no endpoint", ErrNoProvider, id)
	}

	// 没有嵌入模型的厂商沿用 OpenAI 的默认模型名
	model := "text-embedding-3-small"
	dims := defaultDimensions(name)
	if settings, err := catalog.Settings(id, llm.ModelClassEmbedding); err == nil {
		model = settings.Name
		if settings.Dimensions > 0 {
			dims = settings.Dimensions
		}
	}
	if cfg.Dimensions > 0 {
		dims = cfg.Dimensions
	}
	return NewRemoteProvider(BaseConfig{
		Name:       name,
		BaseURL:    endpoint,
		APIKey:     secrets(providers.APIKeyName(id)),
		Model:      model,
		Dimensions: dims,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		Burst:      cfg.Burst,
	}), nil
}
