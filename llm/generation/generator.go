package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/agentruntime/internal/ctxkeys"
	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/observability"
	"github.com/BaSui01/agentruntime/llm/providers"
	"github.com/BaSui01/agentruntime/llm/retry"
	"github.com/BaSui01/agentruntime/llm/tokenizer"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxAttempts 结构化辅助函数的默认尝试次数：不限，只由 ctx 取消终止
const DefaultMaxAttempts = retry.Unbounded

// ErrEmptyContext 结构化辅助函数收到空提示词
var ErrEmptyContext = errors.New("generation: empty context")

// Observer 接收每次模型调用的结果，通常由 internal/metrics 实现。
type Observer interface {
	ObserveGeneration(provider, model, operation string, d time.Duration, usage llm.ChatUsage, err error)
}

// Options 配置 Generator.
type Options struct {
	Registry   *llm.ProviderRegistry
	Catalog    *providers.Catalog
	Tokenizers *tokenizer.Registry
	// Instrumentation 为空时不记录 OpenTelemetry 数据
	Instrumentation *observability.Instrumentation
	Observer        Observer
	// MaxAttempts 结构化辅助函数的尝试上限；nil 取 DefaultMaxAttempts，
	// Attempts(retry.Unbounded) 表示不限
	MaxAttempts *int
	// StopOnNonRetryable 为 true 时鉴权、参数类 Provider 错误不再重试
	StopOnNonRetryable bool
	// RetryPolicy 覆盖退避策略，默认 retry.GenerationRetryPolicy
	RetryPolicy func(maxAttempts int) *retry.RetryPolicy
	AgentID     string
	Logger      *zap.Logger
}

// Generator 把提示词发送给选中的模型 Provider.
type Generator struct {
	registry    *llm.ProviderRegistry
	catalog     *providers.Catalog
	tokenizers  *tokenizer.Registry
	inst        *observability.Instrumentation
	observer    Observer
	maxAttempts int
	stopFatal   bool
	policy      func(int) *retry.RetryPolicy
	agentID     string
	logger      *zap.Logger
}

// New creates a Generator.
func New(opts Options) *Generator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = llm.NewProviderRegistry()
	}
	if opts.Catalog == nil {
		opts.Catalog = providers.DefaultCatalog()
	}
	if opts.Tokenizers == nil {
		opts.Tokenizers = tokenizer.DefaultRegistry()
	}
	if opts.RetryPolicy == nil {
		opts.RetryPolicy = retry.GenerationRetryPolicy
	}
	maxAttempts := DefaultMaxAttempts
	if opts.MaxAttempts != nil {
		maxAttempts = max(*opts.MaxAttempts, retry.Unbounded)
	}
	return &Generator{
		registry:    opts.Registry,
		catalog:     opts.Catalog,
		tokenizers:  opts.Tokenizers,
		inst:        opts.Instrumentation,
		observer:    opts.Observer,
		maxAttempts: maxAttempts,
		stopFatal:   opts.StopOnNonRetryable,
		policy:      opts.RetryPolicy,
		agentID:     opts.AgentID,
		logger:      logger.With(zap.String("component", "generation")),
	}
}

// Request 是一次生成调用的输入.
type Request struct {
	// Context 是完整的提示词
	Context string
	// System 为空时不发送 system 消息
	System string
	// Provider 为空时使用注册表的默认 Provider
	Provider string
	// ModelClass 默认 medium
	ModelClass llm.ModelClass
	// Model 覆盖目录中的模型名
	Model  string
	Stop   []string
	Tools  []llm.ToolSchema
	Images []string
	// MaxAttempts 覆盖 Generator 的重试上限，nil 表示沿用
	MaxAttempts *int
}

// Attempts is a helper for Request.MaxAttempts.
func Attempts(n int) *int { return &n }

type resolved struct {
	provider llm.ModelProvider
	settings llm.ModelSettings
}

func (g *Generator) resolve(req *Request) (resolved, error) {
	p, err := g.registry.Resolve(req.Provider)
	if err != nil {
		return resolved{}, err
	}
	class := req.ModelClass
	if class == "" {
		class = llm.ModelClassMedium
	}
	settings, err := g.catalog.Settings(p.Name(), class)
	if err != nil {
		if req.Model == "" {
			return resolved{}, err
		}
		settings = llm.DefaultModelSettings(class, req.Model)
	}
	if req.Model != "" {
		settings.Name = req.Model
	}
	return resolved{provider: p, settings: settings}, nil
}

// TrimTokens 保留 text 末尾 maxTokens 个 token.
func (g *Generator) TrimTokens(text, model string, maxTokens int) (string, error) {
	return tokenizer.TrimTokens(g.tokenizers.ForModel(model), text, maxTokens)
}

// SplitText 按 token 切分长文本，相邻片段重叠 bleed 个 token。
// 分词器无法解码时按每 token 约 4 个字符退化为字符窗口。
func (g *Generator) SplitText(text, model string, size, bleed int) ([]string, error) {
	parts, err := tokenizer.SplitByTokens(g.tokenizers.ForModel(model), text, size, bleed)
	if err == nil {
		return parts, nil
	}
	if errors.Is(err, tokenizer.ErrInvalidBudget) {
		return nil, err
	}
	g.logger.Debug("token split unavailable, splitting by characters", zap.Error(err))
	return splitRunes(text, size*4, bleed*4), nil
}

func splitRunes(text string, size, bleed int) []string {
	runes := []rune(text)
	bleed = min(max(bleed, 0), size/4)
	step := max(1, size-bleed)
	var parts []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		parts = append(parts, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return parts
}

// GenerateText 执行一次调用。空提示词返回空串，不视为错误。
func (g *Generator) GenerateText(ctx context.Context, req Request) (string, error) {
	return g.generate(ctx, &req, "generateText")
}

func (g *Generator) generate(ctx context.Context, req *Request, operation string) (string, error) {
	if strings.TrimSpace(req.Context) == "" {
		g.logger.Warn("generate called with empty context", zap.String("operation", operation))
		return "", nil
	}
	r, err := g.resolve(req)
	if err != nil {
		return "", err
	}
	model := r.settings.Name
	if override, ok := ctxkeys.LLMModel(ctx); ok && req.Model == "" {
		model = override
	}

	prompt := req.Context
	if r.settings.MaxInputTokens > 0 {
		prompt, err = g.TrimTokens(prompt, model, r.settings.MaxInputTokens)
		if err != nil {
			return "", err
		}
	}

	chat := &llm.ChatRequest{
		TraceID:     traceID(ctx),
		Model:       model,
		MaxTokens:   r.settings.MaxOutputTokens,
		Temperature: r.settings.Temperature,
		Stop:        r.settings.Stop,
		Tools:       req.Tools,
	}
	if len(req.Stop) > 0 {
		chat.Stop = req.Stop
	}
	if r.settings.FrequencyPenalty != 0 {
		chat.FrequencyPenalty = &r.settings.FrequencyPenalty
	}
	if r.settings.PresencePenalty != 0 {
		chat.PresencePenalty = &r.settings.PresencePenalty
	}
	if req.System != "" {
		chat.Messages = append(chat.Messages, llm.Message{Role: llm.RoleSystem, Content: req.System})
	}
	chat.Messages = append(chat.Messages, llm.Message{Role: llm.RoleUser, Content: prompt, Images: req.Images})

	attrs := observability.RequestAttrs{
		Provider:  r.provider.Name(),
		Model:     model,
		AgentID:   g.agentID,
		Operation: operation,
	}
	g.logger.Debug("generating text",
		zap.String("provider", attrs.Provider),
		zap.String("model", model),
		zap.String("operation", operation),
		zap.String("trace_id", chat.TraceID))

	var span trace.Span
	if g.inst != nil {
		ctx, span = g.inst.StartRequest(ctx, attrs)
	}
	start := time.Now()
	resp, err := r.provider.Completion(ctx, chat)
	g.record(ctx, span, attrs, resp, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return llm.StripThinking(resp.Text()), nil
}

// traceID 优先使用调用方的追踪 ID，其次使用当前消息周期的运行 ID
func traceID(ctx context.Context) string {
	if id, ok := ctxkeys.TraceID(ctx); ok {
		return id
	}
	id, _ := ctxkeys.RunID(ctx)
	return id
}

func (g *Generator) record(ctx context.Context, span trace.Span, attrs observability.RequestAttrs, resp *llm.ChatResponse, d time.Duration, err error) {
	var usage llm.ChatUsage
	if resp != nil {
		usage = resp.Usage
	}
	if g.observer != nil {
		g.observer.ObserveGeneration(attrs.Provider, attrs.Model, attrs.Operation, d, usage, err)
	}
	if span == nil {
		return
	}
	out := observability.ResponseAttrs{
		TokensPrompt:     usage.PromptTokens,
		TokensCompletion: usage.CompletionTokens,
		Duration:         d,
		Err:              err,
	}
	var le *llm.Error
	if errors.As(err, &le) {
		out.ErrorCode = string(le.Code)
	}
	g.inst.EndRequest(ctx, span, attrs, out)
}

// shouldRetry 不可重试的 Provider 错误（鉴权、参数）立即停止，仅在 StopOnNonRetryable 时生效。
func shouldRetry(err error) bool {
	var le *llm.Error
	if errors.As(err, &le) {
		return le.Retryable
	}
	return true
}

// withRetry 在 fn 返回错误或 retry.ErrNoResult 时按退避重试。
func withRetry[T any](ctx context.Context, g *Generator, req *Request, operation string, parse func(string) (T, bool)) (T, error) {
	if strings.TrimSpace(req.Context) == "" {
		var zero T
		return zero, fmt.Errorf("%s: %w", operation, ErrEmptyContext)
	}
	attempts := g.maxAttempts
	if req.MaxAttempts != nil {
		attempts = *req.MaxAttempts
	}
	policy := g.policy(attempts)
	if g.stopFatal {
		policy.ShouldRetry = shouldRetry
	}
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		g.logger.Info("retrying structured generation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	r := retry.NewBackoffRetryer(policy, g.logger)

	return retry.DoWithResultTyped(ctx, r, func(ctx context.Context) (T, error) {
		var zero T
		text, err := g.generate(ctx, req, operation)
		if err != nil {
			return zero, err
		}
		v, found := parse(text)
		if !found {
			return zero, retry.ErrNoResult
		}
		return v, nil
	})
}
