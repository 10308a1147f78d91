package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/providers"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Config Gemini Provider 配置
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// GeminiProvider 实现 Google Gemini 的 llm.ModelProvider
type GeminiProvider struct {
	cfg    Config
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiProvider 创建 Gemini Provider
func NewGeminiProvider(ctx context.Context, cfg Config, logger *zap.Logger) (*GeminiProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	client, err := NewClient(ctx, cfg.APIKey, cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("provider", "google")),
	}, nil
}

// NewClient 创建 genai 客户端，embedding 子系统复用同一构造逻辑。
func NewClient(ctx context.Context, apiKey, baseURL string, timeout time.Duration) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(baseURL, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &llm.Error{
			Code:     llm.ErrProviderUnavailable,
			Message:  "failed to create genai client: " + err.Error(),
			Provider: "google",
			Cause:    err,
		}
	}
	return client, nil
}

func (p *GeminiProvider) Name() string { return "google" }

func (p *GeminiProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.Completion(ctx, &llm.ChatRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return &llm.HealthStatus{Healthy: err == nil, Latency: time.Since(start)}, err
}

func (p *GeminiProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	system, contents := convertMessages(req.Messages)
	if len(contents) == 0 {
		return nil, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    "chat request has no user or assistant messages",
			HTTPStatus: http.StatusBadRequest,
			Provider:   p.Name(),
		}
	}

	model := providers.ChooseModel(req, p.cfg.DefaultModel, "gemini-2.0-flash")
	gc := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(req.Temperature),
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		StopSequences:    req.Stop,
	}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.TopP > 0 {
		gc.TopP = genai.Ptr(req.TopP)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return nil, p.mapError(ctx, err)
	}
	text := resp.Text()
	if text == "" {
		return nil, &llm.Error{
			Code: llm.ErrEmptyResponse, Message: "response contained no text",
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	out := &llm.ChatResponse{
		Provider:  p.Name(),
		Model:     model,
		CreatedAt: time.Now(),
		Choices: []llm.ChatChoice{{
			Message: llm.Message{Role: llm.RoleAssistant, Content: text},
		}},
	}
	if len(resp.Candidates) > 0 {
		out.Choices[0].FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.ChatUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func (p *GeminiProvider) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return MapError(err, p.Name())
}

// MapError 将 genai 错误映射为 llm.Error。
func MapError(err error, provider string) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		e := providers.MapHTTPError(apiErr.Code, apiErr.Message, provider)
		e.Cause = err
		return e
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		e := providers.MapHTTPError(apiErrPtr.Code, apiErrPtr.Message, provider)
		e.Cause = err
		return e
	}
	return providers.NetworkError(err, provider)
}

func convertMessages(in []llm.Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(in))
	for _, m := range in {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		if m.Content == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return strings.Join(system, "\n\n"), contents
}
