package claude

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/providers"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const defaultMaxTokens = 4096

// Config Claude Provider 配置
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// ClaudeProvider 通过 anthropic-sdk-go 实现 llm.ModelProvider。
type ClaudeProvider struct {
	cfg    Config
	client anthropic.Client
	logger *zap.Logger
}

// NewClaudeProvider 创建 Claude Provider
func NewClaudeProvider(cfg Config, logger *zap.Logger) *ClaudeProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		// 重试由 generation 层统一负责
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ClaudeProvider{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
		logger: logger.With(zap.String("provider", "anthropic")),
	}
}

func (p *ClaudeProvider) Name() string { return "anthropic" }

// HealthCheck 发送一个最小请求验证密钥与连通性。
func (p *ClaudeProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.Completion(ctx, &llm.ChatRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	status := &llm.HealthStatus{Healthy: err == nil, Latency: time.Since(start)}
	return status, err
}

// Completion 发起同步聊天请求
func (p *ClaudeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	system, msgs := convertMessages(req.Messages)
	if len(msgs) == 0 {
		return nil, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    "chat request has no user or assistant messages",
			HTTPStatus: http.StatusBadRequest,
			Provider:   p.Name(),
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(providers.ChooseModel(req, p.cfg.DefaultModel, "claude-3-5-sonnet-20241022")),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(float64(req.TopP))
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.mapError(ctx, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &llm.Error{
			Code: llm.ErrEmptyResponse, Message: "response contained no text blocks",
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return &llm.ChatResponse{
		ID:       resp.ID,
		Provider: p.Name(),
		Model:    string(resp.Model),
		Choices: []llm.ChatChoice{{
			FinishReason: string(resp.StopReason),
			Message:      llm.Message{Role: llm.RoleAssistant, Content: text.String()},
		}},
		Usage:     llm.ChatUsage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
		CreatedAt: time.Now(),
	}, nil
}

func (p *ClaudeProvider) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		e := providers.MapHTTPError(apiErr.StatusCode, apiErr.Error(), p.Name())
		e.Cause = err
		return e
	}
	return providers.NetworkError(err, p.Name())
}

// convertMessages 提取 system 消息，并合并连续同角色消息。
func convertMessages(in []llm.Message) (string, []anthropic.MessageParam) {
	var system []string
	type turn struct {
		role llm.Role
		text []string
	}
	var turns []turn
	for _, m := range in {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
			continue
		case llm.RoleUser, llm.RoleAssistant:
		default:
			m.Role = llm.RoleUser
		}
		if m.Content == "" {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].role == m.Role {
			turns[n-1].text = append(turns[n-1].text, m.Content)
			continue
		}
		turns = append(turns, turn{role: m.Role, text: []string{m.Content}})
	}

	out := make([]anthropic.MessageParam, 0, len(turns)+1)
	if len(turns) > 0 && turns[0].role != llm.RoleUser {
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock("(continue)")))
	}
	for _, t := range turns {
		block := anthropic.NewTextBlock(strings.Join(t.text, "\n\n"))
		if t.role == llm.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return strings.Join(system, "\n\n"), out
}
