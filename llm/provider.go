package llm

import (
	"context"
	"encoding/json"
	"time"
)

// 统一的 LLM 错误码，用于对齐 HTTP 状态、可重试性与降级策略。
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"      // 参数/格式错误
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"         // 未授权或密钥失效
	ErrForbidden           ErrorCode = "LLM_FORBIDDEN"            // 权限或内容策略拒绝
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"         // 上游或本地限流
	ErrQuotaExceeded       ErrorCode = "LLM_QUOTA_EXCEEDED"       // 额度/配额用尽
	ErrContentFiltered     ErrorCode = "LLM_CONTENT_FILTERED"     // 命中内容安全
	ErrRoutingUnavailable  ErrorCode = "LLM_ROUTING_UNAVAILABLE"  // 无可用 Provider/模型
	ErrModelOverloaded     ErrorCode = "LLM_MODEL_OVERLOADED"     // 模型过载
	ErrUpstreamTimeout     ErrorCode = "LLM_UPSTREAM_TIMEOUT"     // 上游超时
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR"       // 上游 5xx/网络错误
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE" // Provider 不可用
	ErrEmptyResponse       ErrorCode = "LLM_EMPTY_RESPONSE"       // 上游返回空结果
)

// Error 是 Provider 调用失败的统一错误类型。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return e.Provider + ": " + e.Message
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
	// Images 为 URL 或 data URI，仅视觉模型使用
	Images []string `json:"images,omitempty"`
}

type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ChatRequest 是所有 Provider 共用的请求形状。
type ChatRequest struct {
	TraceID          string            `json:"trace_id,omitempty"`
	Model            string            `json:"model"`
	Messages         []Message         `json:"messages"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	Temperature      float32           `json:"temperature,omitempty"`
	TopP             float32           `json:"top_p,omitempty"`
	FrequencyPenalty *float32          `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float32          `json:"presence_penalty,omitempty"`
	Stop             []string          `json:"stop,omitempty"`
	Tools            []ToolSchema      `json:"tools,omitempty"`
	ToolChoice       string            `json:"tool_choice,omitempty"`
	Timeout          time.Duration     `json:"timeout,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// SystemPrompt returns the content of the first system message.
func (r *ChatRequest) SystemPrompt() string {
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			return m.Content
		}
	}
	return ""
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// Text returns the content of the first choice.
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// HealthStatus 表示 Provider 健康检查结果。
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// ModelProvider 是所有模型厂商的统一适配接口，替代按厂商分支的调度逻辑。
// 新厂商只需实现该接口并注册到 ProviderRegistry。
type ModelProvider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 执行轻量级健康检查
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}
