package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/agentruntime/llm"
)

// MapHTTPError 将 HTTP 状态码映射为带有合适重试标记的 llm.Error
func MapHTTPError(status int, msg string, provider string) *llm.Error {
	e := &llm.Error{Message: msg, HTTPStatus: status, Provider: provider}
	switch status {
	case http.StatusUnauthorized:
		e.Code = llm.ErrUnauthorized
	case http.StatusForbidden:
		e.Code = llm.ErrForbidden
	case http.StatusTooManyRequests:
		e.Code, e.Retryable = llm.ErrRateLimited, true
	case http.StatusBadRequest:
		// 检查配额/信用关键字
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") || strings.Contains(lower, "limit") {
			e.Code = llm.ErrQuotaExceeded
		} else {
			e.Code = llm.ErrInvalidRequest
		}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		e.Code, e.Retryable = llm.ErrUpstreamTimeout, true
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		e.Code, e.Retryable = llm.ErrUpstreamError, true
	case 529: // 部分厂商用于模型过载
		e.Code, e.Retryable = llm.ErrModelOverloaded, true
	default:
		e.Code, e.Retryable = llm.ErrUpstreamError, status >= 500
	}
	return e
}

// NetworkError 包装传输层失败（DNS、连接重置等），统一视为可重试的上游错误。
func NetworkError(err error, provider string) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   provider,
		Cause:      err,
	}
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp OpenAICompatErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// OpenAI 兼容 API 通用类型
// 目录中大多数厂商（OpenAI、Groq、Together、Ollama、DeepSeek 等）都使用这套格式。

// OpenAICompatContentPart 是多模态消息中的单个片段。
type OpenAICompatContentPart struct {
	Type     string                 `json:"type"`
	Text     string                 `json:"text,omitempty"`
	ImageURL *OpenAICompatImageURL `json:"image_url,omitempty"`
}

type OpenAICompatImageURL struct {
	URL string `json:"url"`
}

// OpenAICompatMessage 表示 OpenAI 兼容的消息格式。
// Content 为 string 或 []OpenAICompatContentPart。
type OpenAICompatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

// OpenAICompatRequest 表示 OpenAI 兼容的聊天完成请求.
type OpenAICompatRequest struct {
	Model            string                `json:"model"`
	Messages         []OpenAICompatMessage `json:"messages"`
	MaxTokens        int                   `json:"max_tokens,omitempty"`
	Temperature      float32               `json:"temperature"`
	TopP             float32               `json:"top_p,omitempty"`
	FrequencyPenalty *float32              `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float32              `json:"presence_penalty,omitempty"`
	Stop             []string              `json:"stop,omitempty"`
	Stream           bool                  `json:"stream,omitempty"`
}

// OpenAICompatResponseMessage 是响应中的消息，content 总是字符串。
type OpenAICompatResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// OpenAICompatChoice 表示 OpenAI 兼容响应中的单个选项.
type OpenAICompatChoice struct {
	Index        int                         `json:"index"`
	FinishReason string                      `json:"finish_reason"`
	Message      OpenAICompatResponseMessage `json:"message"`
}

// OpenAICompatUsage 表示 OpenAI 兼容响应中的 token 用量.
type OpenAICompatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAICompatResponse 表示 OpenAI 兼容的聊天完成响应.
type OpenAICompatResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []OpenAICompatChoice `json:"choices"`
	Usage   *OpenAICompatUsage   `json:"usage,omitempty"`
	Created int64                `json:"created,omitempty"`
}

// OpenAICompatErrorResp 表示 OpenAI 兼容的错误响应.
type OpenAICompatErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
		Param   string `json:"param"`
	} `json:"error"`
}

// ConvertMessagesToOpenAI 将 llm.Message 切片转换为 OpenAI 兼容格式.
// 带图片的消息转换为 content parts，其余保持纯文本。
func ConvertMessagesToOpenAI(msgs []llm.Message) []OpenAICompatMessage {
	out := make([]OpenAICompatMessage, 0, len(msgs))
	for _, m := range msgs {
		oa := OpenAICompatMessage{Role: string(m.Role), Name: m.Name}
		if len(m.Images) == 0 {
			oa.Content = m.Content
		} else {
			parts := make([]OpenAICompatContentPart, 0, len(m.Images)+1)
			if m.Content != "" {
				parts = append(parts, OpenAICompatContentPart{Type: "text", Text: m.Content})
			}
			for _, img := range m.Images {
				parts = append(parts, OpenAICompatContentPart{
					Type:     "image_url",
					ImageURL: &OpenAICompatImageURL{URL: img},
				})
			}
			oa.Content = parts
		}
		out = append(out, oa)
	}
	return out
}

// ToLLMChatResponse 将 OpenAI 兼容的响应转换为 llm.ChatResponse.
func ToLLMChatResponse(oa OpenAICompatResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(oa.Choices))
	for _, c := range oa.Choices {
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message: llm.Message{
				Role:    llm.RoleAssistant,
				Content: c.Message.Content,
				Name:    c.Message.Name,
			},
		})
	}
	resp := &llm.ChatResponse{
		ID:       oa.ID,
		Provider: provider,
		Model:    oa.Model,
		Choices:  choices,
	}
	if oa.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	return resp
}

// ChooseModel 根据请求和默认值选择模型
func ChooseModel(req *llm.ChatRequest, defaultModel, fallbackModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallbackModel
}

// BearerTokenHeaders 是标准的 Bearer token 认证 header 构建函数。
func BearerTokenHeaders(r *http.Request, apiKey string) {
	if apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+apiKey)
	}
	r.Header.Set("Content-Type", "application/json")
}

// SafeCloseBody 安全关闭 HTTP 响应体并忽略错误
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}

// JoinURL 拼接 base 与 path，去掉重复的斜杠。
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
