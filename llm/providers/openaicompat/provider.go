// =============================================================================
// AgentRuntime OpenAI-Compatible Provider Base
// =============================================================================
// Shared implementation for all OpenAI-compatible model vendors.
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/agentruntime/internal/tlsutil"
	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/providers"
	"go.uber.org/zap"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider (e.g., "groq", "ollama").
	ProviderName string

	// APIKey is the authentication key. Local servers such as Ollama accept an empty key.
	APIKey string

	// BaseURL includes the API version segment (e.g., "https://api.openai.com/v1").
	BaseURL string

	// DefaultModel is the model to use when none is specified in the request.
	DefaultModel string

	// FallbackModel is used when both request and DefaultModel are empty.
	FallbackModel string

	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration

	// EndpointPath is the chat completions path. Defaults to "/chat/completions".
	EndpointPath string

	// ModelsEndpoint is the models list path used by HealthCheck. Defaults to "/models".
	ModelsEndpoint string

	// BuildHeaders is an optional function to set custom headers on each request.
	// If nil, the default "Authorization: Bearer <apiKey>" header is used.
	BuildHeaders func(req *http.Request, apiKey string)

	// RequestHook is an optional function to modify the request body before sending.
	RequestHook func(req *llm.ChatRequest, body *providers.OpenAICompatRequest)
}

// Provider is the base implementation for all OpenAI-compatible providers.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(timeout),
		Logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

func (p *Provider) buildHeaders(req *http.Request) {
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(req, p.Cfg.APIKey)
		return
	}
	providers.BearerTokenHeaders(req, p.Cfg.APIKey)
}

// HealthCheck verifies the provider is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, providers.JoinURL(p.Cfg.BaseURL, p.Cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.NetworkError(err, p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    "chat request has no messages",
			HTTPStatus: http.StatusBadRequest,
			Provider:   p.Name(),
		}
	}

	body := providers.OpenAICompatRequest{
		Model:            providers.ChooseModel(req, p.Cfg.DefaultModel, p.Cfg.FallbackModel),
		Messages:         providers.ConvertMessagesToOpenAI(req.Messages),
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
	}
	if p.Cfg.RequestHook != nil {
		p.Cfg.RequestHook(req, &body)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, providers.JoinURL(p.Cfg.BaseURL, p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	p.Logger.Debug("chat completion",
		zap.String("model", body.Model),
		zap.Int("messages", len(body.Messages)),
		zap.String("trace_id", req.TraceID))

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providers.NetworkError(err, p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(), Cause: err,
		}
	}
	if len(oaResp.Choices) == 0 {
		return nil, &llm.Error{
			Code: llm.ErrEmptyResponse, Message: "response contained no choices",
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	result := providers.ToLLMChatResponse(oaResp, p.Name())
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}
	return result, nil
}
