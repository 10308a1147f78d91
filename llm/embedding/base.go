package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentruntime/internal/tlsutil"
	"github.com/BaSui01/agentruntime/llm/providers"
	"golang.org/x/time/rate"
)

// BaseProvider为远程嵌入提供者提供了共同的功能.
type BaseProvider struct {
	name       string
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	limiter    *rate.Limiter
}

// BaseConfig持有基础提供者的共同配置.
type BaseConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	// RateLimit 每秒请求数，0 表示不限流
	RateLimit float64
	Burst     int
}

// NewBaseProvider 创建了一个新的基础提供者.
func NewBaseProvider(cfg BaseConfig) *BaseProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	bp := &BaseProvider{
		name:       cfg.Name,
		client:     tlsutil.SecureHTTPClient(timeout),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		bp.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return bp
}

func (p *BaseProvider) Name() string    { return p.name }
func (p *BaseProvider) Dimensions() int { return p.dimensions }

// DoRequest 执行 HTTP 请求并进行常见错误处理。非 2xx 一律视为失败。
func (p *BaseProvider) DoRequest(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding rate limiter: %w", err)
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	providers.BearerTokenHeaders(req, p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providers.NetworkError(err, p.name)
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.name)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, nil
}

// ChooseModel 从请求或默认中选择模型。
func ChooseModel(reqModel, defaultModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallback
}
