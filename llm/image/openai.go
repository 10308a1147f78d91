package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/agentruntime/internal/tlsutil"
	"github.com/BaSui01/agentruntime/llm/providers"
)

// OpenAIConfig 配置 OpenAI 兼容的 /images/generations 端点.
// BaseURL 包含版本段，例如 https://api.openai.com/v1。
type OpenAIConfig struct {
	ProviderName string        `json:"provider" yaml:"provider"`
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Model        string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIProvider 适用于 OpenAI、Together、Heurist、Venice 等兼容厂商.
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIProvider creates an OpenAI-compatible image provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIProvider{cfg: cfg, client: tlsutil.SecureHTTPClient(timeout)}
}

func (p *OpenAIProvider) Name() string { return p.cfg.ProviderName }

type imagesRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Seed           int64  `json:"seed,omitempty"`
	Steps          int    `json:"steps,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imagesResponse struct {
	Data []struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	} `json:"data"`
}

// Generate 从文本提示生成图像.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) ([]string, error) {
	body := imagesRequest{
		Model:          p.cfg.Model,
		Prompt:         req.Prompt,
		N:              max(req.Count, 1),
		Size:           req.Size(),
		Seed:           req.Seed,
		Steps:          req.Steps,
		NegativePrompt: req.NegativePrompt,
	}
	if req.Model != "" {
		body.Model = req.Model
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		providers.JoinURL(p.cfg.BaseURL, "/images/generations"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	providers.BearerTokenHeaders(httpReq, p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.NetworkError(err, p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var out imagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode image response: %w", err)
	}

	images := make([]string, 0, len(out.Data))
	for _, d := range out.Data {
		switch {
		case d.URL != "":
			images = append(images, d.URL)
		case d.B64JSON != "":
			images = append(images, "data:image/png;base64,"+d.B64JSON)
		}
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%s: no images returned", p.Name())
	}
	return images, nil
}
