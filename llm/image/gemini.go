package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/BaSui01/agentruntime/llm/providers/gemini"
	"google.golang.org/genai"
)

// GeminiConfig 配置 Google Imagen 图像生成.
type GeminiConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GeminiProvider 通过 genai SDK 的 GenerateImages 调用 Imagen.
type GeminiProvider struct {
	cfg    GeminiConfig
	client *genai.Client
}

// NewGeminiProvider creates a Gemini image provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "imagen-3.0-generate-002"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	client, err := gemini.NewClient(ctx, cfg.APIKey, cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{cfg: cfg, client: client}, nil
}

func (p *GeminiProvider) Name() string { return "google" }

// aspectRatio 把宽高映射到 Imagen 支持的比例.
func aspectRatio(w, h int) string {
	if w <= 0 || h <= 0 || w == h {
		return "1:1"
	}
	r := float64(w) / float64(h)
	switch {
	case r >= 1.7:
		return "16:9"
	case r >= 1.3:
		return "4:3"
	case r <= 0.6:
		return "9:16"
	case r < 1:
		return "3:4"
	default:
		return "1:1"
	}
}

func (p *GeminiProvider) Generate(ctx context.Context, req *Request) ([]string, error) {
	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}
	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: int32(max(req.Count, 1)),
		AspectRatio:    aspectRatio(req.Width, req.Height),
		NegativePrompt: req.NegativePrompt,
	}
	if req.Seed != 0 {
		cfg.Seed = genai.Ptr(int32(req.Seed))
	}

	resp, err := p.client.Models.GenerateImages(ctx, model, req.Prompt, cfg)
	if err != nil {
		return nil, gemini.MapError(err, p.Name())
	}

	images := make([]string, 0, len(resp.GeneratedImages))
	for _, g := range resp.GeneratedImages {
		if g == nil || g.Image == nil || len(g.Image.ImageBytes) == 0 {
			continue
		}
		mime := g.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		images = append(images, "data:"+mime+";base64,"+base64.StdEncoding.EncodeToString(g.Image.ImageBytes))
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%s: no images returned", p.Name())
	}
	return images, nil
}
