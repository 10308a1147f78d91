package image

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/parsing"
	"github.com/BaSui01/agentruntime/llm/providers"
	"go.uber.org/zap"
)

// NewProvider 按目录中的厂商构造图像 Provider。
// Google 走 Imagen，其余厂商走 OpenAI 兼容端点。
func NewProvider(ctx context.Context, catalog *providers.Catalog, id, apiKey, endpoint string) (Provider, error) {
	entry, ok := catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown image provider %q", id)
	}
	settings, err := catalog.Settings(id, llm.ModelClassImage)
	if err != nil {
		return nil, err
	}
	if endpoint == "" {
		endpoint = entry.Endpoint
	}
	if entry.Kind == providers.KindGoogle {
		return NewGeminiProvider(ctx, GeminiConfig{APIKey: apiKey, Model: settings.Name})
	}
	return NewOpenAIProvider(OpenAIConfig{
		ProviderName: entry.ID,
		APIKey:       apiKey,
		BaseURL:      endpoint,
		Model:        settings.Name,
	}), nil
}

// GenerateImage 一次性生成图像，不重试。错误放进结果信封。
func GenerateImage(ctx context.Context, p Provider, req *Request, logger *zap.Logger) Result[[]string] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return failed[[]string](ErrEmptyPrompt)
	}
	images, err := p.Generate(ctx, req)
	if err != nil {
		logger.Warn("image generation failed", zap.String("provider", p.Name()), zap.Error(err))
		return failed[[]string](err)
	}
	logger.Debug("image generated", zap.String("provider", p.Name()), zap.Int("count", len(images)))
	return succeeded(images)
}

const captionPrompt = `Describe this image and give it a short title.
Respond with a JSON object: {"title": "...", "description": "..."}`

// GenerateCaption 用视觉模型为图像生成标题和描述.
func GenerateCaption(ctx context.Context, vision llm.ModelProvider, model, imageURL string, logger *zap.Logger) Result[Caption] {
	if logger == nil {
		logger = zap.NewNop()
	}
	resp, err := vision.Completion(ctx, &llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: captionPrompt,
			Images:  []string{imageURL},
		}},
		MaxTokens: 512,
	})
	if err != nil {
		logger.Warn("image caption failed", zap.String("provider", vision.Name()), zap.Error(err))
		return failed[Caption](err)
	}
	text := llm.StripThinking(resp.Text())
	if c, found := parsing.Decode[Caption](parsing.ObjectChain(), text); found && (c.Title != "" || c.Description != "") {
		return succeeded(c)
	}

	// 模型没有按 JSON 回答时，首行作标题，其余作描述
	title, desc, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if title == "" {
		return failed[Caption](fmt.Errorf("%s: empty caption", vision.Name()))
	}
	return succeeded(Caption{Title: strings.TrimSpace(title), Description: strings.TrimSpace(desc)})
}
