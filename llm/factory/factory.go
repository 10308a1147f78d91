// Package factory builds model providers from the vendor catalogue. It imports
// every provider implementation and maps a catalogue Kind to its constructor,
// breaking the import cycle that would occur if this logic lived in the llm
// package directly.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/providers"
	claude "github.com/BaSui01/agentruntime/llm/providers/anthropic"
	"github.com/BaSui01/agentruntime/llm/providers/gemini"
	"github.com/BaSui01/agentruntime/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// Options describes which providers to build and how to reach them.
type Options struct {
	// Default is the provider used when a caller passes no provider id.
	Default string
	// Providers overrides catalogue endpoints, models and API keys per provider id.
	Providers map[string]providers.ProviderConfig
	Gateway   providers.GatewayConfig
	Timeout   time.Duration
	// Secrets resolves <ID>_API_KEY when a provider config carries no key.
	Secrets providers.SecretLookup
}

// ApplyOverrides writes configured endpoints and model names into the catalogue.
func ApplyOverrides(catalog *providers.Catalog, overrides map[string]providers.ProviderConfig) {
	for id, pc := range overrides {
		catalog.OverrideEndpoint(id, pc.BaseURL)
		for class, name := range pc.Models {
			catalog.OverrideModel(id, llm.ModelClass(class), name)
		}
	}
}

// NewProvider creates the provider for entry. endpoint replaces entry.Endpoint when non-empty.
func NewProvider(ctx context.Context, entry providers.Entry, apiKey, endpoint string, timeout time.Duration, logger *zap.Logger) (llm.ModelProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if endpoint == "" {
		endpoint = entry.Endpoint
	}
	defaultModel := entry.Models[llm.ModelClassMedium].Name

	switch entry.Kind {
	case providers.KindAnthropic:
		return claude.NewClaudeProvider(claude.Config{
			APIKey:       apiKey,
			BaseURL:      endpoint,
			DefaultModel: defaultModel,
			Timeout:      timeout,
		}, logger), nil

	case providers.KindGoogle:
		return gemini.NewGeminiProvider(ctx, gemini.Config{
			APIKey:       apiKey,
			BaseURL:      endpoint,
			DefaultModel: defaultModel,
			Timeout:      timeout,
		}, logger)

	case providers.KindOpenAICompat, "":
		if endpoint == "" {
			return nil, fmt.Errorf("provider %q: base_url is required for an OpenAI-compatible provider", entry.ID)
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName:  entry.ID,
			APIKey:        apiKey,
			BaseURL:       endpoint,
			DefaultModel:  defaultModel,
			FallbackModel: entry.Models[llm.ModelClassSmall].Name,
			Timeout:       timeout,
		}, logger), nil

	default:
		return nil, fmt.Errorf("provider %q: unsupported kind %q", entry.ID, entry.Kind)
	}
}

// ResolveEndpoint picks the base URL of provider id: explicit config, then the
// AI gateway, then the catalogue default.
func ResolveEndpoint(entry providers.Entry, pc providers.ProviderConfig, gw providers.GatewayConfig) string {
	if pc.BaseURL != "" {
		return pc.BaseURL
	}
	if entry.Gateway {
		if url := gw.GatewayEndpoint(entry.ID); url != "" {
			return url
		}
	}
	return entry.Endpoint
}

// NewRegistry creates a ProviderRegistry holding one provider per catalogue
// entry. Any provider that fails to initialize is logged as a warning and skipped.
func NewRegistry(ctx context.Context, catalog *providers.Catalog, opts Options, logger *zap.Logger) (*llm.ProviderRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	secrets := opts.Secrets
	if secrets == nil {
		secrets = providers.EnvSecrets
	}
	ApplyOverrides(catalog, opts.Providers)

	reg := llm.NewProviderRegistry()
	for _, id := range catalog.IDs() {
		entry, _ := catalog.Get(id)
		pc := opts.Providers[id]

		apiKey := pc.APIKey
		if apiKey == "" {
			apiKey = secrets(providers.APIKeyName(id))
		}
		timeout := pc.Timeout
		if timeout == 0 {
			timeout = opts.Timeout
		}

		p, err := NewProvider(ctx, entry, apiKey, ResolveEndpoint(entry, pc, opts.Gateway), timeout, logger)
		if err != nil {
			logger.Warn("skipping provider: initialization failed",
				zap.String("provider", id),
				zap.Error(err))
			continue
		}
		reg.Register(id, p)
		logger.Debug("provider registered", zap.String("provider", id))
	}

	if opts.Default != "" {
		if err := reg.SetDefault(opts.Default); err != nil {
			return reg, fmt.Errorf("failed to set default provider %q: %w", opts.Default, err)
		}
	}
	logger.Info("model providers ready", zap.Int("count", reg.Len()), zap.String("default", opts.Default))
	return reg, nil
}
