package providers

import (
	"os"
	"strings"
	"time"
)

// ProviderConfig 单个厂商的配置，覆盖目录中的默认端点与模型名。
type ProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Models 按模型档位覆盖模型名，键为 small/medium/large/embedding/image
	Models map[string]string `json:"models,omitempty" yaml:"models,omitempty"`
}

// GatewayConfig AI 网关配置。启用后，支持网关的厂商请求改走 {BaseURL}/{provider}。
type GatewayConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	BaseURL string `json:"base_url" yaml:"base_url" env:"BASE_URL"`
}

// GatewayEndpoint returns the gateway URL for provider, or "" when the gateway is off.
func (g GatewayConfig) GatewayEndpoint(provider string) string {
	if !g.Enabled || g.BaseURL == "" {
		return ""
	}
	return JoinURL(g.BaseURL, normalizeID(provider))
}

// SecretLookup resolves a secret by key, e.g. OPENAI_API_KEY.
type SecretLookup func(key string) string

// EnvSecrets reads secrets from the process environment.
func EnvSecrets(key string) string { return os.Getenv(key) }

// APIKeyName returns the conventional secret key of a provider ("groq" → "GROQ_API_KEY").
func APIKeyName(provider string) string {
	return strings.ToUpper(normalizeID(provider)) + "_API_KEY"
}

// ChainSecrets returns the first non-empty value among lookups.
func ChainSecrets(lookups ...SecretLookup) SecretLookup {
	return func(key string) string {
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if v := l(key); v != "" {
				return v
			}
		}
		return ""
	}
}
