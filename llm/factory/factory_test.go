package factory

import (
	"context"
	"testing"

	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// Factory Tests
// =============================================================================

func TestNewProvider_ByKind(t *testing.T) {
	catalog := providers.DefaultCatalog()
	tests := []struct {
		id       string
		wantName string
	}{
		{"openai", "openai"},
		{"groq", "groq"},
		{"ollama", "ollama"},
		{"anthropic", "anthropic"},
		{"google", "google"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			entry, ok := catalog.Get(tt.id)
			require.True(t, ok)
			p, err := NewProvider(context.Background(), entry, "key", "", 0, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := NewProvider(context.Background(), providers.Entry{ID: "custom", Kind: providers.KindOpenAICompat}, "", "", 0, nil)
	assert.Error(t, err)

	_, err = NewProvider(context.Background(), providers.Entry{ID: "x", Kind: "soap", Endpoint: "http://x"}, "", "", 0, nil)
	assert.Error(t, err)
}

func TestResolveEndpoint(t *testing.T) {
	gw := providers.GatewayConfig{Enabled: true, BaseURL: "https://gw.example/v1/acct"}
	openai := providers.Entry{ID: "openai", Endpoint: "https://api.openai.com/v1", Gateway: true}
	deepseek := providers.Entry{ID: "deepseek", Endpoint: "https://api.deepseek.com"}

	assert.Equal(t, "https://gw.example/v1/acct/openai", ResolveEndpoint(openai, providers.ProviderConfig{}, gw))
	assert.Equal(t, "http://local", ResolveEndpoint(openai, providers.ProviderConfig{BaseURL: "http://local"}, gw))
	assert.Equal(t, "https://api.deepseek.com", ResolveEndpoint(deepseek, providers.ProviderConfig{}, gw))
	assert.Equal(t, "https://api.openai.com/v1", ResolveEndpoint(openai, providers.ProviderConfig{}, providers.GatewayConfig{}))
}

func TestNewRegistry(t *testing.T) {
	catalog := providers.DefaultCatalog()
	secrets := func(key string) string {
		if key == "GOOGLE_API_KEY" {
			return "g"
		}
		return ""
	}
	reg, err := NewRegistry(context.Background(), catalog, Options{
		Default: "ollama",
		Providers: map[string]providers.ProviderConfig{
			"openai": {APIKey: "sk", Models: map[string]string{"large": "gpt-4.1"}},
		},
		Secrets: secrets,
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, len(catalog.IDs()), reg.Len())
	p, err := reg.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	s, err := catalog.Settings("openai", llm.ModelClassLarge)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", s.Name)
}

func TestNewRegistry_UnknownDefault(t *testing.T) {
	_, err := NewRegistry(context.Background(), providers.NewCatalog(), Options{Default: "missing"}, nil)
	assert.Error(t, err)
}
