package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (s *stubProvider) Completion(context.Context, *ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Provider: s.name, Choices: []ChatChoice{{Message: Message{Role: RoleAssistant, Content: "ok"}}}}, nil
}
func (s *stubProvider) HealthCheck(context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: true}, nil
}
func (s *stubProvider) Name() string { return s.name }

func TestProviderRegistry_RegisterAndResolve(t *testing.T) {
	r := NewProviderRegistry()
	openai := &stubProvider{name: "openai"}
	r.Register("OpenAI", openai)

	got, ok := r.Get("openai")
	require.True(t, ok)
	assert.Same(t, openai, got)

	p, err := r.Resolve("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = r.Resolve("unknown")
	var llmErr *Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrRoutingUnavailable, llmErr.Code)
}

func TestProviderRegistry_Default(t *testing.T) {
	r := NewProviderRegistry()

	_, err := r.Default()
	require.Error(t, err)

	require.Error(t, r.SetDefault("missing"))

	r.Register("ollama", &stubProvider{name: "ollama"})
	require.NoError(t, r.SetDefault("ollama"))

	p, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	r.Unregister("ollama")
	_, err = r.Default()
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestProviderRegistry_List(t *testing.T) {
	r := NewProviderRegistry()
	r.Register("groq", &stubProvider{name: "groq"})
	r.Register("anthropic", &stubProvider{name: "anthropic"})
	assert.Equal(t, []string{"anthropic", "groq"}, r.List())
}

func TestStripThinking(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no tags", "hello", "hello"},
		{"think block", "<think>plan the answer</think>\nHello there", "Hello there"},
		{"multiline", "<thinking>\na\nb\n</thinking>\n\n{\"action\":\"NONE\"}", `{"action":"NONE"}`},
		{"two blocks", "<think>x</think>A <reasoning>y</reasoning>B", "A B"},
		{"unterminated", "<think>still thinking...", ""},
		{"orphan closing", "leaked reasoning</think> final", "final"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripThinking(tt.in))
		})
	}
}

func TestChatResponse_Text(t *testing.T) {
	var nilResp *ChatResponse
	assert.Equal(t, "", nilResp.Text())

	resp := &ChatResponse{Choices: []ChatChoice{{Message: Message{Content: "hi"}}}}
	assert.Equal(t, "hi", resp.Text())
}

func TestChatRequest_SystemPrompt(t *testing.T) {
	req := &ChatRequest{Messages: []Message{
		{Role: RoleUser, Content: "u"},
		{Role: RoleSystem, Content: "s"},
	}}
	assert.Equal(t, "s", req.SystemPrompt())
}
