package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func float32Ptr(v float32) *float32 { return &v }

// ---------------------------------------------------------------------------
// New() constructor
// ---------------------------------------------------------------------------

func TestNew_Defaults(t *testing.T) {
	p := New(Config{ProviderName: "groq"}, nil)
	require.NotNil(t, p)
	assert.Equal(t, "/chat/completions", p.Cfg.EndpointPath)
	assert.Equal(t, "/models", p.Cfg.ModelsEndpoint)
	assert.Equal(t, "groq", p.Name())
	assert.Equal(t, 60*time.Second, p.Client.Timeout)
	assert.NotNil(t, p.Logger)
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func TestCompletion_RequestShape(t *testing.T) {
	var got providers.OpenAICompatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "c1",
			"model":   got.Model,
			"created": 1700000000,
			"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": "pong"}}},
			"usage":   map[string]any{"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6},
		})
	}))
	defer srv.Close()

	p := New(Config{ProviderName: "openai", APIKey: "sk-test", BaseURL: srv.URL + "/v1", DefaultModel: "gpt-4o"}, zap.NewNop())
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages:         []llm.Message{{Role: llm.RoleSystem, Content: "sys"}, {Role: llm.RoleUser, Content: "ping"}},
		MaxTokens:        64,
		Temperature:      0.3,
		FrequencyPenalty: float32Ptr(0.5),
		PresencePenalty:  float32Ptr(0.1),
		Stop:             []string{"\n\n"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 64, got.MaxTokens)
	assert.InDelta(t, 0.3, got.Temperature, 1e-6)
	require.NotNil(t, got.FrequencyPenalty)
	assert.InDelta(t, 0.5, *got.FrequencyPenalty, 1e-6)
	assert.Equal(t, []string{"\n\n"}, got.Stop)
	require.Len(t, got.Messages, 2)

	assert.Equal(t, "pong", resp.Text())
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
	assert.Equal(t, int64(1700000000), resp.CreatedAt.Unix())
}

func TestCompletion_HTTPErrorMapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer srv.Close()

	p := New(Config{ProviderName: "groq", BaseURL: srv.URL}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrRateLimited, llmErr.Code)
	assert.True(t, llmErr.Retryable)
	assert.Contains(t, llmErr.Message, "rate limited")
}

func TestCompletion_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	p := New(Config{ProviderName: "ollama", BaseURL: srv.URL}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrEmptyResponse, llmErr.Code)
}

func TestCompletion_NoMessages(t *testing.T) {
	p := New(Config{ProviderName: "ollama", BaseURL: "http://unused"}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{})
	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrInvalidRequest, llmErr.Code)
}

func TestCompletion_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := New(Config{ProviderName: "ollama", BaseURL: srv.URL}, nil)
	_, err := p.Completion(ctx, &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCompletion_RequestHookAndHeaders(t *testing.T) {
	var model, custom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body providers.OpenAICompatRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		model = body.Model
		custom = r.Header.Get("X-Api-Key")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := New(Config{
		ProviderName: "venice",
		APIKey:       "k",
		BaseURL:      srv.URL,
		BuildHeaders: func(r *http.Request, key string) { r.Header.Set("X-Api-Key", key) },
		RequestHook: func(_ *llm.ChatRequest, body *providers.OpenAICompatRequest) {
			body.Model = "hooked"
		},
	}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "hooked", model)
	assert.Equal(t, "k", custom)
}

// ---------------------------------------------------------------------------
// HealthCheck
// ---------------------------------------------------------------------------

func TestHealthCheck(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	p := New(Config{ProviderName: "openai", BaseURL: srv.URL}, nil)
	hs, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, hs.Healthy)

	status = http.StatusUnauthorized
	hs, err = p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, hs.Healthy)
}
