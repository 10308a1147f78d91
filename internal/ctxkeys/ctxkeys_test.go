package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	ctx := context.Background()
	for _, get := range []func(context.Context) (string, bool){TraceID, RunID, LLMModel} {
		_, ok := get(ctx)
		assert.False(t, ok)
	}

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "msg-1")
	ctx = WithLLMModel(ctx, "gpt-4o-mini")

	v, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-1", v)
	v, _ = RunID(ctx)
	assert.Equal(t, "msg-1", v)
	v, _ = LLMModel(ctx)
	assert.Equal(t, "gpt-4o-mini", v)

	_, ok = RunID(WithRunID(context.Background(), ""))
	assert.False(t, ok, "empty values are absent")
}
