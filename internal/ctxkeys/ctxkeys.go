// Package ctxkeys 定义跨包传递的 context 键
package ctxkeys

import "context"

type contextKey string

const (
	traceIDKey  contextKey = "trace_id"
	runIDKey    contextKey = "run_id"
	llmModelKey contextKey = "llm_model"
)

func lookup(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTraceID 设置调用方提供的追踪 ID，随请求转发给模型供应商
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取追踪 ID
func TraceID(ctx context.Context) (string, bool) { return lookup(ctx, traceIDKey) }

// WithRunID 标记一次消息处理周期，值为触发该周期的消息 ID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID 获取运行 ID
func RunID(ctx context.Context) (string, bool) { return lookup(ctx, runIDKey) }

// WithLLMModel 为本次调用覆盖模型类别映射出的模型名
func WithLLMModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, llmModelKey, model)
}

// LLMModel 获取覆盖的模型名
func LLMModel(ctx context.Context) (string, bool) { return lookup(ctx, llmModelKey) }
