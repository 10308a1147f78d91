package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/BaSui01/agentruntime/llm/parsing"
	"github.com/BaSui01/agentruntime/types"
)

// GenerateShouldRespond 返回 RESPOND / IGNORE / STOP.
func (g *Generator) GenerateShouldRespond(ctx context.Context, req Request) (parsing.ShouldRespond, error) {
	return withRetry(ctx, g, &req, "generateShouldRespond", func(text string) (parsing.ShouldRespond, bool) {
		v := parsing.ParseShouldRespondFromText(text)
		return v, v != ""
	})
}

// GenerateTrueOrFalse 只看第一行回答，因此额外以换行作为停止符。
func (g *Generator) GenerateTrueOrFalse(ctx context.Context, req Request) (bool, error) {
	if !slices.Contains(req.Stop, "\n") {
		req.Stop = append(slices.Clone(req.Stop), "\n")
	}
	return withRetry(ctx, g, &req, "generateTrueOrFalse", func(text string) (bool, bool) {
		v := parsing.ParseBooleanFromText(text)
		if v == nil {
			return false, false
		}
		return *v, true
	})
}

// GenerateTextArray 解析 JSON 字符串数组，非字符串元素按 fmt 格式化。
func (g *Generator) GenerateTextArray(ctx context.Context, req Request) ([]string, error) {
	return withRetry(ctx, g, &req, "generateTextArray", func(text string) ([]string, bool) {
		arr := parsing.ParseJSONArrayFromText(text)
		if arr == nil {
			return nil, false
		}
		out := make([]string, 0, len(arr))
		for _, v := range arr {
			if s, ok := v.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(v))
			}
		}
		return out, true
	})
}

// GenerateObjectDeprecated 返回回答中的第一个 JSON 对象.
func (g *Generator) GenerateObjectDeprecated(ctx context.Context, req Request) (map[string]any, error) {
	return withRetry(ctx, g, &req, "generateObjectDeprecated", func(text string) (map[string]any, bool) {
		obj := parsing.ParseJSONObjectFromText(text)
		return obj, obj != nil
	})
}

// GenerateObjectArray 返回回答中的第一个 JSON 数组.
func (g *Generator) GenerateObjectArray(ctx context.Context, req Request) ([]any, error) {
	return withRetry(ctx, g, &req, "generateObjectArray", func(text string) ([]any, bool) {
		arr := parsing.ParseJSONArrayFromText(text)
		return arr, arr != nil
	})
}

// GenerateMessageResponse 把回答解析为消息内容（text、action 以及额外字段）。
func (g *Generator) GenerateMessageResponse(ctx context.Context, req Request) (types.Content, error) {
	return withRetry(ctx, g, &req, "generateMessageResponse", func(text string) (types.Content, bool) {
		var c types.Content
		raw, found := parsing.ObjectChain().Parse(text)
		if !found || json.Unmarshal(raw, &c) != nil {
			return c, false
		}
		return c, true
	})
}

// GenerateTweetActions 解析 like / retweet / quote / reply 标记.
func (g *Generator) GenerateTweetActions(ctx context.Context, req Request) (*parsing.ActionResponse, error) {
	return withRetry(ctx, g, &req, "generateTweetActions", func(text string) (*parsing.ActionResponse, bool) {
		a := parsing.ParseActionResponseFromText(text)
		return a, a != nil
	})
}

// GenerateObject 把回答中的 JSON 对象解码为 T.
func GenerateObject[T any](ctx context.Context, g *Generator, req Request) (T, error) {
	return withRetry(ctx, g, &req, "generateObject", func(text string) (T, bool) {
		return parsing.Decode[T](parsing.ObjectChain(), text)
	})
}
