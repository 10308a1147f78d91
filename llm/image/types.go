package image

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyPrompt 提示词为空
var ErrEmptyPrompt = errors.New("image: empty prompt")

// Request 是一次文生图请求.
type Request struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Model          string `json:"model,omitempty"`
	Count          int    `json:"count,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Seed           int64  `json:"seed,omitempty"`
	Steps          int    `json:"steps,omitempty"`
}

// Size 返回 "WxH"，未设置时为 1024x1024。
func (r *Request) Size() string {
	w, h := r.Width, r.Height
	if w <= 0 {
		w = 1024
	}
	if h <= 0 {
		h = 1024
	}
	return fmt.Sprintf("%dx%d", w, h)
}

// Provider 生成图像，返回 URL 或 data URI.
type Provider interface {
	Generate(ctx context.Context, req *Request) ([]string, error)
	Name() string
}

// Result 是一次性调用的结果信封：成功时 Data 有效，失败时 Error 有效。
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func succeeded[T any](v T) Result[T] { return Result[T]{Success: true, Data: v} }

func failed[T any](err error) Result[T] { return Result[T]{Error: err.Error()} }

// Caption 是图像描述.
type Caption struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
