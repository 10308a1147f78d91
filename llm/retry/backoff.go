package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Unbounded 表示不限制尝试次数，只由 ctx 取消终止。
const Unbounded = 0

// ErrNoResult 表示调用成功返回但没有可用结果（例如解析失败），需要重试。
var ErrNoResult = errors.New("no usable result")

// RetryPolicy 定义重试策略配置
type RetryPolicy struct {
	MaxAttempts  int                                               // 总尝试次数（含首次）；Unbounded 表示不限
	InitialDelay time.Duration                                     // 首次重试前的延迟
	MaxDelay     time.Duration                                     // 单次延迟上限
	Multiplier   float64                                           // 延迟倍增因子（指数退避）
	Jitter       bool                                              // 是否添加随机抖动（±25%，不低于 InitialDelay）
	ShouldRetry  func(err error) bool                              // 错误过滤；为空则重试所有错误
	OnRetry      func(attempt int, err error, delay time.Duration) // 重试回调
}

// DefaultRetryPolicy 返回通用调用的默认策略。
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// GenerationRetryPolicy 返回结构化生成辅助函数使用的策略：
// 1000ms 起步、逐次翻倍、无抖动，次数由调用方指定。
func GenerationRetryPolicy(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: 1 * time.Second,
		MaxDelay:     2 * time.Minute,
		Multiplier:   2.0,
	}
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败时根据策略重试
	Do(ctx context.Context, fn func(ctx context.Context) error) error

	// DoWithResult 执行函数并返回结果，失败时根据策略重试
	DoWithResult(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error)
}

// backoffRetryer 基于指数退避的重试器实现
type backoffRetryer struct {
	policy *RetryPolicy
	logger *zap.Logger
	wait   func(ctx context.Context, d time.Duration) error
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	return newBackoffRetryer(policy, logger)
}

func newBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) *backoffRetryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	p := *policy

	if p.MaxAttempts < 0 {
		p.MaxAttempts = Unbounded
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = 30 * time.Second
		if p.MaxDelay < p.InitialDelay {
			p.MaxDelay = p.InitialDelay
		}
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &backoffRetryer{
		policy: &p,
		logger: logger,
		wait:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do 实现 Retryer.Do
func (r *backoffRetryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := r.DoWithResult(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// DoWithResult 实现 Retryer.DoWithResult
// 核心重试逻辑：指数退避 + 可选抖动 + 错误过滤 + ctx 取消
func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			delay := r.calculateDelay(attempt - 1)

			r.logger.Debug("重试中",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt-1, lastErr, delay)
			}

			if err := r.wait(ctx, delay); err != nil {
				return nil, fmt.Errorf("重试被取消: %w", errors.Join(err, lastErr))
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("重试被取消: %w", err)
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("重试成功", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if !r.isRetryable(err) {
			r.logger.Debug("错误不可重试", zap.Error(err))
			return nil, err
		}

		if r.policy.MaxAttempts != Unbounded && attempt >= r.policy.MaxAttempts {
			r.logger.Warn("重试次数耗尽",
				zap.Int("attempts", attempt),
				zap.Error(lastErr),
			)
			return nil, fmt.Errorf("重试 %d 次后仍失败: %w", attempt, lastErr)
		}
	}
}

// calculateDelay 计算第 retry 次重试前的延迟
// delay = initial * multiplier^(retry-1)，封顶 MaxDelay
func (r *backoffRetryer) calculateDelay(retry int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(retry-1))

	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	// 随机抖动（±25%），防止多个客户端同时重试
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}

	return time.Duration(delay)
}

func (r *backoffRetryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if r.policy.ShouldRetry == nil {
		return true
	}
	return r.policy.ShouldRetry(err)
}

// PermanentError 标记不应重试的错误
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent 将错误包装为不可重试错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent 检查错误是否被 Permanent 包装
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
