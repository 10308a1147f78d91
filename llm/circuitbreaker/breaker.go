package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int `yaml:"threshold" env:"THRESHOLD"`

	// Timeout 单次调用超时时间
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// ResetTimeout 熔断恢复等待时间（Open -> HalfOpen）
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`

	// HalfOpenSuccesses 半开状态下连续成功多少次后关闭
	HalfOpenSuccesses int `yaml:"half_open_successes" env:"HALF_OPEN_SUCCESSES"`

	// IsFailure 判断错误是否计入失败；为空时除 context.Canceled 外均计入
	IsFailure func(err error) bool `yaml:"-"`

	// OnStateChange 状态变更回调
	OnStateChange func(from State, to State) `yaml:"-"`
}

// DefaultConfig 返回默认配置：5 次失败打开，60 秒后半开，半开 3 次成功关闭。
func DefaultConfig() *Config {
	return &Config{
		Threshold:         5,
		Timeout:           30 * time.Second,
		ResetTimeout:      60 * time.Second,
		HalfOpenSuccesses: 3,
	}
}

// CircuitBreaker 熔断器接口
type CircuitBreaker interface {
	// Call 执行调用，如果熔断器打开则返回 ErrCircuitOpen
	Call(ctx context.Context, fn func(ctx context.Context) error) error

	// CallWithResult 执行调用并返回结果
	CallWithResult(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error)

	// State 获取当前状态
	State() State

	// Reset 重置熔断器（手动恢复）
	Reset()
}

// breaker 熔断器实现
type breaker struct {
	config *Config
	logger *zap.Logger
	now    func() time.Time

	mu                sync.Mutex
	state             State
	failureCount      int       // 连续失败次数
	openedAt          time.Time // 进入 Open 的时间
	halfOpenSuccesses int       // 半开状态下的连续成功次数
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(config *Config, logger *zap.Logger) CircuitBreaker {
	return newBreaker(config, logger)
}

func newBreaker(config *Config, logger *zap.Logger) *breaker {
	if config == nil {
		config = DefaultConfig()
	}
	c := *config

	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &breaker{
		config: &c,
		logger: logger,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Call 实现 CircuitBreaker.Call
func (b *breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.CallWithResult(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// CallWithResult 实现 CircuitBreaker.CallWithResult
// 核心逻辑：状态机转换 + 失败计数 + 超时控制
func (b *breaker) CallWithResult(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := b.beforeCall(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	resultCh := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- callResult{err: fmt.Errorf("panic in guarded call: %v", r)}
			}
		}()
		result, err := fn(callCtx)
		resultCh <- callResult{result: result, err: err}
	}()

	select {
	case <-callCtx.Done():
		// 调用方主动取消不影响熔断统计
		if b.isFailure(callCtx.Err()) {
			b.afterCall(false)
		}
		return nil, fmt.Errorf("调用超时: %w", callCtx.Err())

	case res := <-resultCh:
		b.afterCall(res.err == nil || !b.isFailure(res.err))
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	}
}

type callResult struct {
	result any
	err    error
}

func (b *breaker) isFailure(err error) bool {
	if err == nil {
		return false
	}
	if b.config.IsFailure != nil {
		return b.config.IsFailure(err)
	}
	return !errors.Is(err, context.Canceled)
}

// beforeCall 调用前检查
func (b *breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return nil

	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.config.ResetTimeout {
			b.setState(StateHalfOpen)
			b.halfOpenSuccesses = 0
			b.logger.Info("熔断器进入半开状态")
			return nil
		}
		return ErrCircuitOpen

	default:
		return fmt.Errorf("未知的熔断器状态: %v", b.state)
	}
}

// afterCall 调用后处理
func (b *breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

// onSuccess 处理成功调用
func (b *breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0

	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.config.HalfOpenSuccesses {
			b.logger.Info("熔断器恢复正常",
				zap.Int("half_open_successes", b.halfOpenSuccesses),
			)
			b.setState(StateClosed)
			b.failureCount = 0
			b.halfOpenSuccesses = 0
		}

	case StateOpen:
		// 打开前已放行的调用，忽略
	}
}

// onFailure 处理失败调用
func (b *breaker) onFailure() {
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.config.Threshold {
			b.logger.Warn("熔断器打开",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.Threshold),
			)
			b.open()
		}

	case StateHalfOpen:
		b.logger.Warn("熔断器半开状态失败，重新打开",
			zap.Int("half_open_successes", b.halfOpenSuccesses),
		)
		b.open()

	case StateOpen:
		b.openedAt = b.now()
	}
}

func (b *breaker) open() {
	b.setState(StateOpen)
	b.openedAt = b.now()
	b.halfOpenSuccesses = 0
}

// setState 设置状态并触发回调
func (b *breaker) setState(newState State) {
	oldState := b.state
	if oldState == newState {
		return
	}
	b.state = newState

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}

// State 实现 CircuitBreaker.State
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 实现 CircuitBreaker.Reset
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldState := b.state
	b.setState(StateClosed)
	b.failureCount = 0
	b.halfOpenSuccesses = 0

	b.logger.Info("熔断器已重置",
		zap.String("from_state", oldState.String()),
	)
}

// ErrCircuitOpen 熔断器打开时返回
var ErrCircuitOpen = errors.New("circuit breaker is OPEN")
