// Package cache provides internal cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/config"
)

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// ErrClosed 管理器关闭后的所有操作返回该错误
var ErrClosed = errors.New("cache manager is closed")

// Backend 保存已序列化的缓存条目。ttl 只是提示，过期由 Manager 统一判断。
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Observer 接收命中/未命中事件，通常由 internal/metrics 实现
type Observer interface {
	ObserveCache(backend string, hit bool)
}

// entry 是写入后端的信封，expires 为毫秒时间戳，0 表示永不过期
type entry struct {
	Value   json.RawMessage `json:"value"`
	Expires int64           `json:"expires"`
}

// Manager 缓存管理器
type Manager struct {
	backend    Backend
	defaultTTL time.Duration
	observer   Observer
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Option 配置 Manager
type Option func(*Manager)

// WithDefaultTTL 未显式指定过期时间时使用，0 表示永不过期
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.defaultTTL = ttl }
}

// WithObserver 设置指标观察者
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager 创建缓存管理器
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.With(zap.String("component", "cache"), zap.String("backend", backend.Name()))
	return m
}

// NewFromConfig 按 cfg.Backend 选择后端：database（默认）、redis 或 memory。
// database 后端把条目写入 store 的 cache 表并按 agentID 隔离；redis 键前缀为 KeyPrefix+agentID。
func NewFromConfig(ctx context.Context, cfg config.CacheConfig, redisCfg config.RedisConfig,
	store adapter.CacheStore, agentID string, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", "database", "db":
		if store == nil {
			return nil, errors.New("database cache backend requires a store")
		}
		backend = NewDatabaseBackend(store, agentID)
	case "redis":
		backend, err = NewRedisBackend(ctx, redisCfg, cfg.KeyPrefix+agentID+":", logger)
	case "memory":
		backend, err = NewMemoryBackend(cfg.MaxEntries)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	opts = append([]Option{WithDefaultTTL(cfg.DefaultTTL), WithLogger(logger)}, opts...)
	m := NewManager(backend, opts...)
	m.logger.Info("cache manager initialized", zap.Duration("default_ttl", cfg.DefaultTTL))
	return m, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// SetOption 单次写入的选项
type SetOption func(*setOptions)

type setOptions struct {
	expires time.Time
	ttl     time.Duration
}

// WithExpires 在指定时刻过期
func WithExpires(t time.Time) SetOption {
	return func(o *setOptions) { o.expires = t }
}

// WithTTL 在 ttl 之后过期
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// Get 读取 key 并解码到 dest。不存在、已过期或条目损坏时返回 false。
func (m *Manager) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, found, err := m.getRaw(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if dest != nil {
		if err := json.Unmarshal(raw, dest); err != nil {
			return false, fmt.Errorf("decode cache value %q: %w", key, err)
		}
	}
	return true, nil
}

// GetString 读取字符串值
func (m *Manager) GetString(ctx context.Context, key string) (string, bool, error) {
	var s string
	found, err := m.Get(ctx, key, &s)
	return s, found, err
}

func (m *Manager) getRaw(ctx context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}

	stored, found, err := m.backend.Get(ctx, key)
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("cache get failed: %w", err)
	}
	if !found {
		m.observe(false)
		return nil, false, nil
	}

	var e entry
	if err := json.Unmarshal([]byte(stored), &e); err != nil {
		m.logger.Warn("dropping malformed cache entry", zap.String("key", key), zap.Error(err))
		m.deleteQuietly(ctx, key)
		m.observe(false)
		return nil, false, nil
	}
	if e.Expires > 0 && m.now().UnixMilli() > e.Expires {
		m.deleteQuietly(ctx, key)
		m.observe(false)
		return nil, false, nil
	}
	m.observe(true)
	return e.Value, true, nil
}

// Set 写入 value（JSON 编码）
func (m *Manager) Set(ctx context.Context, key string, value any, opts ...SetOption) error {
	o := setOptions{ttl: m.defaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	now := m.now()
	expires := o.expires
	if expires.IsZero() && o.ttl > 0 {
		expires = now.Add(o.ttl)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %q: %w", key, err)
	}
	e := entry{Value: data}
	var ttl time.Duration
	if !expires.IsZero() {
		e.Expires = expires.UnixMilli()
		ttl = expires.Sub(now)
	}
	encoded, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.backend.Set(ctx, key, string(encoded), ttl); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Delete 删除 key，不存在时不报错
func (m *Manager) Delete(ctx context.Context, key string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.backend.Delete(ctx, key); err != nil {
		m.logger.Error("cache delete failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Backend 返回后端名称
func (m *Manager) Backend() string {
	return m.backend.Name()
}

// Close 关闭缓存管理器及其后端
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing cache manager")
	return m.backend.Close()
}

func (m *Manager) deleteQuietly(ctx context.Context, key string) {
	if err := m.backend.Delete(ctx, key); err != nil {
		m.logger.Debug("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

func (m *Manager) observe(hit bool) {
	if m.observer != nil {
		m.observer.ObserveCache(m.backend.Name(), hit)
	}
}
