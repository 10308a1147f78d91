package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/config"
	"github.com/BaSui01/agentruntime/internal/tlsutil"
)

// =============================================================================
// 🗄️ 数据库后端
// =============================================================================

// DatabaseBackend 使用 DatabaseAdapter 的 cache 表，按 agentID 隔离
type DatabaseBackend struct {
	store   adapter.CacheStore
	agentID string
}

// NewDatabaseBackend 创建数据库后端
func NewDatabaseBackend(store adapter.CacheStore, agentID string) *DatabaseBackend {
	return &DatabaseBackend{store: store, agentID: agentID}
}

func (b *DatabaseBackend) Name() string { return "database" }

func (b *DatabaseBackend) Get(ctx context.Context, key string) (string, bool, error) {
	return b.store.GetCache(ctx, key, b.agentID)
}

// Set 忽略 ttl，过期由 Manager 在读取时处理
func (b *DatabaseBackend) Set(ctx context.Context, key, value string, _ time.Duration) error {
	return b.store.SetCache(ctx, key, b.agentID, value)
}

func (b *DatabaseBackend) Delete(ctx context.Context, key string) error {
	return b.store.DeleteCache(ctx, key, b.agentID)
}

// Close 不关闭 store，store 的生命周期属于运行时
func (b *DatabaseBackend) Close() error { return nil }

// =============================================================================
// 🧠 内存后端
// =============================================================================

// MemoryBackend 基于 ristretto 的进程内缓存，容量满时按 TinyLFU 淘汰
type MemoryBackend struct {
	cache *ristretto.Cache
}

// NewMemoryBackend 创建内存后端，maxEntries<=0 时使用 10000
func NewMemoryBackend(maxEntries int64) (*MemoryBackend, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// 成本按条目计，不叠加内部结构的内存开销
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &MemoryBackend{cache: c}, nil
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := b.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

// Set 每个条目成本为 1；写入是异步的，Wait 保证随后的 Get 可见
func (b *MemoryBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	b.cache.SetWithTTL(key, value, 1, ttl)
	b.cache.Wait()
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.cache.Del(key)
	return nil
}

func (b *MemoryBackend) Close() error {
	b.cache.Close()
	return nil
}

// =============================================================================
// 🔴 Redis 后端
// =============================================================================

// RedisBackend 使用 go-redis，键统一加 prefix
type RedisBackend struct {
	client *redis.Client
	prefix string
	logger *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRedisBackend 连接 Redis 并启动健康检查
func NewRedisBackend(ctx context.Context, cfg config.RedisConfig, prefix string, logger *zap.Logger) (*RedisBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.TLS {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			host = cfg.Addr
		}
		opts.TLSConfig = tlsutil.ServerTLSConfig(host)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	b := &RedisBackend{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "cache_redis")),
		stop:   make(chan struct{}),
	}
	go b.healthCheckLoop(30 * time.Second)
	b.logger.Info("redis cache connected", zap.String("addr", cfg.Addr), zap.String("prefix", prefix))
	return b, nil
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := b.client.Get(ctx, b.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set ttl<=0 时不设置过期；过去的时刻也按不过期写入，读取时由 Manager 删除
func (b *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return b.client.Set(ctx, b.prefix+key, value, ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.prefix+key).Err()
}

// Ping 检查 Redis 连接
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	return b.client.Close()
}

// healthCheckLoop 健康检查循环
func (b *RedisBackend) healthCheckLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.Ping(ctx); err != nil {
				b.logger.Error("cache health check failed", zap.Error(err))
			} else {
				b.logger.Debug("cache health check passed")
			}
			cancel()
		}
	}
}
