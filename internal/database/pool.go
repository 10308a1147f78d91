package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 🗄️ 数据库连接池管理器
// =============================================================================

// Dialect 支持的数据库方言
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("database pool is closed")

// ParseDialect 解析驱动名，兼容常见别名
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %q", s)
	}
}

// PoolManager 持有 gorm 实例与底层 sql.DB，负责连接池参数、健康检查与事务
type PoolManager struct {
	db      *gorm.DB
	sqlDB   *sql.DB
	dialect Dialect
	config  PoolConfig
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// PoolConfig 连接池配置
type PoolConfig struct {
	// 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`

	// 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`

	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`

	// 连接最大空闲时间
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        5,
		MaxOpenConns:        25,
		ConnMaxLifetime:     5 * time.Minute,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Dialector 根据方言构造 gorm dialector。sqlite 使用纯 Go 的 glebarez 驱动。
func Dialector(d Dialect, dsn string) (gorm.Dialector, error) {
	switch d {
	case DialectPostgres:
		return postgres.Open(dsn), nil
	case DialectMySQL:
		return mysql.Open(dsn), nil
	case DialectSQLite:
		if dsn == "" {
			dsn = ":memory:"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database dialect: %q", d)
	}
}

// Open 打开数据库并包装为 PoolManager
func Open(ctx context.Context, d Dialect, dsn string, config PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	dialector, err := Dialector(d, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d, err)
	}
	if d == DialectSQLite {
		// sqlite 单写者；内存库每个连接各自独立，必须固定为一个连接
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
	}

	pm, err := NewPoolManager(db, config, logger)
	if err != nil {
		return nil, err
	}
	pm.dialect = d

	if err := pm.Ping(ctx); err != nil {
		_ = pm.Close()
		return nil, fmt.Errorf("ping %s database: %w", d, err)
	}
	return pm, nil
}

// NewPoolManager 包装一个已打开的 gorm 实例
func NewPoolManager(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pm := &PoolManager{
		db:      db,
		sqlDB:   sqlDB,
		dialect: Dialect(db.Dialector.Name()),
		config:  config,
		logger:  logger.With(zap.String("component", "db_pool")),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go pm.healthCheckLoop()
	} else {
		close(pm.done)
	}

	pm.logger.Info("database pool initialized",
		zap.String("dialect", string(pm.dialect)),
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Duration("conn_max_lifetime", config.ConnMaxLifetime),
	)

	return pm, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// DB 返回 GORM 数据库实例
func (pm *PoolManager) DB() *gorm.DB {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.db
}

// Dialect 返回当前方言
func (pm *PoolManager) Dialect() Dialect {
	return pm.dialect
}

// Ping 检查数据库连接
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Stats 返回连接池统计信息
func (pm *PoolManager) Stats() sql.DBStats {
	return pm.sqlDB.Stats()
}

// Close 停止健康检查并关闭连接池，可重复调用
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return nil
	}
	pm.closed = true
	pm.mu.Unlock()

	close(pm.stop)
	<-pm.done

	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (pm *PoolManager) healthCheckLoop() {
	defer close(pm.done)

	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := pm.Ping(ctx); err != nil {
			if !errors.Is(err, ErrPoolClosed) {
				pm.logger.Error("database health check failed", zap.Error(err))
			}
		} else {
			stats := pm.Stats()
			pm.logger.Debug("database health check passed",
				zap.Int("open_connections", stats.OpenConnections),
				zap.Int("in_use", stats.InUse),
				zap.Int("idle", stats.Idle),
			)
		}
		cancel()
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// PoolStats 连接池统计信息（更友好的格式）
type PoolStats struct {
	Dialect            Dialect       `json:"dialect"`
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
	MaxIdleClosed      int64         `json:"max_idle_closed"`
	MaxLifetimeClosed  int64         `json:"max_lifetime_closed"`
}

// GetStats 获取友好格式的统计信息
func (pm *PoolManager) GetStats() PoolStats {
	stats := pm.Stats()
	return PoolStats{
		Dialect:            pm.dialect,
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}
}

// =============================================================================
// 🔄 事务管理
// =============================================================================

// TransactionFunc 事务函数类型
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 在事务中执行函数
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return ErrPoolClosed
	}
	db := pm.db
	pm.mu.RUnlock()

	return db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry 在事务中执行函数，死锁与序列化失败时指数退避重试
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, maxRetries int, fn TransactionFunc) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := pm.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return err
		}

		pm.logger.Warn("transaction failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)

		backoff := time.Duration(1<<uint(i)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("transaction failed after %d retries: %w", maxRetries, lastErr)
}

var retryableFragments = []string{
	"deadlock",
	"serialization failure", "40001",
	"connection reset", "connection refused", "broken pipe",
	"lock timeout", "lock wait timeout",
	"database is locked", // sqlite SQLITE_BUSY
	"bad connection",
}

// IsRetryableError 判断错误是否为瞬时数据库错误
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
