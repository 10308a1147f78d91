package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/internal/database"
	"github.com/BaSui01/agentruntime/types"
)

// Option 配置 Store
type Option func(*Store)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithAutoMigrate 让 Init 通过 gorm AutoMigrate 建表。sqlite 使用这条路径；
// postgres/mysql 通常交给 internal/migration。
func WithAutoMigrate(enabled bool) Option {
	return func(s *Store) { s.autoMigrate = enabled }
}

// WithVectorDimensions 限定写入向量的维度，0 表示不校验
func WithVectorDimensions(n int) Option {
	return func(s *Store) { s.dimensions = n }
}

// Store 基于 gorm 的 DatabaseAdapter 实现
type Store struct {
	pool        *database.PoolManager
	db          *gorm.DB
	logger      *zap.Logger
	autoMigrate bool
	dimensions  int
}

var _ adapter.DatabaseAdapter = (*Store)(nil)

// New 使用已打开的连接池创建 Store，Close 时一并关闭连接池
func New(pool *database.PoolManager, opts ...Option) *Store {
	s := &Store{pool: pool, db: pool.DB()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("component", "sqlstore"), zap.String("dialect", string(pool.Dialect())))
	return s
}

// Init 检查连接，按需建表
func (s *Store) Init(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return types.WrapError(err, types.ErrStorage, "database unreachable")
	}
	if !s.autoMigrate {
		return nil
	}
	db := s.db.WithContext(ctx)
	if s.pgvector() {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return types.WrapError(err, types.ErrStorage, "enable pgvector extension")
		}
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return types.WrapError(err, types.ErrStorage, "auto migrate")
	}
	s.logger.Info("schema migrated")
	return nil
}

// Close 关闭底层连接池
func (s *Store) Close() error {
	return s.pool.Close()
}

// pgvector 为 true 时相似度在数据库内用 <=> 计算，否则在进程内计算
func (s *Store) pgvector() bool {
	return s.pool.Dialect() == database.DialectPostgres
}

func (s *Store) checkDimensions(v []float32) error {
	if s.dimensions > 0 && len(v) > 0 && len(v) != s.dimensions {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("embedding has %d dimensions, store expects %d", len(v), s.dimensions))
	}
	return nil
}

// storageError 将驱动错误归类为 types.Error
func storageError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}
	e := types.NewError(types.ErrStorage, op).WithCause(err)
	if database.IsRetryableError(err) {
		e = e.WithRetryable(true)
	}
	return e
}

// isUniqueViolation 识别并发插入时的主键冲突
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

// likePrefix 转义 LIKE 通配符，统一使用 '!' 作为转义字符
func likePrefix(prefix string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(prefix) + "%"
}

const likeEscape = " ESCAPE '!'"

// exists 在 tx 中检查主键是否存在
func exists(tx *gorm.DB, model any, conds map[string]any) (bool, error) {
	var n int64
	if err := tx.Model(model).Where(conds).Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
