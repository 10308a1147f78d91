package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/types"
)

// 默认检索参数
const (
	DefaultMatchThreshold = 0.1
	DefaultMatchCount     = 10

	// 缓存向量按 Levenshtein 距离筛选的阈值
	cachedEmbeddingThreshold = 2
)

// Embedder 为记忆文本生成向量，*embedding.Embedder 满足该接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ZeroVector() []float32
}

// Observer 接收每次操作的结果，通常由 internal/metrics 实现
type Observer interface {
	ObserveMemoryOperation(table, operation string, err error)
}

// Manager 管理一张记忆表，所有读写都带上所属 agent 的 id
type Manager struct {
	table    string
	agentID  string
	store    adapter.MemoryStore
	embedder Embedder
	observer Observer
	logger   *zap.Logger
}

// Option 配置 Manager
type Option func(*Manager)

// WithEmbedder 设置向量生成器
func WithEmbedder(e Embedder) Option {
	return func(m *Manager) { m.embedder = e }
}

// WithObserver 设置指标观察者
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager 创建 table 表的记忆管理器
func NewManager(table, agentID string, store adapter.MemoryStore, opts ...Option) *Manager {
	m := &Manager{table: table, agentID: agentID, store: store}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.With(zap.String("component", "memory"), zap.String("table", table))
	return m
}

// TableName 返回表名
func (m *Manager) TableName() string { return m.table }

// AgentID 返回所属 agent
func (m *Manager) AgentID() string { return m.agentID }

// SetEmbedder 在 Embedder 依赖本管理器作为缓存时延后注入
func (m *Manager) SetEmbedder(e Embedder) { m.embedder = e }

// =============================================================================
// 写入
// =============================================================================

// CreateMemory 写入一条记忆。id 已存在时什么也不做。
func (m *Manager) CreateMemory(ctx context.Context, mem *types.Memory, unique bool) (err error) {
	defer func() { m.observe("create", err) }()

	if mem == nil {
		return types.NewError(types.ErrInvalidRequest, "memory is nil")
	}
	if mem.ID == "" {
		mem.ID = types.NewID()
	}
	existing, err := m.store.GetMemoryByID(ctx, mem.ID)
	if err != nil {
		return fmt.Errorf("lookup memory %s: %w", mem.ID, err)
	}
	if existing != nil {
		m.logger.Debug("memory already exists, skipping", zap.String("id", mem.ID))
		return nil
	}

	if mem.AgentID == "" {
		mem.AgentID = m.agentID
	}
	if mem.CreatedAt == 0 {
		mem.CreatedAt = types.NowMillis()
	}
	err = m.store.CreateMemory(ctx, mem, m.table, unique)
	if adapter.IsDuplicate(err) {
		// 与另一次写入并发，结果相同
		m.logger.Debug("memory created concurrently, skipping", zap.String("id", mem.ID))
		return nil
	}
	return err
}

// AddEmbeddingToMemory 为没有向量的记忆补充向量。
// 嵌入失败时使用零向量，保证记忆仍可写入。
func (m *Manager) AddEmbeddingToMemory(ctx context.Context, mem *types.Memory) (*types.Memory, error) {
	if mem == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "memory is nil")
	}
	if mem.HasEmbedding() {
		return mem, nil
	}
	if m.embedder == nil {
		return nil, types.NewError(types.ErrProviderNotSet, "memory manager has no embedder")
	}

	text := mem.Content.Text
	if text == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "cannot embed memory without text")
	}

	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.logger.Warn("failed to embed memory, using zero vector",
			zap.String("id", mem.ID),
			zap.Error(err))
		vec = m.embedder.ZeroVector()
	}
	mem.Embedding = vec
	return mem, nil
}

// RemoveMemory 删除一条记忆
func (m *Manager) RemoveMemory(ctx context.Context, id string) (err error) {
	defer func() { m.observe("remove", err) }()
	return m.store.RemoveMemory(ctx, id, m.table)
}

// RemoveAllMemories 删除房间内本表的所有记忆
func (m *Manager) RemoveAllMemories(ctx context.Context, roomID string) (err error) {
	defer func() { m.observe("remove_all", err) }()
	return m.store.RemoveAllMemories(ctx, roomID, m.table)
}

// =============================================================================
// 读取
// =============================================================================

// GetMemoriesOptions 选择房间内最近的记忆
type GetMemoriesOptions struct {
	RoomID string
	// Count 为 0 时使用 DefaultMatchCount
	Count int
	// Unique 为 nil 时默认只返回唯一记忆
	Unique *bool
	Start  int64
	End    int64
}

// GetMemories 返回房间内最近的记忆，按时间倒序
func (m *Manager) GetMemories(ctx context.Context, opts GetMemoriesOptions) (mems []*types.Memory, err error) {
	defer func() { m.observe("get", err) }()

	count := opts.Count
	if count <= 0 {
		count = DefaultMatchCount
	}
	unique := true
	if opts.Unique != nil {
		unique = *opts.Unique
	}
	return m.store.GetMemories(ctx, adapter.GetMemoriesParams{
		TableName: m.table,
		AgentID:   m.agentID,
		RoomID:    opts.RoomID,
		Count:     count,
		Unique:    unique,
		Start:     opts.Start,
		End:       opts.End,
	})
}

// GetMemoryByID 按 id 读取。记录属于其他 agent 时返回 nil。
func (m *Manager) GetMemoryByID(ctx context.Context, id string) (mem *types.Memory, err error) {
	defer func() { m.observe("get_by_id", err) }()

	mem, err = m.store.GetMemoryByID(ctx, id)
	if err != nil || mem == nil {
		return nil, err
	}
	if mem.AgentID != m.agentID {
		m.logger.Debug("memory belongs to another agent",
			zap.String("id", id),
			zap.String("owner", mem.AgentID))
		return nil, nil
	}
	return mem, nil
}

// GetMemoriesByRoomIDs 返回多个房间内的记忆
func (m *Manager) GetMemoriesByRoomIDs(ctx context.Context, roomIDs []string, limit int) (mems []*types.Memory, err error) {
	defer func() { m.observe("get_by_rooms", err) }()
	if len(roomIDs) == 0 {
		return nil, nil
	}
	return m.store.GetMemoriesByRoomIDs(ctx, adapter.GetMemoriesByRoomIDsParams{
		TableName: m.table,
		AgentID:   m.agentID,
		RoomIDs:   roomIDs,
		Limit:     limit,
	})
}

// SearchOptions 向量检索选项，零值使用默认阈值与数量
type SearchOptions struct {
	MatchThreshold float64
	Count          int
	RoomID         string
	Unique         bool
}

// SearchMemoriesByEmbedding 按余弦相似度检索
func (m *Manager) SearchMemoriesByEmbedding(ctx context.Context, vec []float32, opts SearchOptions) (mems []*types.Memory, err error) {
	defer func() { m.observe("search", err) }()

	if opts.MatchThreshold == 0 {
		opts.MatchThreshold = DefaultMatchThreshold
	}
	if opts.Count <= 0 {
		opts.Count = DefaultMatchCount
	}
	return m.store.SearchMemories(ctx, adapter.SearchMemoriesParams{
		TableName:      m.table,
		AgentID:        m.agentID,
		RoomID:         opts.RoomID,
		Embedding:      vec,
		MatchThreshold: opts.MatchThreshold,
		MatchCount:     opts.Count,
		Unique:         opts.Unique,
	})
}

// GetCachedEmbeddings 查找文本相近的已存储向量，实现 embedding.Cache
func (m *Manager) GetCachedEmbeddings(ctx context.Context, text string) (hits []types.CachedEmbedding, err error) {
	defer func() { m.observe("cached_embeddings", err) }()
	return m.store.GetCachedEmbeddings(ctx, adapter.CachedEmbeddingsParams{
		QueryTableName:    m.table,
		QueryThreshold:    cachedEmbeddingThreshold,
		QueryInput:        text,
		QueryFieldName:    "content",
		QueryFieldSubName: "text",
		QueryMatchCount:   DefaultMatchCount,
	})
}

// CountMemories 统计房间内本表的记忆数
func (m *Manager) CountMemories(ctx context.Context, roomID string, unique bool) (n int, err error) {
	defer func() { m.observe("count", err) }()
	return m.store.CountMemories(ctx, roomID, unique, m.table)
}

func (m *Manager) observe(op string, err error) {
	if m.observer == nil {
		return
	}
	m.observer.ObserveMemoryOperation(m.table, op, err)
}
