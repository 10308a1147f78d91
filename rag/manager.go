package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/internal/cache"
	"github.com/BaSui01/agentruntime/rag/loader"
	"github.com/BaSui01/agentruntime/types"
)

// 默认检索与写入参数
const (
	DefaultMatchThreshold = 0.85
	DefaultMatchCount     = 8

	// 每批并发嵌入并写入的分块数
	chunkBatchSize = 10
	// 目录导入时每批并发处理的文件数
	fileBatchSize = 5
)

// Embedder 为文本生成向量，*embedding.Embedder 满足该接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Observer 接收导入的分块数，通常由 internal/metrics 实现
type Observer interface {
	ObserveKnowledgeIngested(source string, chunks int)
}

// Config RAG 知识管理配置
type Config struct {
	// KnowledgeRoot 知识文件根目录，文件的 source 元数据相对于它
	KnowledgeRoot  string
	MatchThreshold float64
	MatchCount     int
	ChunkSize      int
	Bleed          int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		KnowledgeRoot:  "knowledge",
		MatchThreshold: DefaultMatchThreshold,
		MatchCount:     DefaultMatchCount,
		ChunkSize:      DefaultChunkSize,
		Bleed:          DefaultBleed,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.KnowledgeRoot == "" {
		c.KnowledgeRoot = d.KnowledgeRoot
	}
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = d.MatchThreshold
	}
	if c.MatchCount <= 0 {
		c.MatchCount = d.MatchCount
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Bleed < 0 {
		c.Bleed = d.Bleed
	}
	return c
}

// KnowledgeManager 管理一个 agent 的 RAG 知识：写入主记录与分块、检索并重排
type KnowledgeManager struct {
	agentID  string
	store    adapter.KnowledgeStore
	embedder Embedder
	loaders  *loader.Registry
	cache    *cache.Manager
	observer Observer
	cfg      Config
	logger   *zap.Logger
}

// Option 配置 KnowledgeManager
type Option func(*KnowledgeManager)

// WithLoaders 替换文件加载器
func WithLoaders(r *loader.Registry) Option {
	return func(m *KnowledgeManager) { m.loaders = r }
}

// WithCache 记录已导入文件的签名，未变化的文件在目录导入时直接跳过
func WithCache(c *cache.Manager) Option {
	return func(m *KnowledgeManager) { m.cache = c }
}

// WithObserver 设置指标观察者
func WithObserver(o Observer) Option {
	return func(m *KnowledgeManager) { m.observer = o }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(m *KnowledgeManager) { m.logger = logger }
}

// NewKnowledgeManager 创建知识管理器
func NewKnowledgeManager(agentID string, store adapter.KnowledgeStore, embedder Embedder, cfg Config, opts ...Option) *KnowledgeManager {
	m := &KnowledgeManager{
		agentID:  agentID,
		store:    store,
		embedder: embedder,
		cfg:      cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.loaders == nil {
		m.loaders = loader.NewRegistry()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.With(zap.String("component", "rag"), zap.String("agent_id", agentID))
	return m
}

// Config 返回生效的配置
func (m *KnowledgeManager) Config() Config { return m.cfg }

// =============================================================================
// 写入
// =============================================================================

// CreateKnowledge 写入一条文本知识：主记录保存原文，分块保存预处理后的文本。
// 共享知识已存在时视为成功。
func (m *KnowledgeManager) CreateKnowledge(ctx context.Context, item *types.RAGKnowledgeItem, shared bool) error {
	if item == nil || item.Content.Text == "" {
		return nil
	}
	if item.ID == "" {
		item.ID = types.StringToUUID(item.Content.Text)
	}
	meta := item.Meta()
	meta.IsShared = shared

	chunks, err := m.ingest(ctx, item.ID, item.Content.Text, meta)
	if err != nil {
		if shared && adapter.IsDuplicate(err) {
			m.logger.Info("shared knowledge already exists", zap.String("id", item.ID))
			return nil
		}
		m.logger.Error("failed to create knowledge", zap.String("id", item.ID), zap.Error(err))
		return err
	}
	m.observe("text", chunks)
	return nil
}

// File 是待导入的一个知识文件
type File struct {
	// Path 相对于 KnowledgeRoot 的路径，决定作用域 id
	Path    string
	Content string
	Type    string
	Shared  bool
}

// ProcessFile 导入一个文件。id 由作用域与路径决定，同一文件重复导入得到同一 id。
func (m *KnowledgeManager) ProcessFile(ctx context.Context, f File) error {
	id := types.ScopedKnowledgeID(f.Path, f.Shared)
	meta := types.KnowledgeMetadata{
		Source:   f.Path,
		Type:     f.Type,
		IsShared: f.Shared,
	}

	chunks, err := m.ingest(ctx, id, f.Content, meta)
	if err != nil {
		if f.Shared && adapter.IsDuplicate(err) {
			m.logger.Info("shared knowledge already exists", zap.String("path", f.Path))
			return nil
		}
		return fmt.Errorf("process knowledge file %s: %w", f.Path, err)
	}
	m.logger.Info("knowledge file processed",
		zap.String("path", f.Path),
		zap.String("id", id),
		zap.Int("chunks", chunks))
	m.observe("file", chunks)
	return nil
}

// ingest 写入主记录，然后按批嵌入并写入分块，返回分块数
func (m *KnowledgeManager) ingest(ctx context.Context, id, text string, meta types.KnowledgeMetadata) (int, error) {
	processed := Preprocess(text)
	mainVec, err := m.embedder.Embed(ctx, processed)
	if err != nil {
		return 0, fmt.Errorf("embed knowledge %s: %w", id, err)
	}

	mainMeta := meta
	mainMeta.IsMain = true
	mainMeta.IsChunk = false
	now := types.NowMillis()
	err = m.store.CreateKnowledge(ctx, &types.RAGKnowledgeItem{
		ID:        id,
		AgentID:   m.agentID,
		Content:   types.KnowledgeContent{Text: text, Metadata: &mainMeta},
		Embedding: mainVec,
		CreatedAt: now,
	})
	if err != nil {
		return 0, err
	}

	chunks := SplitChunks(processed, m.cfg.ChunkSize, m.cfg.Bleed)
	for start := 0; start < len(chunks); start += chunkBatchSize {
		end := min(start+chunkBatchSize, len(chunks))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				vec, err := m.embedder.Embed(gctx, chunks[i])
				if err != nil {
					return fmt.Errorf("embed chunk %d of %s: %w", i, id, err)
				}
				chunkMeta := meta
				chunkMeta.IsMain = false
				chunkMeta.IsChunk = true
				chunkMeta.OriginalID = id
				chunkMeta.ChunkIndex = i
				return m.store.CreateKnowledge(gctx, &types.RAGKnowledgeItem{
					ID:        types.ChunkID(id, i),
					AgentID:   m.agentID,
					Content:   types.KnowledgeContent{Text: chunks[i], Metadata: &chunkMeta},
					Embedding: vec,
					CreatedAt: now,
				})
			})
		}
		if err := g.Wait(); err != nil {
			// 不留下缺分块的主记录，下次导入可以重新写入
			if rmErr := m.store.RemoveKnowledge(context.WithoutCancel(ctx), id); rmErr != nil {
				m.logger.Warn("failed to roll back partial knowledge", zap.String("id", id), zap.Error(rmErr))
			}
			return start, err
		}
	}
	return len(chunks), nil
}

// =============================================================================
// 检索
// =============================================================================

// GetKnowledgeParams 检索参数
type GetKnowledgeParams struct {
	// ID 非空时先按 id 读取，未命中再走查询
	ID    string
	Query string
	// ConversationContext 拼在查询之前参与嵌入，不参与重排
	ConversationContext string
	// Limit 为 0 时使用配置的 MatchCount
	Limit int
}

// GetKnowledge 检索与查询相关的知识：向量检索 2×limit 个候选，再按查询词重排
func (m *KnowledgeManager) GetKnowledge(ctx context.Context, p GetKnowledgeParams) ([]*types.RAGKnowledgeItem, error) {
	if p.ID != "" {
		res, err := m.store.GetKnowledge(ctx, adapter.GetKnowledgeParams{ID: p.ID, AgentID: m.agentID})
		if err != nil {
			return nil, err
		}
		if len(res) > 0 {
			return res, nil
		}
	}

	query := Preprocess(p.Query)
	if query == "" {
		return nil, nil
	}
	searchText := query
	hasContext := false
	if p.ConversationContext != "" {
		if c := Preprocess(p.ConversationContext); c != "" {
			searchText = c + " " + query
			hasContext = true
		}
	}

	vec, err := m.embedder.Embed(ctx, searchText)
	if err != nil {
		return nil, fmt.Errorf("embed knowledge query: %w", err)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = m.cfg.MatchCount
	}
	candidates, err := m.store.SearchKnowledge(ctx, adapter.SearchKnowledgeParams{
		AgentID:        m.agentID,
		Embedding:      vec,
		MatchThreshold: m.cfg.MatchThreshold,
		MatchCount:     limit * 2,
		SearchText:     query,
	})
	if err != nil {
		return nil, err
	}

	results := Rerank(candidates, QueryTerms(query), hasContext, m.cfg.MatchThreshold, limit)
	m.logger.Debug("knowledge retrieved",
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)))
	return results, nil
}

// SearchKnowledge 直接执行向量检索，不重排。AgentID 为空时使用本 agent。
func (m *KnowledgeManager) SearchKnowledge(ctx context.Context, p adapter.SearchKnowledgeParams) ([]*types.RAGKnowledgeItem, error) {
	if p.AgentID == "" {
		p.AgentID = m.agentID
	}
	if p.MatchThreshold <= 0 {
		p.MatchThreshold = m.cfg.MatchThreshold
	}
	if p.MatchCount <= 0 {
		p.MatchCount = m.cfg.MatchCount
	}
	return m.store.SearchKnowledge(ctx, p)
}

// ListAllKnowledge 列出本 agent 可见的全部知识（含共享知识）
func (m *KnowledgeManager) ListAllKnowledge(ctx context.Context) ([]*types.RAGKnowledgeItem, error) {
	return m.store.GetKnowledge(ctx, adapter.GetKnowledgeParams{AgentID: m.agentID})
}

// RemoveKnowledge 删除知识及其分块
func (m *KnowledgeManager) RemoveKnowledge(ctx context.Context, id string) error {
	if err := m.store.RemoveKnowledge(ctx, id); err != nil {
		return err
	}
	m.forgetSignature(ctx, strings.TrimSuffix(id, "*"))
	return nil
}

// ClearKnowledge 删除本 agent 的全部知识；shared 为 true 时同时删除共享知识
func (m *KnowledgeManager) ClearKnowledge(ctx context.Context, shared bool) error {
	return m.store.ClearKnowledge(ctx, m.agentID, shared)
}

func (m *KnowledgeManager) observe(source string, chunks int) {
	if m.observer != nil {
		m.observer.ObserveKnowledgeIngested(source, chunks)
	}
}
