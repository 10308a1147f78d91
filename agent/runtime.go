package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/agent/knowledge"
	"github.com/BaSui01/agentruntime/agent/memory"
	"github.com/BaSui01/agentruntime/config"
	"github.com/BaSui01/agentruntime/internal/cache"
	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/embedding"
	"github.com/BaSui01/agentruntime/llm/generation"
	"github.com/BaSui01/agentruntime/llm/image"
	"github.com/BaSui01/agentruntime/rag"
	"github.com/BaSui01/agentruntime/rag/loader"
	"github.com/BaSui01/agentruntime/types"
)

// DefaultConversationLength 组装上下文时默认读取的消息条数
const DefaultConversationLength = 32

// Observer 接收运行时的指标，*metrics.Collector 满足该接口
type Observer interface {
	memory.Observer
	rag.Observer
	ObserveAction(action string, err error)
}

// Options 配置 AgentRuntime
type Options struct {
	// AgentID 为空时依次取 Config.AgentID、Character.ID、由角色名派生的 UUID
	AgentID   string
	Character *types.Character
	Database  adapter.DatabaseAdapter
	Embedder  *embedding.Embedder
	Generator *generation.Generator
	// Cache 为空时使用数据库缓存表
	Cache  *cache.Manager
	Config config.RuntimeConfig

	ImageProvider  image.Provider
	VisionProvider llm.ModelProvider
	VisionModel    string

	Loaders *loader.Registry

	Plugins    []Plugin
	Actions    []Action
	Evaluators []Evaluator
	Providers  []Provider
	Services   []Service
	// Resolver 为空时按 Config.ActionResolver 创建
	Resolver ActionResolver
	Observer Observer
	// Rand 为空时使用随机种子；测试传入固定种子得到可复现的提示词
	Rand   *rand.Rand
	Logger *zap.Logger
}

// AgentRuntime 持有一个 agent 的全部状态：角色、存储、记忆、知识与插件注册表.
type AgentRuntime struct {
	agentID   string
	character *types.Character
	cfg       config.RuntimeConfig

	db        adapter.DatabaseAdapter
	embedder  *embedding.Embedder
	generator *generation.Generator
	cache     *cache.Manager
	observer  Observer
	resolver  ActionResolver

	imageProvider  image.Provider
	visionProvider llm.ModelProvider
	visionModel    string

	conversationLength       int
	modelProvider            string
	imageModelProvider       string
	imageVisionModelProvider string

	messages     *memory.Manager
	descriptions *memory.Manager
	lore         *memory.Manager
	documents    *memory.Manager
	fragments    *memory.Manager
	ragKnowledge *rag.KnowledgeManager
	knowledge    *knowledge.Knowledge

	mu         sync.RWMutex
	tables     map[string]*memory.Manager
	actions    []Action
	evaluators []Evaluator
	providers  []Provider
	services   map[string]Service
	plugins    []string
	adapters   []adapter.DatabaseAdapter
	watchers   []*rag.DirectoryWatcher

	rngMu sync.Mutex
	rng   *rand.Rand

	logger *zap.Logger
}

// NewAgentRuntime 创建运行时并注册内置记忆表与插件
func NewAgentRuntime(opts Options) (*AgentRuntime, error) {
	if opts.Character == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "character is required")
	}
	if err := opts.Character.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid character").WithCause(err)
	}
	if opts.Database == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "database adapter is required")
	}
	if opts.Embedder == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "embedder is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	agentID := opts.AgentID
	for _, candidate := range []string{opts.Config.AgentID, opts.Character.ID} {
		if agentID == "" {
			agentID = candidate
		}
	}
	if agentID == "" {
		agentID = types.StringToUUID(opts.Character.Name)
	}

	resolver := opts.Resolver
	if resolver == nil {
		var err error
		if resolver, err = NewActionResolver(opts.Config.ActionResolver); err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "invalid action resolver").WithCause(err)
		}
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	r := &AgentRuntime{
		agentID:            agentID,
		character:          opts.Character,
		cfg:                opts.Config,
		db:                 opts.Database,
		embedder:           opts.Embedder,
		generator:          opts.Generator,
		cache:              opts.Cache,
		observer:           opts.Observer,
		resolver:           resolver,
		imageProvider:      opts.ImageProvider,
		visionProvider:     opts.VisionProvider,
		visionModel:        opts.VisionModel,
		conversationLength: opts.Config.ConversationLength,
		tables:             make(map[string]*memory.Manager),
		services:           make(map[string]Service),
		rng:                rng,
		logger: logger.With(
			zap.String("component", "agent_runtime"),
			zap.String("agent_id", agentID),
			zap.String("character", opts.Character.Name)),
	}
	if r.conversationLength <= 0 {
		r.conversationLength = DefaultConversationLength
	}
	r.modelProvider = opts.Character.ModelProvider
	r.imageModelProvider = firstNonEmpty(opts.Character.ImageModelProvider, r.modelProvider)
	r.imageVisionModelProvider = firstNonEmpty(opts.Character.ImageVisionModelProvider, r.modelProvider)

	if r.cache == nil {
		r.cache = cache.NewManager(cache.NewDatabaseBackend(opts.Database, agentID), cache.WithLogger(logger))
	}

	r.messages = r.newMemoryManager(types.TableMessages)
	r.descriptions = r.newMemoryManager(types.TableDescriptions)
	r.lore = r.newMemoryManager(types.TableLore)
	r.documents = r.newMemoryManager(types.TableDocuments)
	r.fragments = r.newMemoryManager(types.TableFragments)
	for _, m := range []*memory.Manager{r.messages, r.descriptions, r.lore, r.documents, r.fragments} {
		r.RegisterMemoryManager(m)
	}
	// 新消息的向量优先从已存储的相似消息中复用
	r.embedder.SetCache(r.messages)

	ragOpts := []rag.Option{rag.WithCache(r.cache), rag.WithLogger(logger)}
	if opts.Loaders != nil {
		ragOpts = append(ragOpts, rag.WithLoaders(opts.Loaders))
	}
	if opts.Observer != nil {
		ragOpts = append(ragOpts, rag.WithObserver(opts.Observer))
	}
	r.ragKnowledge = rag.NewKnowledgeManager(agentID, opts.Database, opts.Embedder, rag.Config{
		KnowledgeRoot:  opts.Config.KnowledgeRoot,
		MatchThreshold: opts.Config.RAG.MatchThreshold,
		MatchCount:     opts.Config.RAG.MatchCount,
		ChunkSize:      opts.Config.RAG.ChunkSize,
		Bleed:          opts.Config.RAG.Bleed,
	}, ragOpts...)
	r.knowledge = knowledge.New(r.documents, r.fragments, opts.Embedder, logger)

	for _, p := range opts.Plugins {
		r.RegisterPlugin(p)
	}
	for _, a := range opts.Actions {
		r.RegisterAction(a)
	}
	for _, e := range opts.Evaluators {
		r.RegisterEvaluator(e)
	}
	for _, p := range opts.Providers {
		r.RegisterProvider(p)
	}
	for _, s := range opts.Services {
		r.RegisterService(s)
	}
	return r, nil
}

func (r *AgentRuntime) newMemoryManager(table string) *memory.Manager {
	opts := []memory.Option{memory.WithEmbedder(r.embedder), memory.WithLogger(r.logger)}
	if r.observer != nil {
		opts = append(opts, memory.WithObserver(r.observer))
	}
	return memory.NewManager(table, r.agentID, r.db, opts...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// 注册
// =============================================================================

// RegisterMemoryManager 注册一张记忆表，同名表已存在时跳过
func (r *AgentRuntime) RegisterMemoryManager(m *memory.Manager) {
	if m == nil || m.TableName() == "" {
		r.logger.Warn("memory manager without table name ignored")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[m.TableName()]; exists {
		r.logger.Warn("memory manager already registered", zap.String("table", m.TableName()))
		return
	}
	r.tables[m.TableName()] = m
}

// NewMemoryManager 为插件创建并注册一张自定义记忆表
func (r *AgentRuntime) NewMemoryManager(table string) *memory.Manager {
	if m, ok := r.MemoryManager(table); ok {
		return m
	}
	m := r.newMemoryManager(table)
	r.RegisterMemoryManager(m)
	return m
}

// RegisterAction 注册动作
func (r *AgentRuntime) RegisterAction(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
	r.logger.Debug("action registered", zap.String("action", a.Name))
}

// RegisterEvaluator 注册评估器
func (r *AgentRuntime) RegisterEvaluator(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators = append(r.evaluators, e)
}

// RegisterProvider 注册上下文提供者
func (r *AgentRuntime) RegisterProvider(p Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// RegisterService 注册服务，同类型服务已存在时跳过
func (r *AgentRuntime) RegisterService(s Service) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[s.ServiceType()]; exists {
		r.logger.Warn("service already registered", zap.String("service", s.ServiceType()))
		return
	}
	r.services[s.ServiceType()] = s
}

// RegisterAdapter 登记插件提供的存储
func (r *AgentRuntime) RegisterAdapter(a adapter.DatabaseAdapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, a)
}

// RegisterPlugin 注册插件携带的全部扩展
func (r *AgentRuntime) RegisterPlugin(p Plugin) {
	for _, a := range p.Actions {
		r.RegisterAction(a)
	}
	for _, e := range p.Evaluators {
		r.RegisterEvaluator(e)
	}
	for _, prov := range p.Providers {
		r.RegisterProvider(prov)
	}
	for _, s := range p.Services {
		r.RegisterService(s)
	}
	for _, a := range p.Adapters {
		r.RegisterAdapter(a)
	}
	r.mu.Lock()
	r.plugins = append(r.plugins, p.Name)
	r.mu.Unlock()
	r.logger.Info("plugin registered",
		zap.String("plugin", p.Name),
		zap.Int("actions", len(p.Actions)),
		zap.Int("evaluators", len(p.Evaluators)),
		zap.Int("providers", len(p.Providers)),
		zap.Int("services", len(p.Services)))
}

// =============================================================================
// 访问器
// =============================================================================

func (r *AgentRuntime) AgentID() string                         { return r.agentID }
func (r *AgentRuntime) Character() *types.Character             { return r.character }
func (r *AgentRuntime) Database() adapter.DatabaseAdapter       { return r.db }
func (r *AgentRuntime) Embedder() *embedding.Embedder           { return r.embedder }
func (r *AgentRuntime) Generator() *generation.Generator        { return r.generator }
func (r *AgentRuntime) Cache() *cache.Manager                   { return r.cache }
func (r *AgentRuntime) ConversationLength() int                 { return r.conversationLength }
func (r *AgentRuntime) MessageManager() *memory.Manager         { return r.messages }
func (r *AgentRuntime) DescriptionManager() *memory.Manager     { return r.descriptions }
func (r *AgentRuntime) LoreManager() *memory.Manager            { return r.lore }
func (r *AgentRuntime) DocumentsManager() *memory.Manager       { return r.documents }
func (r *AgentRuntime) FragmentsManager() *memory.Manager       { return r.fragments }
func (r *AgentRuntime) KnowledgeManager() *rag.KnowledgeManager { return r.ragKnowledge }
func (r *AgentRuntime) Knowledge() *knowledge.Knowledge         { return r.knowledge }
func (r *AgentRuntime) ModelProvider() string                   { return r.modelProvider }
func (r *AgentRuntime) ImageModelProvider() string              { return r.imageModelProvider }
func (r *AgentRuntime) ImageVisionModelProvider() string        { return r.imageVisionModelProvider }

// MemoryManager 按表名查找记忆表
func (r *AgentRuntime) MemoryManager(table string) (*memory.Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.tables[table]
	return m, ok
}

// Service 按类型查找服务
func (r *AgentRuntime) Service(serviceType string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[serviceType]
	return s, ok
}

// Actions 返回已注册动作的副本
func (r *AgentRuntime) Actions() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Action(nil), r.actions...)
}

// Evaluators 返回已注册评估器的副本
func (r *AgentRuntime) Evaluators() []Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Evaluator(nil), r.evaluators...)
}

// Providers 返回已注册提供者的副本
func (r *AgentRuntime) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Provider(nil), r.providers...)
}

// Plugins 返回已注册插件的名称
func (r *AgentRuntime) Plugins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.plugins...)
}

// Adapters 返回插件登记的存储
func (r *AgentRuntime) Adapters() []adapter.DatabaseAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]adapter.DatabaseAdapter(nil), r.adapters...)
}

// Setting 读取角色的密钥配置
func (r *AgentRuntime) Setting(key string) string { return r.character.Secret(key) }

// withRand 在锁内使用随机数生成器
func (r *AgentRuntime) withRand(fn func(rng *rand.Rand)) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	fn(r.rng)
}

// =============================================================================
// 生命周期
// =============================================================================

// Initialize 初始化服务并导入角色知识。单条知识导入失败只记录日志。
func (r *AgentRuntime) Initialize(ctx context.Context) error {
	r.mu.RLock()
	services := make([]Service, 0, len(r.services))
	for _, s := range r.services {
		services = append(services, s)
	}
	r.mu.RUnlock()

	for _, s := range services {
		if err := s.Initialize(ctx, r); err != nil {
			return fmt.Errorf("initialize service %s: %w", s.ServiceType(), err)
		}
		r.logger.Debug("service initialized", zap.String("service", s.ServiceType()))
	}

	if len(r.character.Knowledge) == 0 {
		return nil
	}
	if r.character.Settings.RAGKnowledge {
		return r.initRAGKnowledge(ctx)
	}
	return r.initFlatKnowledge(ctx)
}

func (r *AgentRuntime) initRAGKnowledge(ctx context.Context) error {
	var watchDirs []types.KnowledgeSource
	for _, src := range r.character.Knowledge {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch {
		case src.Directory != "":
			var stats rag.DirectoryStats
			stats, err = r.ragKnowledge.ProcessDirectory(ctx, src.Directory, src.Shared)
			if err == nil {
				r.logger.Info("knowledge directory processed",
					zap.String("directory", src.Directory),
					zap.Int("processed", stats.Processed),
					zap.Int("skipped", stats.Skipped),
					zap.Int("failed", stats.Failed))
				watchDirs = append(watchDirs, src)
			}
		case src.Path != "":
			err = r.ragKnowledge.IngestPath(ctx, src.Path, src.Shared)
		default:
			err = r.ingestRAGText(ctx, src)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.logger.Error("failed to ingest character knowledge",
				zap.String("path", firstNonEmpty(src.Directory, src.Path)),
				zap.Error(err))
		}
	}

	removed, err := r.ragKnowledge.CleanupDeletedKnowledgeFiles(ctx)
	if err != nil {
		r.logger.Warn("knowledge cleanup failed", zap.Error(err))
	} else if removed > 0 {
		r.logger.Info("removed knowledge of deleted files", zap.Int("count", removed))
	}

	if r.cfg.KnowledgeWatchInterval > 0 {
		r.watchKnowledge(ctx, watchDirs, r.cfg.KnowledgeWatchInterval)
	}
	return nil
}

func (r *AgentRuntime) ingestRAGText(ctx context.Context, src types.KnowledgeSource) error {
	id := types.StringToUUID(src.Text)
	existing, err := r.ragKnowledge.GetKnowledge(ctx, rag.GetKnowledgeParams{ID: id})
	if err != nil {
		return err
	}
	if len(existing) > 0 && existing[0].Content.Text == src.Text {
		return nil
	}
	return r.ragKnowledge.CreateKnowledge(ctx, &types.RAGKnowledgeItem{
		ID:      id,
		AgentID: r.agentID,
		Content: types.KnowledgeContent{
			Text:     src.Text,
			// 没有 source 的知识不参与已删除文件的清理
			Metadata: &types.KnowledgeMetadata{Type: "direct"},
		},
	}, src.Shared)
}

func (r *AgentRuntime) initFlatKnowledge(ctx context.Context) error {
	for _, src := range r.character.Knowledge {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !src.IsText() {
			r.logger.Warn("file knowledge requires ragKnowledge, skipped",
				zap.String("path", firstNonEmpty(src.Directory, src.Path)))
			continue
		}
		id := types.StringToUUID(src.Text)
		existing, err := r.documents.GetMemoryByID(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		item := types.KnowledgeItem{ID: id, Content: types.Content{Text: src.Text}}
		if err := r.knowledge.Set(ctx, item, r.cfg.RAG.ChunkSize, r.cfg.RAG.Bleed); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.logger.Error("failed to store character knowledge", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// watchKnowledge 监听知识目录，运行时 Stop 前一直有效
func (r *AgentRuntime) watchKnowledge(ctx context.Context, dirs []types.KnowledgeSource, interval time.Duration) {
	watchCtx := context.WithoutCancel(ctx)
	for _, src := range dirs {
		w, err := r.ragKnowledge.Watch(watchCtx, src.Directory, src.Shared, interval)
		if err != nil {
			r.logger.Warn("failed to watch knowledge directory", zap.String("directory", src.Directory), zap.Error(err))
			continue
		}
		r.mu.Lock()
		r.watchers = append(r.watchers, w)
		r.mu.Unlock()
	}
}

// Stop 停止知识目录监听。存储与缓存由创建者关闭。
func (r *AgentRuntime) Stop() error {
	r.mu.Lock()
	watchers := r.watchers
	r.watchers = nil
	r.mu.Unlock()

	var errs []error
	for _, w := range watchers {
		if err := w.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 图像
// =============================================================================

// GenerateImage 用配置的图像 Provider 一次性生成图像
func (r *AgentRuntime) GenerateImage(ctx context.Context, req *image.Request) image.Result[[]string] {
	if r.imageProvider == nil {
		return image.Result[[]string]{Error: fmt.Sprintf("image provider %q not configured", r.imageModelProvider)}
	}
	return image.GenerateImage(ctx, r.imageProvider, req, r.logger)
}

// DescribeImage 用视觉模型为图像生成标题与描述
func (r *AgentRuntime) DescribeImage(ctx context.Context, imageURL string) image.Result[image.Caption] {
	if r.visionProvider == nil {
		return image.Result[image.Caption]{Error: fmt.Sprintf("vision provider %q not configured", r.imageVisionModelProvider)}
	}
	return image.GenerateCaption(ctx, r.visionProvider, r.visionModel, imageURL, r.logger)
}
