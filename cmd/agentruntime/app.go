package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/adapter/memstore"
	"github.com/BaSui01/agentruntime/adapter/sqlstore"
	"github.com/BaSui01/agentruntime/agent"
	"github.com/BaSui01/agentruntime/config"
	"github.com/BaSui01/agentruntime/internal/cache"
	"github.com/BaSui01/agentruntime/internal/database"
	"github.com/BaSui01/agentruntime/internal/metrics"
	"github.com/BaSui01/agentruntime/internal/server"
	"github.com/BaSui01/agentruntime/internal/telemetry"
	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/embedding"
	"github.com/BaSui01/agentruntime/llm/factory"
	"github.com/BaSui01/agentruntime/llm/generation"
	"github.com/BaSui01/agentruntime/llm/image"
	"github.com/BaSui01/agentruntime/llm/observability"
	"github.com/BaSui01/agentruntime/llm/providers"
	"github.com/BaSui01/agentruntime/llm/retry"
	"github.com/BaSui01/agentruntime/llm/tokenizer"
	"github.com/BaSui01/agentruntime/types"
)

// shutdownTimeout 关闭外部资源的最长等待时间
const shutdownTimeout = 10 * time.Second

// storeOptions 选择存储后端
type storeOptions struct {
	// inMemory 为 true 时使用进程内存储，忽略 database 配置
	inMemory bool
	// vectorDir 非空时进程内存储把向量索引持久化到该目录
	vectorDir string
}

// app 持有一次命令执行期间的全部资源，close 按相反顺序释放
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	character *types.Character

	store     *adapter.Guarded
	pool      *database.PoolManager
	cache     *cache.Manager
	telemetry *telemetry.Providers
	metrics   *metrics.Collector
	server    *server.Manager
	runtime   *agent.AgentRuntime
}

// newApp 按配置组装存储、模型、嵌入与运行时。characterPath 为空时使用 runtime.character_path。
func newApp(ctx context.Context, cfg *config.Config, characterPath string, so storeOptions, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if characterPath == "" {
		characterPath = cfg.Runtime.CharacterPath
	}
	if characterPath == "" {
		return nil, errors.New("no character file: pass --character or set runtime.character_path")
	}
	a.character, err = config.LoadCharacter(characterPath)
	if err != nil {
		return nil, err
	}
	agentID := cfg.AgentID(a.character)
	if agentID == "" {
		agentID = types.StringToUUID(a.character.Name)
	}

	a.telemetry, err = telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry unavailable, continuing without it", zap.Error(err))
		a.telemetry = nil
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(cfg.Metrics.Namespace, prometheus.NewRegistry(), logger)
		if cfg.Metrics.ListenAddr != "" {
			a.server = server.NewMetricsServer(cfg.Metrics.ListenAddr, a.metrics.Handler(), logger)
			if err := a.server.Start(); err != nil {
				return nil, err
			}
		}
	}

	if err := a.openStore(ctx, so); err != nil {
		return nil, err
	}

	var cacheOpts []cache.Option
	if a.metrics != nil {
		cacheOpts = append(cacheOpts, cache.WithObserver(a.metrics))
	}
	a.cache, err = cache.NewFromConfig(ctx, cfg.Cache, cfg.Redis, a.store, agentID, logger, cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	catalog := providers.DefaultCatalog()
	modelProvider := a.character.ModelProvider
	if modelProvider == "" {
		modelProvider = cfg.Models.DefaultProvider
		a.character.ModelProvider = modelProvider
	}
	registry, err := factory.NewRegistry(ctx, catalog, factory.Options{
		Default:   modelProvider,
		Providers: cfg.Models.Providers,
		Gateway:   cfg.Models.Gateway,
		Timeout:   cfg.Models.Timeout,
		Secrets:   a.secrets(),
	}, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := a.newEmbedder(ctx, catalog)
	if err != nil {
		return nil, err
	}
	generator, err := a.newGenerator(registry, catalog, agentID)
	if err != nil {
		return nil, err
	}

	opts := agent.Options{
		AgentID:   agentID,
		Character: a.character,
		Database:  a.store,
		Embedder:  embedder,
		Generator: generator,
		Cache:     a.cache,
		Config:    cfg.Runtime,
		Logger:    logger,
	}
	if a.metrics != nil {
		opts.Observer = a.metrics
	}
	a.wireImages(ctx, &opts, registry, catalog)

	a.runtime, err = agent.NewAgentRuntime(opts)
	if err != nil {
		return nil, err
	}
	if err := a.runtime.Initialize(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// openStore 打开 SQL 或进程内存储，并用熔断器包装
func (a *app) openStore(ctx context.Context, so storeOptions) error {
	var inner adapter.DatabaseAdapter
	if so.inMemory {
		var opts []memstore.Option
		opts = append(opts, memstore.WithLogger(a.logger))
		if so.vectorDir != "" {
			opts = append(opts, memstore.WithPersistence(so.vectorDir, true))
		}
		inner = memstore.New(opts...)
	} else {
		dbCfg := a.cfg.Database
		dialect, err := database.ParseDialect(dbCfg.Driver)
		if err != nil {
			return err
		}
		poolCfg := database.DefaultPoolConfig()
		poolCfg.MaxOpenConns = dbCfg.MaxOpenConns
		poolCfg.MaxIdleConns = dbCfg.MaxIdleConns
		poolCfg.ConnMaxLifetime = dbCfg.ConnMaxLifetime
		a.pool, err = database.Open(ctx, dialect, dbCfg.ConnString(), poolCfg, a.logger)
		if err != nil {
			return err
		}
		if a.metrics != nil {
			stats := a.pool.Stats()
			a.metrics.RecordDBConnections(string(dialect), stats.OpenConnections, stats.Idle)
		}
		inner = sqlstore.New(a.pool,
			sqlstore.WithLogger(a.logger),
			sqlstore.WithAutoMigrate(dbCfg.AutoMigrate || dialect == database.DialectSQLite),
			sqlstore.WithVectorDimensions(dbCfg.VectorDimensions))
	}

	breakerCfg := a.cfg.CircuitBreaker
	guardOpts := []adapter.GuardedOption{
		adapter.WithBreakerConfig(&breakerCfg),
		adapter.WithGuardLogger(a.logger),
	}
	if a.metrics != nil {
		guardOpts = append(guardOpts, adapter.WithStateObserver(a.metrics.BreakerObserver("database")))
	}
	a.store = adapter.NewGuarded(inner, guardOpts...)
	if err := a.store.Init(ctx); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	return nil
}

// secrets 先查角色 secrets，再查环境变量
func (a *app) secrets() providers.SecretLookup {
	return providers.ChainSecrets(a.character.Secret, providers.EnvSecrets)
}

func (a *app) newEmbedder(ctx context.Context, catalog *providers.Catalog) (*embedding.Embedder, error) {
	p, err := embedding.SelectProvider(ctx, embedding.SelectOptions{
		Config:        a.cfg.Embedding,
		Catalog:       catalog,
		ModelProvider: a.character.ModelProvider,
		ModelEndpoint: a.character.ModelEndpointOverride,
		Secrets:       a.secrets(),
		Logger:        a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	opts := []embedding.Option{embedding.WithLogger(a.logger)}
	if a.metrics != nil {
		opts = append(opts, embedding.WithObserver(a.metrics))
	}
	return embedding.NewEmbedder(p, opts...), nil
}

func (a *app) newGenerator(registry *llm.ProviderRegistry, catalog *providers.Catalog, agentID string) (*generation.Generator, error) {
	opts := generation.Options{
		Registry:           registry,
		Catalog:            catalog,
		Tokenizers:         tokenizer.DefaultRegistry(),
		MaxAttempts:        generation.Attempts(a.cfg.Retry.MaxAttempts),
		StopOnNonRetryable: a.cfg.Retry.StopOnNonRetryable,
		RetryPolicy: func(n int) *retry.RetryPolicy {
			p := retry.GenerationRetryPolicy(n)
			if a.cfg.Retry.InitialDelay > 0 {
				p.InitialDelay = a.cfg.Retry.InitialDelay
			}
			if a.cfg.Retry.MaxDelay > 0 {
				p.MaxDelay = a.cfg.Retry.MaxDelay
			}
			return p
		},
		AgentID: agentID,
		Logger:  a.logger,
	}
	if a.metrics != nil {
		opts.Observer = a.metrics
	}
	if a.telemetry != nil {
		inst, err := observability.NewInstrumentation(a.telemetry.MeterProvider(), a.telemetry.TracerProvider(),
			observability.NewCostCalculator())
		if err != nil {
			return nil, fmt.Errorf("instrumentation: %w", err)
		}
		opts.Instrumentation = inst
	}
	return generation.New(opts), nil
}

// wireImages 为角色配置图像生成与看图能力，失败只降级不报错
func (a *app) wireImages(ctx context.Context, opts *agent.Options, registry *llm.ProviderRegistry, catalog *providers.Catalog) {
	imageID := a.character.ImageModelProvider
	if imageID == "" {
		imageID = a.character.ModelProvider
	}
	if imageID != "" {
		p, err := image.NewProvider(ctx, catalog, imageID, a.secrets()(providers.APIKeyName(imageID)), "")
		if err != nil {
			a.logger.Info("image generation disabled", zap.String("provider", imageID), zap.Error(err))
		} else {
			opts.ImageProvider = p
		}
	}

	visionID := a.character.ImageVisionModelProvider
	if visionID == "" {
		visionID = a.character.ModelProvider
	}
	vision, ok := registry.Get(visionID)
	if !ok {
		return
	}
	settings, err := catalog.Settings(visionID, llm.ModelClassSmall)
	if err != nil {
		return
	}
	opts.VisionProvider = vision
	opts.VisionModel = settings.Name
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if a.runtime != nil {
		errs = append(errs, a.runtime.Stop())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	} else if a.pool != nil {
		errs = append(errs, a.pool.Close())
	}
	if a.server != nil {
		errs = append(errs, a.server.Shutdown(ctx))
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown finished with errors", zap.Error(err))
	}
}
