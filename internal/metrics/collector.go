// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/circuitbreaker"
	"github.com/BaSui01/agentruntime/types"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 运行时指标收集器，实现 embedding.Observer、generation.Observer 与 cache.Observer
type Collector struct {
	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 嵌入指标
	embeddingRequestsTotal *prometheus.CounterVec
	embeddingDuration      *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 记忆与知识
	memoryOperations  *prometheus.CounterVec
	knowledgeIngested *prometheus.CounterVec

	// Agent 指标
	actionsTotal *prometheus.CounterVec

	// 熔断器
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到 prometheus 默认 Registry。
func NewCollector(namespace string, reg *prometheus.Registry, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	c := &Collector{
		gatherer: gatherer,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "operation", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.embeddingRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "cache", "status"}, // cache: hit, miss
	)

	c.embeddingDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"provider"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"backend"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"backend"},
	)

	c.memoryOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Total number of memory manager operations",
		},
		[]string{"table", "operation", "status"},
	)

	c.knowledgeIngested = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "knowledge_chunks_ingested_total",
			Help:      "Total number of knowledge chunks stored",
		},
		[]string{"source"}, // source: text, file, directory
	)

	c.actionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of action handler invocations",
		},
		[]string{"action", "status"},
	)

	c.breakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	c.breakerTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"dialect"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"dialect"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// Handler 返回 /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// =============================================================================
// 🤖 模型调用
// =============================================================================

// ObserveGeneration 记录一次文本/结构化生成调用
func (c *Collector) ObserveGeneration(provider, model, operation string, d time.Duration, usage llm.ChatUsage, err error) {
	c.llmRequestsTotal.WithLabelValues(provider, model, operation, status(err)).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	if usage.PromptTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(usage.CompletionTokens))
	}
}

// ObserveEmbedding 记录一次嵌入调用；缓存命中时 d 只包含查缓存的耗时
func (c *Collector) ObserveEmbedding(provider string, cacheHit bool, d time.Duration, err error) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	c.embeddingRequestsTotal.WithLabelValues(provider, cache, status(err)).Inc()
	if !cacheHit {
		c.embeddingDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// =============================================================================
// 💾 缓存
// =============================================================================

// ObserveCache 记录缓存命中或未命中
func (c *Collector) ObserveCache(backend string, hit bool) {
	if hit {
		c.cacheHits.WithLabelValues(backend).Inc()
		return
	}
	c.cacheMisses.WithLabelValues(backend).Inc()
}

// =============================================================================
// 🧠 记忆、知识与动作
// =============================================================================

// ObserveMemoryOperation 记录 MemoryManager 的一次操作
func (c *Collector) ObserveMemoryOperation(table, operation string, err error) {
	c.memoryOperations.WithLabelValues(table, operation, status(err)).Inc()
}

// ObserveKnowledgeIngested 记录写入的知识分块数
func (c *Collector) ObserveKnowledgeIngested(source string, chunks int) {
	if chunks <= 0 {
		return
	}
	c.knowledgeIngested.WithLabelValues(source).Add(float64(chunks))
}

// ObserveAction 记录一次动作处理
func (c *Collector) ObserveAction(action string, err error) {
	c.actionsTotal.WithLabelValues(action, status(err)).Inc()
}

// BreakerObserver 返回可挂到 adapter.WithStateObserver 的回调
func (c *Collector) BreakerObserver(name string) func(from, to circuitbreaker.State) {
	c.breakerState.WithLabelValues(name).Set(float64(circuitbreaker.StateClosed))
	return func(from, to circuitbreaker.State) {
		c.breakerState.WithLabelValues(name).Set(float64(to))
		c.breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	}
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(dialect string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(dialect).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(dialect).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// status 把错误归为 ok / canceled / 错误码
func status(err error) string {
	if err == nil {
		return "ok"
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		return string(typed.Code)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}
