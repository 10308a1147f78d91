// =============================================================================
// 📦 agentruntime 默认配置
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/agentruntime/llm/circuitbreaker"
	"github.com/BaSui01/agentruntime/llm/embedding"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Runtime:        DefaultRuntimeConfig(),
		Models:         DefaultModelsConfig(),
		Embedding:      embedding.DefaultConfig(),
		Database:       DefaultDatabaseConfig(),
		Redis:          DefaultRedisConfig(),
		Cache:          DefaultCacheConfig(),
		CircuitBreaker: *circuitbreaker.DefaultConfig(),
		Retry:          DefaultRetryConfig(),
		Log:            DefaultLogConfig(),
		Telemetry:      DefaultTelemetryConfig(),
		Metrics:        DefaultMetricsConfig(),
	}
}

// DefaultRuntimeConfig 返回默认运行时配置
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		ConversationLength: 32,
		KnowledgeRoot:      "knowledge",
		ActionResolver:     "fuzzy",
		RAG: RAGConfig{
			MatchThreshold: 0.85,
			MatchCount:     8,
			ChunkSize:      512,
			Bleed:          20,
		},
	}
}

// DefaultModelsConfig 返回默认模型配置
func DefaultModelsConfig() ModelsConfig {
	return ModelsConfig{
		DefaultProvider: "openai",
		Timeout:         2 * time.Minute,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置（单机 sqlite）
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:           "sqlite",
		Host:             "localhost",
		Port:             5432,
		User:             "agentruntime",
		Name:             "agentruntime.db",
		SSLMode:          "disable",
		MaxOpenConns:     25,
		MaxIdleConns:     5,
		ConnMaxLifetime:  5 * time.Minute,
		AutoMigrate:      true,
		VectorDimensions: embedding.LocalDimensions,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:    "database",
		KeyPrefix:  "agentruntime:",
		MaxEntries: 10000,
	}
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  0,
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "agentruntime",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "agentruntime",
	}
}
