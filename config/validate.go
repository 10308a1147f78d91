package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FieldErrors 按字段分组的校验错误。
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, format string, args ...any) {
	fe[field] = append(fe[field], fmt.Sprintf(format, args...))
}

// Error 按字段名排序输出，每个字段一行。
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("config validation errors:")
	for _, f := range fields {
		fmt.Fprintf(&b, "\n  %s: %s", f, strings.Join(fe[f], "; "))
	}
	return b.String()
}

// ErrInvalidConfig is matched by errors.Is on every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

func (fe FieldErrors) Is(target error) bool { return target == ErrInvalidConfig }

var (
	validDrivers   = map[string]bool{"postgres": true, "mysql": true, "sqlite": true}
	validBackends  = map[string]bool{"database": true, "redis": true, "memory": true}
	validResolvers = map[string]bool{"fuzzy": true, "exact": true}
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats   = map[string]bool{"json": true, "console": true}
)

// Validate 校验配置，所有错误汇总后一次返回。
func (c *Config) Validate() error {
	fe := FieldErrors{}

	if c.Runtime.ConversationLength <= 0 {
		fe.add("runtime.conversation_length", "must be positive, got %d", c.Runtime.ConversationLength)
	}
	if !validResolvers[c.Runtime.ActionResolver] {
		fe.add("runtime.action_resolver", "unknown resolver %q", c.Runtime.ActionResolver)
	}
	if c.Runtime.KnowledgeWatchInterval < 0 {
		fe.add("runtime.knowledge_watch_interval", "must not be negative")
	}
	rag := c.Runtime.RAG
	if rag.MatchThreshold < 0 || rag.MatchThreshold > 1 {
		fe.add("runtime.rag.match_threshold", "must be within [0, 1], got %v", rag.MatchThreshold)
	}
	if rag.MatchCount <= 0 {
		fe.add("runtime.rag.match_count", "must be positive")
	}
	if rag.ChunkSize <= 0 {
		fe.add("runtime.rag.chunk_size", "must be positive")
	}
	if rag.Bleed < 0 {
		fe.add("runtime.rag.bleed", "must not be negative")
	}

	if !validDrivers[c.Database.Driver] {
		fe.add("database.driver", "unknown driver %q", c.Database.Driver)
	}
	if c.Database.Driver != "sqlite" && c.Database.DSN == "" && c.Database.Host == "" {
		fe.add("database.host", "required for %s", c.Database.Driver)
	}
	if c.Database.Name == "" && c.Database.DSN == "" {
		fe.add("database.name", "required")
	}

	if !validBackends[c.Cache.Backend] {
		fe.add("cache.backend", "unknown backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Redis.Addr == "" {
		fe.add("redis.addr", "required when cache.backend is redis")
	}

	if c.Retry.MaxAttempts < 0 {
		fe.add("retry.max_attempts", "must not be negative (0 means unbounded)")
	}
	if c.Retry.InitialDelay <= 0 {
		fe.add("retry.initial_delay", "must be positive")
	}

	if c.CircuitBreaker.Threshold <= 0 {
		fe.add("circuit_breaker.threshold", "must be positive")
	}

	if c.Embedding.Dimensions < 0 {
		fe.add("embedding.dimensions", "must not be negative")
	}

	if !validLevels[c.Log.Level] {
		fe.add("log.level", "unknown level %q", c.Log.Level)
	}
	if !validFormats[c.Log.Format] {
		fe.add("log.format", "unknown format %q", c.Log.Format)
	}

	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		fe.add("telemetry.otlp_endpoint", "required when telemetry is enabled")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		fe.add("telemetry.sample_rate", "must be within [0, 1]")
	}

	if len(fe) > 0 {
		return fe
	}
	return nil
}
