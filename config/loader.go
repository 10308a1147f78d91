// =============================================================================
// 📦 agentruntime 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentruntime.yaml").
//	    WithEnvPrefix("AGENTRUNTIME").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentruntime/llm/circuitbreaker"
	"github.com/BaSui01/agentruntime/llm/embedding"
	"github.com/BaSui01/agentruntime/llm/providers"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "AGENTRUNTIME"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 agentruntime 的完整配置结构
type Config struct {
	// Runtime 运行时行为
	Runtime RuntimeConfig `yaml:"runtime" env:"RUNTIME"`

	// Models 模型 Provider 配置
	Models ModelsConfig `yaml:"models" env:"MODELS"`

	// Embedding 嵌入 Provider 选择
	Embedding embedding.Config `yaml:"embedding" env:"EMBEDDING"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Cache 缓存后端选择
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// CircuitBreaker 数据库熔断配置
	CircuitBreaker circuitbreaker.Config `yaml:"circuit_breaker" env:"CIRCUIT_BREAKER"`

	// Retry 结构化生成的重试配置
	Retry RetryConfig `yaml:"retry" env:"RETRY"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// RuntimeConfig 运行时配置
type RuntimeConfig struct {
	// AgentID 为空时由角色名派生
	AgentID string `yaml:"agent_id" env:"AGENT_ID"`
	// 角色文件路径
	CharacterPath string `yaml:"character_path" env:"CHARACTER_PATH"`
	// 组装上下文时读取的最近消息条数
	ConversationLength int `yaml:"conversation_length" env:"CONVERSATION_LENGTH"`
	// 知识文件根目录
	KnowledgeRoot string `yaml:"knowledge_root" env:"KNOWLEDGE_ROOT"`
	// 动作解析方式: fuzzy, exact
	ActionResolver string `yaml:"action_resolver" env:"ACTION_RESOLVER"`
	// 监听知识目录变化的轮询间隔，0 表示不监听
	KnowledgeWatchInterval time.Duration `yaml:"knowledge_watch_interval" env:"KNOWLEDGE_WATCH_INTERVAL"`
	// RAG 检索配置
	RAG RAGConfig `yaml:"rag" env:"RAG"`
}

// RAGConfig RAG 知识配置
type RAGConfig struct {
	// MatchThreshold 向量检索与重排后的最低得分
	MatchThreshold float64 `yaml:"match_threshold" env:"MATCH_THRESHOLD"`
	// MatchCount 默认返回条数
	MatchCount int `yaml:"match_count" env:"MATCH_COUNT"`
	// ChunkSize 分块大小（字符）
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
	// Bleed 相邻分块重叠字符数
	Bleed int `yaml:"bleed" env:"BLEED"`
}

// ModelsConfig 模型配置
type ModelsConfig struct {
	// 默认 Provider，角色未指定时使用
	DefaultProvider string `yaml:"default_provider" env:"DEFAULT_PROVIDER"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// AI 网关
	Gateway providers.GatewayConfig `yaml:"gateway" env:"GATEWAY"`
	// 按 Provider id 覆盖端点、模型与 API Key（仅 YAML）
	Providers map[string]providers.ProviderConfig `yaml:"providers"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN 非空时直接使用，忽略下面的连接参数
	DSN string `yaml:"dsn" env:"DSN"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名；sqlite 为文件路径，":memory:" 为内存库
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	// 向量维度（postgres pgvector 列）
	VectorDimensions int `yaml:"vector_dimensions" env:"VECTOR_DIMENSIONS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 启用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	// 后端: database, redis, memory
	Backend string `yaml:"backend" env:"BACKEND"`
	// 默认过期时间，0 表示永不过期
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// Redis 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 内存后端的容量（条目数近似值）
	MaxEntries int64 `yaml:"max_entries" env:"MAX_ENTRIES"`
}

// RetryConfig 重试配置
type RetryConfig struct {
	// 结构化生成的最大尝试次数，0 表示不限（依赖 ctx 取消）
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// 鉴权、参数类 Provider 错误不再重试
	StopOnNonRetryable bool `yaml:"stop_on_non_retryable" env:"STOP_ON_NON_RETRYABLE"`
	// 首次退避
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	// 退避上限
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 不使用 TLS 连接 OTLP
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// /metrics 监听地址，空表示不暴露
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.Getenv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnvLookup replaces os.Getenv, mainly for tests.
func (l *Loader) WithEnvLookup(fn func(string) string) *Loader {
	l.lookupEnv = fn
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量 → Validate → 自定义验证器
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		// 结构体递归处理（time.Duration 不是结构体）
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := l.lookupEnv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// ConnString 返回数据库连接字符串
func (d *DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// MigrationURL 返回 golang-migrate 使用的数据库 URL；sqlite 返回 ""。
func (d *DatabaseConfig) MigrationURL() string {
	switch d.Driver {
	case "postgres":
		if strings.Contains(d.DSN, "://") {
			return d.DSN
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
	case "mysql":
		return "mysql://" + d.ConnString()
	default:
		return ""
	}
}
