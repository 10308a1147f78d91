package embedding

import "time"

// Config 选择并配置嵌入 Provider。
// Use* 标志按 OpenAI → Ollama → GaiaNet → Heurist 的优先级生效，
// 都未设置时依次尝试本地模型与模型 Provider 自身的端点。
type Config struct {
	UseOpenAI  bool `json:"use_openai" yaml:"use_openai" env:"USE_OPENAI_EMBEDDING"`
	UseOllama  bool `json:"use_ollama" yaml:"use_ollama" env:"USE_OLLAMA_EMBEDDING"`
	UseGaiaNet bool `json:"use_gaianet" yaml:"use_gaianet" env:"USE_GAIANET_EMBEDDING"`
	UseHeurist bool `json:"use_heurist" yaml:"use_heurist" env:"USE_HEURIST_EMBEDDING"`

	// LocalEnabled 启用进程内 384 维模型
	LocalEnabled bool       `json:"local_enabled" yaml:"local_enabled" env:"LOCAL_EMBEDDING"`
	ONNX         ONNXConfig `json:"onnx" yaml:"onnx"`

	// Dimensions 覆盖所选 Provider 的默认维度
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RateLimit  float64       `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	Burst      int           `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// DefaultConfig returns a config that prefers the local model.
func DefaultConfig() Config {
	return Config{
		LocalEnabled: true,
		Timeout:      30 * time.Second,
	}
}

// Override 返回显式指定的远程 Provider id，未指定时返回 ""。
func (c Config) Override() string {
	switch {
	case c.UseOpenAI:
		return ProviderOpenAI
	case c.UseOllama:
		return ProviderOllama
	case c.UseGaiaNet:
		return ProviderGaiaNet
	case c.UseHeurist:
		return ProviderHeurist
	default:
		return ""
	}
}

// defaultDimensions 各 Provider 的默认维度。
func defaultDimensions(provider string) int {
	switch provider {
	case ProviderOpenAI:
		return OpenAIDimensions
	case ProviderOllama:
		return OllamaDimensions
	case ProviderGaiaNet:
		return GaiaNetDimensions
	case ProviderHeurist:
		return HeuristDimensions
	default:
		return LocalDimensions
	}
}
