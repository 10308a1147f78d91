package observability

import (
	"strings"
	"sync"
)

// CostCalculator 成本计算器
type CostCalculator struct {
	mu     sync.RWMutex
	prices map[string]ModelPrice // key: provider:model
}

// ModelPrice 模型价格
type ModelPrice struct {
	Provider    string  `yaml:"provider" json:"provider"`
	Model       string  `yaml:"model" json:"model"`
	PriceInput  float64 `yaml:"price_input" json:"price_input"`   // USD per 1K tokens
	PriceOutput float64 `yaml:"price_output" json:"price_output"` // USD per 1K tokens
}

// NewCostCalculator 创建成本计算器
func NewCostCalculator() *CostCalculator {
	c := &CostCalculator{prices: make(map[string]ModelPrice)}
	c.UpdatePrices(defaultPrices)
	return c
}

// 默认价格，Provider 使用目录中的厂商 id
var defaultPrices = []ModelPrice{
	{Provider: "openai", Model: "gpt-4o", PriceInput: 0.0025, PriceOutput: 0.01},
	{Provider: "openai", Model: "gpt-4o-mini", PriceInput: 0.00015, PriceOutput: 0.0006},
	{Provider: "openai", Model: "text-embedding-3-small", PriceInput: 0.00002},
	{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022", PriceInput: 0.003, PriceOutput: 0.015},
	{Provider: "anthropic", Model: "claude-3-haiku-20240307", PriceInput: 0.00025, PriceOutput: 0.00125},
	{Provider: "google", Model: "gemini-2.0-flash-exp", PriceInput: 0.0001, PriceOutput: 0.0004},
	{Provider: "deepseek", Model: "deepseek-chat", PriceInput: 0.00027, PriceOutput: 0.0011},
	{Provider: "groq", Model: "llama-3.3-70b-versatile", PriceInput: 0.00059, PriceOutput: 0.00079},
	{Provider: "qwen", Model: "qwen-plus", PriceInput: 0.0004, PriceOutput: 0.0012},
	{Provider: "glm", Model: "glm-4-flash", PriceInput: 0.0001, PriceOutput: 0.0001},
}

func priceKey(provider, model string) string {
	return strings.ToLower(provider) + ":" + model
}

// SetPrice 设置模型价格
func (c *CostCalculator) SetPrice(provider, model string, priceInput, priceOutput float64) {
	c.UpdatePrices([]ModelPrice{{Provider: provider, Model: model, PriceInput: priceInput, PriceOutput: priceOutput}})
}

// GetPrice 获取模型价格
func (c *CostCalculator) GetPrice(provider, model string) (ModelPrice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[priceKey(provider, model)]
	return p, ok
}

// Calculate 计算成本，未知模型为 0
func (c *CostCalculator) Calculate(provider, model string, tokensInput, tokensOutput int) float64 {
	price, ok := c.GetPrice(provider, model)
	if !ok {
		return 0
	}
	return float64(tokensInput)/1000*price.PriceInput + float64(tokensOutput)/1000*price.PriceOutput
}

// UpdatePrices 批量更新价格（从配置覆盖）
func (c *CostCalculator) UpdatePrices(prices []ModelPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range prices {
		c.prices[priceKey(p.Provider, p.Model)] = p
	}
}
