// Package factory 根据厂商目录与配置创建 Provider 实例并填充 ProviderRegistry，
// 打破 llm 包与各 provider 子包之间的循环依赖。
package factory
