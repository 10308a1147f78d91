// Package config 提供 agentruntime 的配置加载。
//
// 配置优先级为 默认值 → YAML 文件 → 环境变量（前缀 AGENTRUNTIME）→ 校验器。
// 角色（Character）文件另由 LoadCharacter 读取，支持 JSON 与 YAML。
package config
