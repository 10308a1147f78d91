/*
# 概述

包 providers 是所有模型厂商实现的公共基础层：厂商目录、OpenAI 兼容格式的
请求/响应转换、错误映射以及网关与密钥解析。

# 核心类型

  - Catalog / Entry：内置约三十家厂商的端点与按档位（small/medium/large/embedding/image）划分的模型
  - ProviderConfig：单个厂商的配置覆盖
  - GatewayConfig：AI 网关 base URL 改写
  - OpenAICompat* 系列：OpenAI 兼容 API 的请求/响应结构体

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ConvertMessagesToOpenAI：统一消息格式转换，图片转换为 content parts
  - ToLLMChatResponse：OpenAI 兼容响应到 llm.ChatResponse 的转换
  - ChooseModel：按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
