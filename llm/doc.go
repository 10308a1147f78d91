// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义模型调用的公共类型：请求与响应、统一错误、模型类别
以及 Provider 注册表。

# 概述

上层代码（generation、agent）只依赖本包的 [ModelProvider] 接口与
[ChatRequest]/[ChatResponse]，具体厂商的协议差异由 providers 子包吸收。
Provider 以 id 注册到 [ProviderRegistry]，角色文件中的 modelProvider
字段即为该 id。

# 核心类型

  - [ModelProvider]：Completion / HealthCheck / Name 三个方法
  - [ProviderRegistry]：并发安全的 id 到 Provider 映射，带默认项
  - [Error]：携带 [ErrorCode]、HTTP 状态与可重试标记的统一错误
  - [ModelClass] 与 [ModelSettings]：small/medium/large/embedding/image
    五种类别及其模型名、上下文长度、采样参数

# 子包

  - providers：厂商目录、openaicompat、anthropic、gemini 适配
  - factory：按目录与配置批量构造 Provider 并注册
  - generation：GenerateText 与结构化生成辅助函数（带重试）
  - embedding：远程与本地 ONNX 嵌入，按角色配置选择
  - image：图像生成与看图描述
  - retry、circuitbreaker：退避重试与熔断
  - tokenizer：tiktoken 与估算分词，用于按 token 截断
  - observability：OpenTelemetry 指标、追踪与成本估算
  - parsing：从模型输出中提取 JSON、布尔值与动作
*/
package llm
