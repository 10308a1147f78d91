// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的运行时指标采集能力，覆盖
模型调用、嵌入、缓存、记忆、知识摄取、动作、熔断器与数据库连接。

# 概述

Collector 通过 promauto.With 注册到调用方传入的 Registry（nil 时为
默认 Registry），因此测试与多实例场景可以各自持有独立 Registry。
它同时实现 embedding.Observer、generation.Observer 与 cache.Observer，
由 cmd/agentruntime 在装配运行时注入。

# 主要能力

  - LLM 指标：请求总数、耗时、Token 用量，按 provider/model/operation 分组。
  - 嵌入指标：按缓存命中与否区分请求数，未命中时记录耗时。
  - 缓存指标：按后端（database/redis/memory）统计命中与未命中。
  - 记忆与知识：MemoryManager 操作计数与摄取分块数。
  - 熔断器：BreakerObserver 返回状态回调，记录当前状态与转换次数。
  - Handler：返回 promhttp 处理器供 /metrics 暴露。
*/
package metrics
