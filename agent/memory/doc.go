// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 memory 提供按表划分的记忆管理器。

# 概述

每个 Manager 负责一张记忆表（messages、documents、fragments、lore、
descriptions 或自定义表），所有操作委托给 adapter.MemoryStore，
并自动带上所属 agent 的 id。

# 核心能力

  - CreateMemory：id 已存在时跳过，只记一条 debug 日志。
  - AddEmbeddingToMemory：已有向量时不变；嵌入失败回退为零向量。
  - SearchMemoriesByEmbedding：默认阈值 0.1，默认返回 10 条。
  - GetMemoryByID：记录属于其他 agent 时返回 nil。
  - GetCachedEmbeddings：按 Levenshtein 距离查找已存向量，
    作为 embedding.Cache 供 Embedder 复用。
*/
package memory
