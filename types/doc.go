// Copyright (c) AgentRuntime Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentruntime 的全局共享类型定义。

# 概述

types 是运行时最底层的公共包，不依赖任何内部包，为 agent、rag、llm、
adapter 等上层模块提供统一的数据契约，避免循环依赖。

# 核心类型

  - Memory / Content / Media：对话记忆条目及其内容、附件
  - RAGKnowledgeItem：RAG 知识条目（主记录 + 分块，按元数据区分）
  - Goal / Objective：目标与子目标
  - Account / Actor / Room：账户、参与者与房间
  - Character：角色配置（bio、lore、知识源、模型设置）
  - State：单次组装的提示上下文（不持久化）
  - Error / ErrorCode：结构化错误体系，含 Retryable 标记

# 主要能力

  - 内容派生 ID：StringToUUID（UUID v5 / SHA-1）
  - 知识作用域 ID：ScopedKnowledgeID、ChunkID
  - 错误工具链：NewError / IsErrorCode / IsRetryable
*/
package types
