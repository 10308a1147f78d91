// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 提供按 agent 隔离的 RAG 知识管理：导入文本与文件、
分块嵌入、向量检索与基于查询词的重排。

# 核心接口/类型

  - KnowledgeManager：知识写入、检索、删除与目录同步
  - Embedder：文本嵌入接口，*embedding.Embedder 满足该接口
  - DirectoryWatcher：轮询目录树并在文件变化时回调
  - loader.Registry：按扩展名选择 txt / md / pdf 加载器

# 数据布局

每份知识写入一条主记录（保存原文）和若干分块（保存预处理后的文本）。
分块 id 为 "<主记录 id>-chunk-<序号>"，删除主记录时一并删除。
文件知识的 id 由作用域（shared / private）与相对 KnowledgeRoot 的路径决定，
同一文件重复导入得到同一 id。共享知识对所有 agent 可见。

# 检索

GetKnowledge 先把对话上下文与查询拼接后嵌入，取 2×limit 个候选，
再用 Rerank 按命中查询词的比例加权：

	score = similarity × (1 + matched/total × 2) × (邻近时 1.5)

一个词都没命中且没有对话上下文时乘 0.3。低于 MatchThreshold 的结果被丢弃。

# 目录导入

ProcessDirectory 递归导入目录，每批并发 5 个文件；配置缓存时按文件大小
与修改时间跳过未变化的文件。CleanupDeletedKnowledgeFiles 删除源文件已
不存在的知识，Watch 在文件变化时自动重新导入。
*/
package rag
