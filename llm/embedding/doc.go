/*
包 embedding 把文本转换为向量，供记忆检索与 RAG 使用。

# 概述

Embedder 是统一入口：空文本直接返回空向量；先查询记忆存储中的缓存向量，
未命中时按优先级选择 Provider 计算。同一进程内对同一文本的并发请求通过
singleflight 合并为一次计算。

# Provider 选择顺序

  - 显式开启的远程 Provider：OpenAI → Ollama → GaiaNet → Heurist
  - 本地模型（384 维，ONNX Runtime，需 onnx 构建标签）
  - 回退到模型 Provider 自身的 /embeddings 端点（Google 使用 genai SDK）

# 核心类型

  - Provider：统一嵌入接口
  - RemoteProvider：OpenAI 兼容 /embeddings 端点，带 x/time/rate 限流
  - GeminiProvider：基于 google.golang.org/genai 的 EmbedContent
  - LocalProvider：本地模型的懒加载封装，初始化只执行一次
*/
package embedding
