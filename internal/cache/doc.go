// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供运行时的键值缓存管理，支持数据库、Redis 与进程内三种后端。

# 概述

Manager 把值编码为 {"value": ..., "expires": <毫秒时间戳>} 信封写入后端，
expires 为 0 表示永不过期。读取时由 Manager 判断过期并删除过期条目，
因此不支持 TTL 的数据库后端与原生 TTL 的 Redis/ristretto 行为一致。

# 核心类型

  - Manager：Get/GetString/Set/Delete/Close，可选默认 TTL 与命中率观察者。
  - Backend：后端接口。
  - DatabaseBackend：复用 DatabaseAdapter 的 cache 表，按 agent 隔离。
  - RedisBackend：go-redis 客户端，键带前缀，后台定时健康检查。
  - MemoryBackend：ristretto 进程内缓存，按条目数限制容量。

# 后端选择

NewFromConfig 根据 config.CacheConfig.Backend 选择 database（默认）、
redis 或 memory。
*/
package cache
