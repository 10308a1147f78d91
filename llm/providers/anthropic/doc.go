/*
# 概述

包 claude 提供 Anthropic Claude 系列模型的 Provider 适配实现，基于官方
anthropic-sdk-go 客户端调用 Messages API。

# 协议差异

  - 认证使用 x-api-key 请求头（由 SDK 处理）
  - system 消息从 messages 数组中提取，单独传递到 system 字段
  - 连续同角色消息需要合并，首条消息必须为 user
*/
package claude
