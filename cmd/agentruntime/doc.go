// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 agentruntime 命令行入口。

# 概述

cmd/agentruntime 加载 YAML 配置与角色文件，组装存储、模型注册表、
嵌入服务与 AgentRuntime，然后在终端中运行对话或知识导入。

# 子命令

  - chat：逐行读取 stdin，经 HandleMessage 处理后把回复写到 stdout
  - ingest：把文件或目录导入 RAG 知识库，支持 --shared 与 --cleanup
  - migrate：up/down/steps/goto/force/version/status，基于 golang-migrate；
    sqlite 由启动时的 auto migrate 建表
  - version：打印构建注入的 Version、BuildTime、GitCommit

# 运行时组件

  - 日志：zap，默认输出到 stderr，stdout 只承载对话内容
  - 存储：gorm（postgres/mysql/sqlite）或 --in-memory，外层包熔断器
  - 指标：metrics.listen_addr 非空时在独立端口暴露 /metrics
  - 追踪：telemetry.enabled 时初始化 OpenTelemetry 导出器
*/
package main
