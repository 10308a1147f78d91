// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 PostgreSQL 与 MySQL 上的记忆库 Schema，基于 golang-migrate 实现。

# 概述

迁移文件通过 embed.FS 内嵌，覆盖 sqlstore 使用的全部表：memories、
knowledge、goals、accounts、rooms、participants 与 cache。
PostgreSQL 版本启用 pgvector 扩展并以 vector 列保存向量；MySQL 版本以
文本保存向量，相似度在进程内计算。

SQLite 不经过本包：golang-migrate 的 sqlite3 驱动依赖 cgo，
而运行时使用纯 Go 的 sqlite 驱动，因此由 sqlstore.WithAutoMigrate 建表，
NewMigrator 对 sqlite 返回 ErrUseAutoMigrate。

# 核心类型

  - Migrator / DefaultMigrator：Up/Down/DownAll/Steps/Goto/Force/Version/
    Status/Info/Close。ctx 取消时通过 GracefulStop 在当前迁移完成后停止。
  - Config：数据库类型、连接 URL、迁移表名、锁超时与 zap 日志。
  - CLI：cmd/agentruntime migrate 子命令的格式化输出层。
  - AvailableMigrations：列出某方言内嵌的迁移版本。

# 工厂函数

NewMigratorFromConfig / NewMigratorFromDatabaseConfig 从 config.DatabaseConfig
的 MigrationURL 创建迁移器；NewMigratorFromURL 直接使用 URL。
*/
package migration
