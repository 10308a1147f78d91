// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责打开运行时使用的关系型数据库，并管理其连接池。

# 概述

Open 按方言（postgres / mysql / sqlite）选择 gorm dialector，其中
sqlite 使用纯 Go 的 github.com/glebarez/sqlite，无需 cgo。打开后的
连接交给 PoolManager 统一管理连接池参数、后台健康检查与事务重试。
adapter/sqlstore 通过 PoolManager.DB() 取得 gorm 实例。

# 核心类型

  - Dialect：数据库方言，ParseDialect 兼容 pg / mariadb / sqlite3 等别名。
  - PoolManager：持有 gorm 实例与底层 sql.DB，提供 DB、Ping、Stats、
    GetStats、WithTransaction、WithTransactionRetry 与 Close。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔。

# 说明

  - sqlite 固定为单连接，内存库在多连接下互不可见。
  - WithTransactionRetry 仅对死锁、序列化失败、锁超时、连接中断等
    瞬时错误做指数退避重试，见 IsRetryableError。
*/
package database
