// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理命令行进程内的后台 HTTP 监听器，目前用于暴露
Prometheus 指标。

Manager 封装 net/http.Server：Start 非阻塞地绑定端口，Shutdown
在超时内排空连接，Errors 传出后台服务异常。NewMetricsServer
注册 /metrics 与 /healthz 两个只读端点。
*/
package server
