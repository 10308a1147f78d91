// Package tlsutil 提供集中式 TLS 配置，
// 供模型供应商 HTTP 客户端与 Redis 缓存连接使用（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
