package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// aeadSuites TLS 1.2 下允许的密码套件，TLS 1.3 套件由 Go 运行时固定
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// DefaultTLSConfig 返回加固后的 TLS 配置，每次调用返回新实例
func DefaultTLSConfig() *tls.Config {
	suites := make([]uint16, len(aeadSuites))
	copy(suites, aeadSuites)
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: suites,
	}
}

// ServerTLSConfig 在默认配置上设置 SNI 名称，用于 Redis 等非 HTTP 连接
func ServerTLSConfig(serverName string) *tls.Config {
	cfg := DefaultTLSConfig()
	cfg.ServerName = serverName
	return cfg
}

// SecureTransport 返回带 TLS 加固的 Transport，遵循 HTTP(S)_PROXY 环境变量。
// 明文 http 端点（如本地 Ollama）不受影响。
func SecureTransport() *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// SecureHTTPClient 供应商客户端统一入口
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(),
	}
}
