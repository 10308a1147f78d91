package tlsutil

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.ElementsMatch(t, aeadSuites, cfg.CipherSuites)

	// 调用方修改返回值不影响下一次调用
	cfg.CipherSuites[0] = 0
	assert.Equal(t, aeadSuites[0], DefaultTLSConfig().CipherSuites[0])
}

func TestServerTLSConfig(t *testing.T) {
	cfg := ServerTLSConfig("redis.internal")
	assert.Equal(t, "redis.internal", cfg.ServerName)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}

func TestSecureTransport(t *testing.T) {
	tr := SecureTransport()
	require.NotNil(t, tr.TLSClientConfig)
	assert.True(t, tr.ForceAttemptHTTP2)
	assert.NotNil(t, tr.Proxy)
	assert.Equal(t, 10, tr.MaxIdleConnsPerHost)
}

func TestSecureHTTPClient_PlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := SecureHTTPClient(5 * time.Second)
	assert.Equal(t, 5*time.Second, client.Timeout)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
