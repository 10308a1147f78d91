package server

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMetricsServer(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("agentruntime_up 1\n"))
	})
	m := NewMetricsServer("127.0.0.1:0", metrics, zaptest.NewLogger(t))
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	base := "http://" + m.Addr()
	code, body := get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "agentruntime_up 1\n", body)

	code, body = get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, _ = get(t, base+"/chat")
	assert.Equal(t, http.StatusNotFound, code)

	resp, err := http.Post(base+"/metrics", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestManager_Lifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager(http.NotFoundHandler(), cfg, nil)
	assert.Equal(t, "127.0.0.1:0", m.Addr())

	require.NoError(t, m.Start())
	assert.NotEqual(t, "127.0.0.1:0", m.Addr())
	assert.Error(t, m.Start(), "second start")

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()), "idempotent")
	assert.Error(t, m.Start(), "closed")

	select {
	case err := <-m.Errors():
		t.Fatalf("unexpected server error: %v", err)
	default:
	}
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	m := NewManager(http.NotFoundHandler(), DefaultConfig(), nil)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_ListenError(t *testing.T) {
	first := NewManager(http.NotFoundHandler(), Config{Addr: "127.0.0.1:0"}, nil)
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	second := NewManager(http.NotFoundHandler(), Config{Addr: first.Addr()}, nil)
	assert.Error(t, second.Start())
}
