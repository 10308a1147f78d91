package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/adapter/memstore"
	"github.com/BaSui01/agentruntime/config"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

type backendFactory func(t *testing.T) Backend

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	mr := miniredis.RunT(t)
	b, err := NewRedisBackend(context.Background(), config.RedisConfig{Addr: mr.Addr()}, "agentruntime:agent-1:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return mr, b
}

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"database": func(t *testing.T) Backend { return NewDatabaseBackend(memstore.New(), "agent-1") },
		"memory": func(t *testing.T) Backend {
			b, err := NewMemoryBackend(100)
			require.NoError(t, err)
			return b
		},
		"redis": func(t *testing.T) Backend {
			_, b := setupTestRedis(t)
			return b
		},
	}
}

type profile struct {
	Name  string   `json:"name"`
	Likes []string `json:"likes"`
}

func TestManager_Backends(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(factory(t))
			defer m.Close()
			assert.Equal(t, name, m.Backend())

			found, err := m.Get(ctx, "missing", nil)
			require.NoError(t, err)
			assert.False(t, found)

			want := profile{Name: "eliza", Likes: []string{"tea"}}
			require.NoError(t, m.Set(ctx, "profile", want))
			var got profile
			found, err = m.Get(ctx, "profile", &got)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, want, got)

			require.NoError(t, m.Set(ctx, "greeting", "hello"))
			s, found, err := m.GetString(ctx, "greeting")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "hello", s)

			require.NoError(t, m.Delete(ctx, "greeting"))
			_, found, err = m.GetString(ctx, "greeting")
			require.NoError(t, err)
			assert.False(t, found)
			require.NoError(t, m.Delete(ctx, "greeting"), "deleting an absent key")
		})
	}
}

func TestManager_ExpiredEntryIsDeleted(t *testing.T) {
	ctx := context.Background()
	backend := NewDatabaseBackend(memstore.New(), "agent-1")
	now := time.UnixMilli(1_700_000_000_000)
	m := NewManager(backend)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", 1, WithTTL(time.Minute)))
	raw, ok, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"value":1,"expires":1700000060000}`, raw)

	now = now.Add(59 * time.Second)
	found, err := m.Get(ctx, "k", nil)
	require.NoError(t, err)
	assert.True(t, found)

	now = now.Add(2 * time.Second)
	found, err = m.Get(ctx, "k", nil)
	require.NoError(t, err)
	assert.False(t, found)

	_, ok, err = backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry is removed on read")
}

func TestManager_ZeroExpiresNeverExpires(t *testing.T) {
	ctx := context.Background()
	backend := NewDatabaseBackend(memstore.New(), "agent-1")
	m := NewManager(backend)
	require.NoError(t, m.Set(ctx, "k", "v"))

	raw, _, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"v","expires":0}`, raw)

	m.now = func() time.Time { return time.Now().Add(100 * 365 * 24 * time.Hour) }
	_, found, err := m.GetString(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestManager_DefaultTTLAndExplicitExpires(t *testing.T) {
	ctx := context.Background()
	backend := NewDatabaseBackend(memstore.New(), "agent-1")
	now := time.UnixMilli(1_000)
	m := NewManager(backend, WithDefaultTTL(time.Second))
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "default", true))
	require.NoError(t, m.Set(ctx, "explicit", true, WithExpires(time.UnixMilli(5_000))))

	raw, _, _ := backend.Get(ctx, "default")
	assert.JSONEq(t, `{"value":true,"expires":2000}`, raw)
	raw, _, _ = backend.Get(ctx, "explicit")
	assert.JSONEq(t, `{"value":true,"expires":5000}`, raw)
}

func TestManager_MalformedEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	backend := NewDatabaseBackend(memstore.New(), "agent-1")
	require.NoError(t, backend.Set(ctx, "bad", "not json", 0))

	m := NewManager(backend)
	found, err := m.Get(ctx, "bad", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManager_DecodeIntoWrongType(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewDatabaseBackend(memstore.New(), "agent-1"))
	require.NoError(t, m.Set(ctx, "n", 42))

	var s string
	_, err := m.Get(ctx, "n", &s)
	assert.Error(t, err)
}

func TestManager_AgentIsolation(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := NewManager(NewDatabaseBackend(store, "agent-a"))
	b := NewManager(NewDatabaseBackend(store, "agent-b"))

	require.NoError(t, a.Set(ctx, "k", "from-a"))
	_, found, err := b.GetString(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

type countingObserver struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (o *countingObserver) ObserveCache(_ string, hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func TestManager_Observer(t *testing.T) {
	ctx := context.Background()
	obs := &countingObserver{}
	m := NewManager(NewDatabaseBackend(memstore.New(), "agent-1"), WithObserver(obs))

	_, _ = m.Get(ctx, "k", nil)
	require.NoError(t, m.Set(ctx, "k", 1))
	_, _ = m.Get(ctx, "k", nil)
	_, _ = m.Get(ctx, "k", nil)

	assert.Equal(t, 2, obs.hits)
	assert.Equal(t, 1, obs.misses)
}

func TestManager_Closed(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewDatabaseBackend(memstore.New(), "agent-1"))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Get(ctx, "k", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Set(ctx, "k", 1), ErrClosed)
	assert.ErrorIs(t, m.Delete(ctx, "k"), ErrClosed)
}

func TestRedisBackend_PrefixAndTTL(t *testing.T) {
	ctx := context.Background()
	mr, b := setupTestRedis(t)
	m := NewManager(b)

	require.NoError(t, m.Set(ctx, "session", "abc", WithTTL(time.Minute)))
	assert.True(t, mr.Exists("agentruntime:agent-1:session"))
	assert.Equal(t, time.Minute, mr.TTL("agentruntime:agent-1:session"))

	mr.FastForward(2 * time.Minute)
	_, found, err := m.GetString(ctx, "session")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisBackend_ConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisBackend(context.Background(), config.RedisConfig{Addr: addr}, "", zap.NewNop())
	assert.Error(t, err)
}

func TestRedisBackend_ErrorsSurface(t *testing.T) {
	mr, b := setupTestRedis(t)
	m := NewManager(b)
	mr.Close()

	_, err := m.Get(context.Background(), "k", nil)
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := memstore.New()

	tests := []struct {
		backend string
		want    string
		wantErr bool
	}{
		{"", "database", false},
		{"database", "database", false},
		{"memory", "memory", false},
		{"redis", "redis", false},
		{"memcached", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := config.CacheConfig{Backend: tt.backend, KeyPrefix: "agentruntime:", MaxEntries: 10}
			m, err := NewFromConfig(ctx, cfg, config.RedisConfig{Addr: mr.Addr()}, store, "agent-1", zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer m.Close()
			assert.Equal(t, tt.want, m.Backend())
		})
	}

	_, err := NewFromConfig(ctx, config.CacheConfig{Backend: "database"}, config.RedisConfig{}, nil, "agent-1", nil)
	assert.Error(t, err)
}

func TestManager_ConcurrentOperations(t *testing.T) {
	ctx := context.Background()
	b, err := NewMemoryBackend(1000)
	require.NoError(t, err)
	m := NewManager(b)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			assert.NoError(t, m.Set(ctx, key, i))
			var got int
			found, err := m.Get(ctx, key, &got)
			assert.NoError(t, err)
			if found {
				assert.Equal(t, i, got)
			}
		}(i)
	}
	wg.Wait()
}
