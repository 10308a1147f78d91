package rag

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentruntime/internal/cache"
	"github.com/BaSui01/agentruntime/rag/loader"
	"github.com/BaSui01/agentruntime/types"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// countingLoader 统计 Load 调用次数
type countingLoader struct {
	inner loader.DocumentLoader
	calls atomic.Int64
}

func (l *countingLoader) Load(ctx context.Context, path string) (loader.Document, error) {
	l.calls.Add(1)
	return l.inner.Load(ctx, path)
}

func (l *countingLoader) SupportedTypes() []string { return l.inner.SupportedTypes() }

func knowledgeText(t *testing.T, m *KnowledgeManager, rel string) string {
	t.Helper()
	got, err := m.GetKnowledge(context.Background(), GetKnowledgeParams{ID: types.ScopedKnowledgeID(rel, false)})
	require.NoError(t, err)
	if len(got) == 0 {
		return ""
	}
	return got[0].Content.Text
}

func TestProcessDirectory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	aPath := writeFile(t, root, "a.txt", "alpha document about golang")
	bPath := writeFile(t, root, "sub/b.txt", "beta document about channels")
	writeFile(t, root, ".hidden/c.txt", "hidden notes")
	writeFile(t, root, "ignored.bin", "binary")
	writeFile(t, root, "empty.txt", "   \n")

	store := newStore(t)
	counting := &countingLoader{inner: loader.NewTextLoader()}
	registry := loader.NewRegistry()
	registry.Register(".txt", counting)
	signatures := cache.NewManager(cache.NewDatabaseBackend(store, agentA))

	m := newTestManager(t, store, agentA, Config{KnowledgeRoot: root, ChunkSize: 16},
		WithLoaders(registry), WithCache(signatures))

	stats, err := m.ProcessDirectory(ctx, ".", false)
	require.NoError(t, err)
	assert.Equal(t, DirectoryStats{Processed: 2, Skipped: 1}, stats)
	assert.EqualValues(t, 3, counting.calls.Load())

	got, err := m.GetKnowledge(ctx, GetKnowledgeParams{ID: types.ScopedKnowledgeID("sub/b.txt", false)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sub/b.txt", got[0].Meta().Source)
	assert.Equal(t, "txt", got[0].Meta().Type)
	assert.Empty(t, knowledgeText(t, m, ".hidden/c.txt"), "hidden directories are skipped")

	t.Run("unchanged files are not reloaded", func(t *testing.T) {
		stats, err := m.ProcessDirectory(ctx, ".", false)
		require.NoError(t, err)
		assert.Equal(t, DirectoryStats{Skipped: 3}, stats)
		// 只有没有记录的空文件会再次读取
		assert.EqualValues(t, 4, counting.calls.Load())
	})

	t.Run("modified files are re-ingested", func(t *testing.T) {
		later := time.Now().Add(time.Hour)
		writeFile(t, root, "a.txt", "alpha document rewritten")
		require.NoError(t, os.Chtimes(aPath, later, later))
		// 只改修改时间、内容不变的文件读取后跳过
		require.NoError(t, os.Chtimes(bPath, later, later))

		stats, err := m.ProcessDirectory(ctx, ".", false)
		require.NoError(t, err)
		assert.Equal(t, DirectoryStats{Processed: 1, Skipped: 2}, stats)
		assert.Equal(t, "alpha document rewritten", knowledgeText(t, m, "a.txt"))

		for _, it := range mustList(t, m) {
			if it.Meta().OriginalID == types.ScopedKnowledgeID("a.txt", false) {
				assert.NotContains(t, it.Content.Text, "golang", "stale chunks are replaced")
			}
		}
	})

	t.Run("deleted files are cleaned up", func(t *testing.T) {
		require.NoError(t, os.Remove(bPath))
		removed, err := m.CleanupDeletedKnowledgeFiles(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.Empty(t, knowledgeText(t, m, "sub/b.txt"))
		for _, it := range mustList(t, m) {
			assert.NotEqual(t, types.ScopedKnowledgeID("sub/b.txt", false), it.Meta().OriginalID)
		}
		assert.Equal(t, "alpha document rewritten", knowledgeText(t, m, "a.txt"))
	})

	t.Run("ingest path of a removed file drops it", func(t *testing.T) {
		require.NoError(t, os.Remove(aPath))
		require.NoError(t, m.IngestPath(ctx, "a.txt", false))
		assert.Empty(t, knowledgeText(t, m, "a.txt"))
	})
}

func TestProcessDirectory_FailedFileDoesNotStopDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.md", "# Guide\nuseful content")
	writeFile(t, root, "broken.pdf", "this is not a pdf")

	m := newTestManager(t, newStore(t), agentA, Config{KnowledgeRoot: root})
	stats, err := m.ProcessDirectory(context.Background(), ".", false)
	require.NoError(t, err)
	assert.Equal(t, DirectoryStats{Processed: 1, Failed: 1}, stats)
	assert.NotEmpty(t, knowledgeText(t, m, "good.md"))
}

func TestProcessDirectory_SharedScope(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "team/handbook.md", "shared handbook")
	store := newStore(t)

	a := newTestManager(t, store, agentA, Config{KnowledgeRoot: root})
	b := newTestManager(t, store, agentB, Config{KnowledgeRoot: root})

	stats, err := a.ProcessDirectory(context.Background(), "team", true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)

	got, err := b.GetKnowledge(context.Background(), GetKnowledgeParams{ID: types.ScopedKnowledgeID("team/handbook.md", true)})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestProcessDirectory_RejectsPathsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, newStore(t), agentA, Config{KnowledgeRoot: root})

	_, err := m.ProcessDirectory(context.Background(), "../elsewhere", false)
	assert.ErrorIs(t, err, ErrPathOutsideRoot)

	err = m.IngestPath(context.Background(), filepath.Join(filepath.Dir(root), "x.md"), false)
	assert.ErrorIs(t, err, ErrPathOutsideRoot)

	_, err = m.Watch(context.Background(), "../elsewhere", false, time.Second)
	assert.ErrorIs(t, err, ErrPathOutsideRoot)
}

func TestProcessDirectory_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "content")
	m := newTestManager(t, newStore(t), agentA, Config{KnowledgeRoot: root})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.ProcessDirectory(ctx, ".", false)
	assert.ErrorIs(t, err, context.Canceled)
}
