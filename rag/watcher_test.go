package rag

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentruntime/types"
)

type eventLog struct {
	mu     sync.Mutex
	events []FileEvent
}

func (l *eventLog) record(e FileEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) has(path string, op FileOp) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Path == path && e.Op == op {
			return true
		}
	}
	return false
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func TestDirectoryWatcher_Events(t *testing.T) {
	root := t.TempDir()
	existing := writeFile(t, root, "existing.md", "already here")

	w, err := NewDirectoryWatcher(root,
		WithPollInterval(20*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond),
		WithFileFilter(func(p string) bool { return filepath.Ext(p) == ".md" }),
		WithWatcherLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	log := &eventLog{}
	w.OnChange(log.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx), "second start is rejected")

	created := writeFile(t, root, "notes/new.md", "fresh")
	writeFile(t, root, "notes/skip.txt", "filtered out")
	require.Eventually(t, func() bool { return log.has(created, FileOpCreate) }, 2*time.Second, 10*time.Millisecond)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(existing, later, later))
	require.Eventually(t, func() bool { return log.has(existing, FileOpWrite) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(created))
	require.Eventually(t, func() bool { return log.has(created, FileOpRemove) }, 2*time.Second, 10*time.Millisecond)

	assert.False(t, log.has(filepath.Join(root, "notes", "skip.txt"), FileOpCreate))
	assert.False(t, log.has(existing, FileOpCreate), "files present at start produce no events")

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop(), "stop is idempotent")
}

func TestDirectoryWatcher_DebounceKeepsLastEvent(t *testing.T) {
	root := t.TempDir()
	w, err := NewDirectoryWatcher(root,
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(300*time.Millisecond))
	require.NoError(t, err)

	log := &eventLog{}
	w.OnChange(log.record)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := writeFile(t, root, "burst.md", "v1")
	time.Sleep(50 * time.Millisecond)
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	require.Eventually(t, func() bool { return log.len() > 0 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, log.len(), "events for one path within the debounce window collapse")
	assert.True(t, log.has(path, FileOpWrite))
}

func TestNewDirectoryWatcher_Errors(t *testing.T) {
	_, err := NewDirectoryWatcher(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := writeFile(t, t.TempDir(), "file.md", "x")
	_, err = NewDirectoryWatcher(file)
	assert.Error(t, err)
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "UNKNOWN", FileOp(42).String())
}

func TestKnowledgeManager_Watch(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, newStore(t), agentA, Config{KnowledgeRoot: root})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := m.Watch(ctx, ".", false, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	id := types.ScopedKnowledgeID("docs/live.md", false)
	exists := func() bool {
		got, err := m.GetKnowledge(context.Background(), GetKnowledgeParams{ID: id})
		return err == nil && len(got) == 1
	}

	path := writeFile(t, root, "docs/live.md", "# Live\nwatched knowledge")
	require.Eventually(t, exists, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return !exists() }, 3*time.Second, 20*time.Millisecond)
}
