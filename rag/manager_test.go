package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/adapter/memstore"
	"github.com/BaSui01/agentruntime/llm/embedding"
	"github.com/BaSui01/agentruntime/llm/embedding/embeddingtest"
	"github.com/BaSui01/agentruntime/types"
)

const (
	agentA = "agent-a"
	agentB = "agent-b"
)

func newStore(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestManager(t *testing.T, store adapter.KnowledgeStore, agentID string, cfg Config, opts ...Option) *KnowledgeManager {
	t.Helper()
	e := embedding.NewEmbedder(embeddingtest.NewHashProvider(64))
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return NewKnowledgeManager(agentID, store, e, cfg, opts...)
}

// 低阈值：词袋向量只有部分词重叠时相似度不高
func lowThreshold() Config {
	return Config{MatchThreshold: 0.1, MatchCount: 8}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
	chunks int
}

func (o *recordingObserver) ObserveKnowledgeIngested(source string, chunks int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, source)
	o.chunks += chunks
}

func byID(items []*types.RAGKnowledgeItem) map[string]*types.RAGKnowledgeItem {
	out := make(map[string]*types.RAGKnowledgeItem, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out
}

func TestKnowledgeManager_CreateKnowledgeWritesMainAndChunks(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	m := newTestManager(t, newStore(t), agentA, Config{ChunkSize: 16, Bleed: 4}, WithObserver(obs))

	text := "# Channels\nGolang channels let goroutines communicate without sharing memory."
	item := &types.RAGKnowledgeItem{Content: types.KnowledgeContent{Text: text}}
	require.NoError(t, m.CreateKnowledge(ctx, item, false))
	assert.Equal(t, types.StringToUUID(text), item.ID, "id derived from content")

	all, err := m.ListAllKnowledge(ctx)
	require.NoError(t, err)
	want := SplitChunks(Preprocess(text), 16, 4)
	require.Len(t, all, len(want)+1)

	items := byID(all)
	main := items[item.ID]
	require.NotNil(t, main)
	assert.Equal(t, text, main.Content.Text, "main record keeps the original text")
	assert.True(t, main.Meta().IsMain)
	assert.Equal(t, agentA, main.AgentID)

	for i, c := range want {
		chunk := items[types.ChunkID(item.ID, i)]
		require.NotNil(t, chunk, "chunk %d", i)
		meta := chunk.Meta()
		assert.True(t, meta.IsChunk)
		assert.Equal(t, item.ID, meta.OriginalID)
		assert.Equal(t, i, meta.ChunkIndex)
		assert.Equal(t, c, chunk.Content.Text)
	}

	assert.Equal(t, []string{"text"}, obs.events)
	assert.Equal(t, len(want), obs.chunks)
}

func TestKnowledgeManager_CreateKnowledgeIgnoresEmptyText(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newStore(t), agentA, Config{})

	require.NoError(t, m.CreateKnowledge(ctx, nil, false))
	require.NoError(t, m.CreateKnowledge(ctx, &types.RAGKnowledgeItem{ID: "k"}, false))

	all, err := m.ListAllKnowledge(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestKnowledgeManager_DuplicateHandling(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newStore(t), agentA, Config{})

	shared := File{Path: "docs/shared.md", Content: "shared handbook", Type: "md", Shared: true}
	require.NoError(t, m.ProcessFile(ctx, shared))
	require.NoError(t, m.ProcessFile(ctx, shared), "shared duplicate is not an error")

	private := File{Path: "docs/private.md", Content: "private notes", Type: "md"}
	require.NoError(t, m.ProcessFile(ctx, private))
	err := m.ProcessFile(ctx, private)
	require.Error(t, err)
	assert.True(t, adapter.IsDuplicate(err))

	got, err := m.GetKnowledge(ctx, GetKnowledgeParams{ID: types.ScopedKnowledgeID("docs/shared.md", true)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	meta := got[0].Meta()
	assert.Equal(t, "docs/shared.md", meta.Source)
	assert.Equal(t, "md", meta.Type)
	assert.True(t, meta.IsShared)
}

func TestKnowledgeManager_SharedKnowledgeVisibleToOtherAgents(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	a := newTestManager(t, store, agentA, Config{})
	b := newTestManager(t, store, agentB, Config{})

	require.NoError(t, a.ProcessFile(ctx, File{Path: "s.md", Content: "everyone reads this", Shared: true}))
	require.NoError(t, a.ProcessFile(ctx, File{Path: "p.md", Content: "only for agent a"}))

	got, err := b.GetKnowledge(ctx, GetKnowledgeParams{ID: types.ScopedKnowledgeID("s.md", true)})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = b.GetKnowledge(ctx, GetKnowledgeParams{ID: types.ScopedKnowledgeID("p.md", false)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKnowledgeManager_GetKnowledgeReranks(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newStore(t), agentA, lowThreshold())

	for _, text := range []string{
		"Golang channels make concurrency simple",
		"Bananas are a yellow fruit rich in potassium",
		"Golang has a garbage collector",
	} {
		require.NoError(t, m.CreateKnowledge(ctx, &types.RAGKnowledgeItem{Content: types.KnowledgeContent{Text: text}}, false))
	}

	got, err := m.GetKnowledge(ctx, GetKnowledgeParams{Query: "How do golang channels work?"})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Contains(t, strings.ToLower(got[0].Content.Text), "channels")
	for i, it := range got {
		assert.Contains(t, strings.ToLower(it.Content.Text), "golang")
		assert.GreaterOrEqual(t, it.Score, it.Similarity, "matched terms never lower the score")
		if i > 0 {
			assert.LessOrEqual(t, it.Score, got[i-1].Score)
		}
	}

	got, err = m.GetKnowledge(ctx, GetKnowledgeParams{Query: "golang", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = m.GetKnowledge(ctx, GetKnowledgeParams{Query: "```only code```"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKnowledgeManager_GetKnowledgeIDMissFallsBackToQuery(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newStore(t), agentA, lowThreshold())
	require.NoError(t, m.CreateKnowledge(ctx, &types.RAGKnowledgeItem{
		ID: "golang-doc", Content: types.KnowledgeContent{Text: "Golang channels make concurrency simple"},
	}, false))

	got, err := m.GetKnowledge(ctx, GetKnowledgeParams{ID: "missing", Query: "golang channels"})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Contains(t, strings.ToLower(got[0].Content.Text), "golang")

	got, err = m.GetKnowledge(ctx, GetKnowledgeParams{ID: "golang-doc", Query: "bananas"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "golang-doc", got[0].ID)
}

func TestKnowledgeManager_ConversationContextBlocksPenalty(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newStore(t), agentA, lowThreshold())
	require.NoError(t, m.CreateKnowledge(ctx, &types.RAGKnowledgeItem{
		Content: types.KnowledgeContent{Text: "weather forecast rain tomorrow"},
	}, false))

	// "will" 是停用词，"it" 过短，查询没有可命中的词；有对话上下文时不惩罚
	got, err := m.GetKnowledge(ctx, GetKnowledgeParams{
		Query:               "will it",
		ConversationContext: "weather forecast tomorrow",
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, it := range got {
		assert.GreaterOrEqual(t, it.Score, it.Similarity)
	}
}

// failingEmbedder 前 ok 次调用成功，之后全部失败
type failingEmbedder struct {
	ok    int64
	calls atomic.Int64
}

func (e *failingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.calls.Add(1) > e.ok {
		return nil, errors.New("embedding backend unavailable")
	}
	return embeddingtest.Vector(text, 16), nil
}

func TestKnowledgeManager_FailedChunkRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m := NewKnowledgeManager(agentA, store, &failingEmbedder{ok: 1}, Config{ChunkSize: 8, Bleed: 0})

	err := m.CreateKnowledge(ctx, &types.RAGKnowledgeItem{
		ID:      "doc",
		Content: types.KnowledgeContent{Text: "a sentence long enough to need several chunks"},
	}, false)
	require.Error(t, err)

	all, err := m.ListAllKnowledge(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "no partial document is left behind")
}

func TestKnowledgeManager_EmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	provider := embeddingtest.NewHashProvider(16)
	provider.Err = errors.New("provider down")
	m := NewKnowledgeManager(agentA, newStore(t), embedding.NewEmbedder(provider), Config{})

	err := m.CreateKnowledge(ctx, &types.RAGKnowledgeItem{Content: types.KnowledgeContent{Text: "text"}}, false)
	require.Error(t, err)

	_, err = m.GetKnowledge(ctx, GetKnowledgeParams{Query: "something useful"})
	require.Error(t, err)
}

func TestKnowledgeManager_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m := newTestManager(t, store, agentA, Config{ChunkSize: 8})
	other := newTestManager(t, store, agentB, Config{})

	require.NoError(t, m.CreateKnowledge(ctx, &types.RAGKnowledgeItem{ID: "one", Content: types.KnowledgeContent{Text: "first document text"}}, false))
	require.NoError(t, m.CreateKnowledge(ctx, &types.RAGKnowledgeItem{ID: "two", Content: types.KnowledgeContent{Text: "second document text"}}, false))
	require.NoError(t, m.ProcessFile(ctx, File{Path: "s.md", Content: "shared text", Shared: true}))
	require.NoError(t, other.CreateKnowledge(ctx, &types.RAGKnowledgeItem{ID: "b", Content: types.KnowledgeContent{Text: "agent b text"}}, false))

	require.NoError(t, m.RemoveKnowledge(ctx, "one"))
	for _, it := range mustList(t, m) {
		assert.NotEqual(t, "one", it.ID)
		assert.NotEqual(t, "one", it.Meta().OriginalID, "chunks are removed with their document")
	}

	require.NoError(t, m.ClearKnowledge(ctx, false))
	for _, it := range mustList(t, m) {
		assert.True(t, it.IsShared(), "only shared knowledge survives a private clear")
	}

	require.NoError(t, m.ClearKnowledge(ctx, true))
	assert.Empty(t, mustList(t, m))
	assert.NotEmpty(t, mustList(t, other), "other agents keep their knowledge")
}

func TestKnowledgeManager_SearchKnowledgeDefaults(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, newStore(t), agentA, lowThreshold())
	require.NoError(t, m.CreateKnowledge(ctx, &types.RAGKnowledgeItem{ID: "k", Content: types.KnowledgeContent{Text: "vector search"}}, false))

	got, err := m.SearchKnowledge(ctx, adapter.SearchKnowledgeParams{Embedding: embeddingtest.Vector("vector search", 64)})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-5)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{Bleed: -1}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)

	cfg = Config{KnowledgeRoot: "kb", MatchThreshold: 0.5, MatchCount: 3, ChunkSize: 100, Bleed: 0}.withDefaults()
	assert.Equal(t, Config{KnowledgeRoot: "kb", MatchThreshold: 0.5, MatchCount: 3, ChunkSize: 100, Bleed: 0}, cfg)
}

func mustList(t *testing.T, m *KnowledgeManager) []*types.RAGKnowledgeItem {
	t.Helper()
	all, err := m.ListAllKnowledge(context.Background())
	require.NoError(t, err)
	return all
}
