// Package adaptertest holds the behavioural suite every DatabaseAdapter must pass.
package adaptertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/types"
)

// Factory returns an initialised, empty adapter. The suite closes it.
type Factory func(t *testing.T) adapter.DatabaseAdapter

const (
	agentA = "agent-a"
	agentB = "agent-b"
	room1  = "room-1"
	room2  = "room-2"
)

func vec(xs ...float32) []float32 { return xs }

func mem(id, agent, room, text string, createdAt int64, embedding []float32) *types.Memory {
	return &types.Memory{
		ID:        id,
		AgentID:   agent,
		UserID:    "user-1",
		RoomID:    room,
		Content:   types.Content{Text: text},
		Embedding: embedding,
		CreatedAt: createdAt,
	}
}

// Run executes the suite against newAdapter.
func Run(t *testing.T, newAdapter Factory) {
	t.Run("memories", func(t *testing.T) { testMemories(t, newAdapter(t)) })
	t.Run("memory search", func(t *testing.T) { testMemorySearch(t, newAdapter(t)) })
	t.Run("memory uniqueness", func(t *testing.T) { testUnique(t, newAdapter(t)) })
	t.Run("cached embeddings", func(t *testing.T) { testCachedEmbeddings(t, newAdapter(t)) })
	t.Run("knowledge", func(t *testing.T) { testKnowledge(t, newAdapter(t)) })
	t.Run("knowledge search", func(t *testing.T) { testKnowledgeSearch(t, newAdapter(t)) })
	t.Run("goals", func(t *testing.T) { testGoals(t, newAdapter(t)) })
	t.Run("participants", func(t *testing.T) { testParticipants(t, newAdapter(t)) })
	t.Run("cache", func(t *testing.T) { testCache(t, newAdapter(t)) })
}

func testMemories(t *testing.T, db adapter.DatabaseAdapter) {
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.CreateMemory(ctx, mem("m1", agentA, room1, "first", 1000, nil), types.TableMessages, false))
	require.NoError(t, db.CreateMemory(ctx, mem("m2", agentA, room1, "second", 2000, nil), types.TableMessages, false))
	require.NoError(t, db.CreateMemory(ctx, mem("m3", agentA, room2, "other room", 3000, nil), types.TableMessages, false))
	require.NoError(t, db.CreateMemory(ctx, mem("d1", agentA, room1, "a document", 1500, nil), types.TableDocuments, false))

	err := db.CreateMemory(ctx, mem("m1", agentA, room1, "again", 4000, nil), types.TableMessages, false)
	require.True(t, adapter.IsDuplicate(err), "got %v", err)

	got, err := db.GetMemories(ctx, adapter.GetMemoriesParams{TableName: types.TableMessages, RoomID: room1, AgentID: agentA})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[0].ID, "newest first")
	assert.Equal(t, "first", got[1].Content.Text)

	got, err = db.GetMemories(ctx, adapter.GetMemoriesParams{TableName: types.TableMessages, RoomID: room1, Count: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].ID)

	got, err = db.GetMemories(ctx, adapter.GetMemoriesParams{TableName: types.TableMessages, RoomID: room1, Start: 1500, End: 2500})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].ID)

	m, err := db.GetMemoryByID(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "a document", m.Content.Text)

	m, err = db.GetMemoryByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, m)

	byRooms, err := db.GetMemoriesByRoomIDs(ctx, adapter.GetMemoriesByRoomIDsParams{
		TableName: types.TableMessages, AgentID: agentA, RoomIDs: []string{room1, room2},
	})
	require.NoError(t, err)
	assert.Len(t, byRooms, 3)

	n, err := db.CountMemories(ctx, room1, false, types.TableMessages)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, db.RemoveMemory(ctx, "m1", types.TableMessages))
	n, err = db.CountMemories(ctx, room1, false, types.TableMessages)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, db.RemoveAllMemories(ctx, room1, types.TableMessages))
	n, err = db.CountMemories(ctx, room1, false, types.TableMessages)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = db.CountMemories(ctx, room2, false, types.TableMessages)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "other rooms untouched")
}

func testMemorySearch(t *testing.T, db adapter.DatabaseAdapter) {
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.CreateMemory(ctx, mem("x", agentA, room1, "x axis", 1, vec(1, 0, 0)), types.TableMessages, false))
	require.NoError(t, db.CreateMemory(ctx, mem("xy", agentA, room1, "diagonal", 2, vec(1, 1, 0)), types.TableMessages, false))
	require.NoError(t, db.CreateMemory(ctx, mem("z", agentA, room1, "z axis", 3, vec(0, 0, 1)), types.TableMessages, false))
	require.NoError(t, db.CreateMemory(ctx, mem("bx", agentB, room1, "agent b", 4, vec(1, 0, 0)), types.TableMessages, false))
	require.NoError(t, db.CreateMemory(ctx, mem("zero", agentA, room1, "no vector", 5, vec(0, 0, 0)), types.TableMessages, false))

	hits, err := db.SearchMemories(ctx, adapter.SearchMemoriesParams{
		TableName: types.TableMessages, AgentID: agentA, RoomID: room1,
		Embedding: vec(1, 0, 0), MatchThreshold: 0.5, MatchCount: 10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "x", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
	assert.Equal(t, "xy", hits[1].ID)
	assert.InDelta(t, 0.7071, hits[1].Similarity, 1e-3)
	assert.Equal(t, vec(1, 0, 0), hits[0].Embedding, "stored embedding returned unchanged")

	hits, err = db.SearchMemories(ctx, adapter.SearchMemoriesParams{
		TableName: types.TableMessages, AgentID: agentA, RoomID: room1,
		Embedding: vec(1, 0, 0), MatchThreshold: 0.1, MatchCount: 1,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "x", hits[0].ID)

	hits, err = db.SearchMemories(ctx, adapter.SearchMemoriesParams{
		TableName: types.TableDocuments, Embedding: vec(1, 0, 0), MatchCount: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func testUnique(t *testing.T, db adapter.DatabaseAdapter) {
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.CreateMemory(ctx, mem("u1", agentA, room1, "hello", 1, vec(1, 0)), types.TableMessages, true))
	require.NoError(t, db.CreateMemory(ctx, mem("u2", agentA, room1, "hello again", 2, vec(1, 0.01)), types.TableMessages, true))
	require.NoError(t, db.CreateMemory(ctx, mem("u3", agentA, room1, "different", 3, vec(0, 1)), types.TableMessages, true))

	n, err := db.CountMemories(ctx, room1, true, types.TableMessages)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "near-duplicate is stored but not unique")

	n, err = db.CountMemories(ctx, room1, false, types.TableMessages)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testCachedEmbeddings(t *testing.T, db adapter.DatabaseAdapter) {
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.CreateMemory(ctx, mem("c1", agentA, room1, "what is the weather", 1, vec(0.1, 0.2)), types.TableMessages, false))
	require.NoError(t, db.CreateMemory(ctx, mem("c2", agentA, room1, "what is the weathers", 2, vec(0.3, 0.4)), types.TableMessages, false))
	require.NoError(t, db.CreateMemory(ctx, mem("c3", agentA, room1, "unrelated", 3, vec(0.5, 0.6)), types.TableMessages, false))

	got, err := db.GetCachedEmbeddings(ctx, adapter.CachedEmbeddingsParams{
		QueryTableName:    types.TableMessages,
		QueryThreshold:    2,
		QueryInput:        "what is the weather",
		QueryFieldName:    "content",
		QueryFieldSubName: "text",
		QueryMatchCount:   10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].LevenshteinScore)
	assert.InDeltaSlice(t, []float32{0.1, 0.2}, got[0].Embedding, 1e-6)
	assert.Equal(t, 1, got[1].LevenshteinScore)
}

func knowledge(id, agent, text string, shared bool, embedding []float32) *types.RAGKnowledgeItem {
	return &types.RAGKnowledgeItem{
		ID:      id,
		AgentID: agent,
		Content: types.KnowledgeContent{
			Text:     text,
			Metadata: &types.KnowledgeMetadata{IsMain: true, IsShared: shared, Source: id + ".md"},
		},
		Embedding: embedding,
		CreatedAt: 1,
	}
}

func chunk(parent *types.RAGKnowledgeItem, index int, embedding []float32) *types.RAGKnowledgeItem {
	return &types.RAGKnowledgeItem{
		ID:      types.ChunkID(parent.ID, index),
		AgentID: parent.AgentID,
		Content: types.KnowledgeContent{
			Text: parent.Content.Text,
			Metadata: &types.KnowledgeMetadata{
				IsChunk: true, OriginalID: parent.ID, ChunkIndex: index, IsShared: parent.IsShared(),
			},
		},
		Embedding: embedding,
		CreatedAt: 2,
	}
}

func testKnowledge(t *testing.T, db adapter.DatabaseAdapter) {
	defer db.Close()
	ctx := context.Background()

	doc := knowledge("doc", agentA, "private doc", false, vec(1, 0))
	require.NoError(t, db.CreateKnowledge(ctx, doc))
	require.NoError(t, db.CreateKnowledge(ctx, chunk(doc, 0, vec(1, 0))))
	require.NoError(t, db.CreateKnowledge(ctx, chunk(doc, 1, vec(0, 1))))
	require.NoError(t, db.CreateKnowledge(ctx, knowledge("shared", agentB, "shared doc", true, vec(1, 1))))
	require.NoError(t, db.CreateKnowledge(ctx, knowledge("bdoc", agentB, "b private", false, vec(1, 0))))

	err := db.CreateKnowledge(ctx, knowledge("doc", agentA, "dup", false, nil))
	require.True(t, adapter.IsDuplicate(err), "got %v", err)

	got, err := db.GetKnowledge(ctx, adapter.GetKnowledgeParams{ID: "doc", AgentID: agentA})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Meta().IsMain)
	assert.Equal(t, "doc.md", got[0].Meta().Source)

	got, err = db.GetKnowledge(ctx, adapter.GetKnowledgeParams{ID: "bdoc", AgentID: agentA})
	require.NoError(t, err)
	assert.Empty(t, got, "private items of other agents are invisible")

	got, err = db.GetKnowledge(ctx, adapter.GetKnowledgeParams{AgentID: agentA})
	require.NoError(t, err)
	assert.Len(t, got, 4, "own items plus shared")

	require.NoError(t, db.RemoveKnowledge(ctx, "doc"))
	got, err = db.GetKnowledge(ctx, adapter.GetKnowledgeParams{AgentID: agentA})
	require.NoError(t, err)
	require.Len(t, got, 1, "chunks removed with the parent")
	assert.Equal(t, "shared", got[0].ID)

	require.NoError(t, db.CreateKnowledge(ctx, knowledge("pre-1", agentA, "p1", false, nil)))
	require.NoError(t, db.CreateKnowledge(ctx, knowledge("pre-2", agentA, "p2", false, nil)))
	require.NoError(t, db.RemoveKnowledge(ctx, "pre-*"))
	got, err = db.GetKnowledge(ctx, adapter.GetKnowledgeParams{AgentID: agentA})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, db.ClearKnowledge(ctx, agentB, false))
	got, err = db.GetKnowledge(ctx, adapter.GetKnowledgeParams{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testKnowledgeSearch(t *testing.T, db adapter.DatabaseAdapter) {
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.CreateKnowledge(ctx, knowledge("a", agentA, "a", false, vec(1, 0))))
	require.NoError(t, db.CreateKnowledge(ctx, knowledge("s", agentB, "s", true, vec(0.9, 0.1))))
	require.NoError(t, db.CreateKnowledge(ctx, knowledge("b", agentB, "b", false, vec(1, 0))))
	require.NoError(t, db.CreateKnowledge(ctx, knowledge("far", agentA, "far", false, vec(0, 1))))

	hits, err := db.SearchKnowledge(ctx, adapter.SearchKnowledgeParams{
		AgentID: agentA, Embedding: vec(1, 0), MatchThreshold: 0.85, MatchCount: 10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "s", hits[1].ID)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)

	require.NoError(t, db.ClearKnowledge(ctx, agentA, true))
	hits, err = db.SearchKnowledge(ctx, adapter.SearchKnowledgeParams{
		AgentID: agentB, Embedding: vec(1, 0), MatchCount: 10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func testGoals(t *testing.T, db adapter.DatabaseAdapter) {
	defer db.Close()
	ctx := context.Background()

	g := &types.Goal{
		ID: "g1", RoomID: room1, UserID: "user-1", Name: "ship it", Status: types.GoalInProgress,
		Objectives: []types.Objective{{Description: "write code"}, {Description: "test", Completed: true}},
	}
	require.NoError(t, db.CreateGoal(ctx, g))
	require.NoError(t, db.CreateGoal(ctx, &types.Goal{ID: "g2", RoomID: room1, Name: "done", Status: types.GoalDone}))
	require.NoError(t, db.CreateGoal(ctx, &types.Goal{ID: "g3", RoomID: room2, Name: "elsewhere", Status: types.GoalInProgress}))

	got, err := db.GetGoals(ctx, adapter.GetGoalsParams{RoomID: room1, OnlyInProgress: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, g.Objectives, got[0].Objectives)

	got[0].Status = types.GoalDone
	require.NoError(t, db.UpdateGoal(ctx, got[0]))
	got, err = db.GetGoals(ctx, adapter.GetGoalsParams{RoomID: room1, OnlyInProgress: true})
	require.NoError(t, err)
	assert.Empty(t, got)

	err = db.UpdateGoal(ctx, &types.Goal{ID: "nope", RoomID: room1})
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound), "got %v", err)

	require.NoError(t, db.RemoveGoal(ctx, "g1"))
	got, err = db.GetGoals(ctx, adapter.GetGoalsParams{RoomID: room1})
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, db.RemoveAllGoals(ctx, room1))
	got, err = db.GetGoals(ctx, adapter.GetGoalsParams{RoomID: room1})
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = db.GetGoals(ctx, adapter.GetGoalsParams{RoomID: room2, Count: 10})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testParticipants(t *testing.T, db adapter.DatabaseAdapter) {
	defer db.Close()
	ctx := context.Background()

	created, err := db.CreateAccount(ctx, &types.Account{
		ID: "user-1", Name: "Alice", Username: "alice",
		Details: map[string]any{"tagline": "hi", "summary": "likes go"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = db.CreateAccount(ctx, &types.Account{ID: "user-1", Name: "Again"})
	require.NoError(t, err)
	assert.False(t, created)

	a, err := db.GetAccountByID(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "Alice", a.Name)
	a, err = db.GetAccountByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, a)

	id, err := db.CreateRoom(ctx, room1)
	require.NoError(t, err)
	assert.Equal(t, room1, id)
	id, err = db.GetRoom(ctx, room1)
	require.NoError(t, err)
	assert.Equal(t, room1, id)
	id, err = db.GetRoom(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, id)

	added, err := db.AddParticipant(ctx, "user-1", room1)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = db.AddParticipant(ctx, "user-1", room1)
	require.NoError(t, err)
	assert.False(t, added)

	users, err := db.GetParticipantsForRoom(ctx, room1)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, users)

	rooms, err := db.GetRoomsForParticipants(ctx, []string{"user-1", "user-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{room1}, rooms)

	parts, err := db.GetParticipantsForAccount(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "alice", parts[0].Account.Username)

	actors, err := db.GetActorDetails(ctx, room1)
	require.NoError(t, err)
	require.Len(t, actors, 1)
	assert.Equal(t, "Alice", actors[0].Name)
	assert.Equal(t, "likes go", actors[0].Details.Summary)

	state, err := db.GetParticipantUserState(ctx, room1, "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.ParticipantNone, state)
	require.NoError(t, db.SetParticipantUserState(ctx, room1, "user-1", types.ParticipantMuted))
	state, err = db.GetParticipantUserState(ctx, room1, "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.ParticipantMuted, state)

	removed, err := db.RemoveParticipant(ctx, "user-1", room1)
	require.NoError(t, err)
	assert.True(t, removed)
	users, err = db.GetParticipantsForRoom(ctx, room1)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func testCache(t *testing.T, db adapter.DatabaseAdapter) {
	defer db.Close()
	ctx := context.Background()

	_, ok, err := db.GetCache(ctx, "k", agentA)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SetCache(ctx, "k", agentA, `{"value":1}`))
	require.NoError(t, db.SetCache(ctx, "k", agentA, `{"value":2}`))
	v, ok, err := db.GetCache(ctx, "k", agentA)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"value":2}`, v)

	_, ok, err = db.GetCache(ctx, "k", agentB)
	require.NoError(t, err)
	assert.False(t, ok, "cache is scoped per agent")

	require.NoError(t, db.DeleteCache(ctx, "k", agentA))
	_, ok, err = db.GetCache(ctx, "k", agentA)
	require.NoError(t, err)
	assert.False(t, ok)
}
