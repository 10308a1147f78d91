package agent

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentruntime/agent/memory"
	"github.com/BaSui01/agentruntime/types"
)

// addMessage 直接写入消息表，绕过 HandleMessage
func addMessage(t *testing.T, rt *AgentRuntime, userID, roomID, text string, createdAt int64, attachments ...types.Media) *types.Memory {
	t.Helper()
	ctx := context.Background()
	m := &types.Memory{
		ID:        types.NewID(),
		UserID:    userID,
		AgentID:   rt.AgentID(),
		RoomID:    roomID,
		CreatedAt: createdAt,
		Content:   types.Content{Text: text, Attachments: attachments},
	}
	_, err := rt.MessageManager().AddEmbeddingToMemory(ctx, m)
	require.NoError(t, err)
	require.NoError(t, rt.MessageManager().CreateMemory(ctx, m, true))
	return m
}

func connect(t *testing.T, rt *AgentRuntime, roomID string) {
	t.Helper()
	require.NoError(t, rt.EnsureConnection(context.Background(), userBob, roomID,
		ConnectionOptions{UserName: "bob", ScreenName: "Bob"}))
}

func TestComposeState_RequiresMessage(t *testing.T) {
	rt := newRuntime(t, Options{})
	_, err := rt.ComposeState(context.Background(), nil, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestComposeState_Fields(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Options{})
	connect(t, rt, roomA)

	now := types.NowMillis()
	addMessage(t, rt, userBob, roomA, "morning Ada", now-3000)
	addMessage(t, rt, rt.AgentID(), roomA, "morning Bob", now-2000)
	msg := addMessage(t, rt, userBob, roomA, "what are you working on?", now-1000)

	require.NoError(t, rt.CreateGoal(ctx, &types.Goal{
		RoomID:     roomA,
		Name:       "learn go",
		Objectives: []types.Objective{{Description: "read the tour", Completed: true}},
	}))

	state, err := rt.ComposeState(ctx, msg, map[string]any{"mood": "sunny"})
	require.NoError(t, err)

	assert.Equal(t, rt.AgentID(), state.AgentID)
	assert.Equal(t, roomA, state.RoomID)
	assert.Equal(t, "Ada", state.AgentName)
	assert.Equal(t, "Bob", state.SenderName)
	assert.Equal(t, "You are Ada.", state.System)
	assert.Equal(t, "sunny", state.Extra["mood"])

	require.Len(t, state.ActorsData, 2)
	assert.True(t, strings.HasPrefix(state.Actors, "# Actors\n"))
	assert.Contains(t, state.Actors, "Bob")

	require.Len(t, state.RecentMessagesData, 3)
	assert.Equal(t, msg.ID, state.RecentMessagesData[0].ID, "data is newest first")
	rendered := state.RecentMessages
	assert.True(t, strings.HasPrefix(rendered, "# Conversation Messages\n"))
	assert.Less(t, strings.Index(rendered, "morning Ada"), strings.Index(rendered, "what are you working on?"),
		"rendered transcript is chronological")
	assert.Contains(t, rendered, "Ada: morning Bob")
	assert.Contains(t, state.RecentPosts, "# Posts in Thread")

	require.Len(t, state.GoalsData, 1)
	assert.Contains(t, state.Goals, "# Goals\nAda should prioritize accomplishing the objectives that are in progress.")
	assert.Contains(t, state.Goals, "- [x] read the tour  (DONE)")

	assert.NotEmpty(t, state.Bio)
	assert.NotEmpty(t, state.Lore)
	assert.Contains(t, []string{"curious", "precise"}, state.Adjective)
	assert.True(t, strings.HasPrefix(state.Topics, "Ada is interested in "))
	assert.Contains(t, state.CharacterPostExamples, "# Example Posts for Ada")
	assert.Contains(t, state.CharacterMessageExamples, "# Example Conversations for Ada")
	assert.Contains(t, state.CharacterMessageExamples, "Ada: a tiny scheduler")
	assert.NotContains(t, state.CharacterMessageExamples, "{{user1}}")
	assert.Equal(t, "# Message Directions for Ada\nbe concise\nask follow-up questions\n", state.MessageDirections)
	assert.Equal(t, "# Post Directions for Ada\nbe concise\nno hashtags\n", state.PostDirections)

	assert.Equal(t, "Possible response actions: ", state.ActionNames)
	assert.Empty(t, state.Actions)
	assert.Empty(t, state.Providers)
	assert.Empty(t, state.Attachments)
}

func TestComposeState_SameSeedSameSample(t *testing.T) {
	compose := func() *types.State {
		rt := newRuntime(t, Options{Rand: rand.New(rand.NewPCG(42, 42))})
		connect(t, rt, roomA)
		state, err := rt.ComposeState(context.Background(),
			&types.Memory{ID: "m", UserID: userBob, RoomID: roomA, Content: types.Content{Text: "hi"}}, nil)
		require.NoError(t, err)
		return state
	}
	a, b := compose(), compose()
	assert.Equal(t, a.Bio, b.Bio)
	assert.Equal(t, a.Lore, b.Lore)
	assert.Equal(t, a.Topic, b.Topic)
	assert.Equal(t, a.Topics, b.Topics)
	assert.Equal(t, a.CharacterMessageExamples, b.CharacterMessageExamples)
}

func TestCollectAttachments(t *testing.T) {
	const hour = int64(60 * 60 * 1000)
	now := int64(100 * hour)
	recent := []types.Memory{
		{CreatedAt: now, Content: types.Content{Attachments: []types.Media{{ID: "new", Text: "fresh text"}}}},
		{CreatedAt: now - hour/2},
		{CreatedAt: now - 2*hour, Content: types.Content{Attachments: []types.Media{{ID: "old", Text: "stale text"}}}},
	}
	original := recent[2].Content.Attachments

	got := collectAttachments(recent, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "old", got[0].ID, "chronological order")
	assert.Equal(t, "[Hidden]", got[0].Text)
	assert.Equal(t, "fresh text", got[1].Text)
	assert.Equal(t, "stale text", original[0].Text, "source attachments are not modified")
	assert.Equal(t, "[Hidden]", recent[2].Content.Attachments[0].Text)

	current := []types.Media{{ID: "current"}}
	assert.Equal(t, current, collectAttachments([]types.Memory{{CreatedAt: now}}, current))
}

func TestComposeState_HidesOldAttachments(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Options{})
	connect(t, rt, roomA)

	now := types.NowMillis()
	addMessage(t, rt, userBob, roomA, "yesterday's chart", now-2*3600_000,
		types.Media{ID: "chart-old", Title: "Old", URL: "https://x/old.png", Text: "old numbers"})
	msg := addMessage(t, rt, userBob, roomA, "today's chart", now,
		types.Media{ID: "chart-new", Title: "New", URL: "https://x/new.png", Text: "new numbers"})

	state, err := rt.ComposeState(ctx, msg, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(state.Attachments, "# Attachments\n"))
	assert.Contains(t, state.Attachments, "ID: chart-old\nName: Old\nURL: https://x/old.png\nType: \nDescription: \nText: [Hidden]")
	assert.Contains(t, state.Attachments, "Text: new numbers")
	assert.NotContains(t, state.Attachments, "old numbers")

	stored, err := rt.MessageManager().GetMemories(ctx, memory.GetMemoriesOptions{RoomID: roomA, Count: 10})
	require.NoError(t, err)
	for _, m := range stored {
		for _, a := range m.Content.Attachments {
			assert.NotEqual(t, "[Hidden]", a.Text, "stored messages keep their attachment text")
		}
	}
}

func TestComposeState_RecentInteractions(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Options{})
	connect(t, rt, roomA)
	connect(t, rt, roomB)

	now := types.NowMillis()
	addMessage(t, rt, userBob, roomB, "hello from the other room", now-2000)
	addMessage(t, rt, rt.AgentID(), roomB, "hi bob", now-1000)
	msg := addMessage(t, rt, userBob, roomA, "back here", now)

	state, err := rt.ComposeState(ctx, msg, nil)
	require.NoError(t, err)
	require.Len(t, state.RecentInteractionsData, 2)
	assert.Contains(t, state.RecentMessageInteractions, "bob: hello from the other room")
	assert.Contains(t, state.RecentMessageInteractions, "Ada: hi bob")
	assert.NotContains(t, state.RecentMessageInteractions, "back here")
	assert.Equal(t, state.RecentMessageInteractions, state.RecentInteractions)
	assert.Contains(t, state.RecentPostInteractions, "Conversation: oom-b")

	// agent 自己的消息不查跨房间交流
	own, err := rt.ComposeState(ctx, &types.Memory{ID: "own", UserID: rt.AgentID(), RoomID: roomA}, nil)
	require.NoError(t, err)
	assert.Empty(t, own.RecentInteractionsData)
}

func TestComposeState_FlatKnowledge(t *testing.T) {
	ctx := context.Background()
	c := testCharacter()
	c.Knowledge = []types.KnowledgeSource{{Text: "The scheduler uses work stealing queues."}}
	rt := newRuntime(t, Options{Character: c})
	require.NoError(t, rt.Initialize(ctx))
	connect(t, rt, roomA)

	state, err := rt.ComposeState(ctx, &types.Memory{
		ID: "q", UserID: userBob, RoomID: roomA,
		Content: types.Content{Text: "The scheduler uses work stealing queues."},
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, state.KnowledgeData)
	assert.Empty(t, state.RAGKnowledgeData)
	assert.Contains(t, state.Knowledge, "work stealing")
}

func TestComposeState_RAGKnowledge(t *testing.T) {
	ctx := context.Background()
	c := testCharacter()
	c.Settings.RAGKnowledge = true
	c.Knowledge = []types.KnowledgeSource{{Text: "The scheduler uses work stealing queues."}}
	rt := newRuntime(t, Options{Character: c})
	require.NoError(t, rt.Initialize(ctx))
	connect(t, rt, roomA)

	state, err := rt.ComposeState(ctx, &types.Memory{
		ID: "q", UserID: userBob, RoomID: roomA,
		Content: types.Content{Text: "The scheduler uses work stealing queues."},
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, state.RAGKnowledgeData)
	assert.Empty(t, state.KnowledgeData)
	assert.Contains(t, state.Knowledge, "work stealing")
}

func TestComposeState_Plugins(t *testing.T) {
	ctx := context.Background()
	always := func(context.Context, *AgentRuntime, *types.Memory, *types.State) bool { return true }
	never := func(context.Context, *AgentRuntime, *types.Memory, *types.State) bool { return false }
	panics := func(context.Context, *AgentRuntime, *types.Memory, *types.State) bool { panic("validator bug") }

	rt := newRuntime(t, Options{
		Actions: []Action{
			{Name: "WAVE", Description: "wave back", Validate: always, Examples: [][]ActionExample{{
				{User: "{{user1}}", Content: types.Content{Text: "hey"}},
				{User: "{{user2}}", Content: types.Content{Text: "*waves*", Action: "WAVE"}},
			}}},
			{Name: "SHOUT", Description: "shout", Validate: never},
			{Name: "CRASH", Description: "crash", Validate: panics},
			{Name: "CONTINUE", Description: "keep talking"},
		},
		Evaluators: []Evaluator{
			{Name: "FACTS", Description: "extract facts", Validate: always},
			{Name: "BROKEN", Description: "broken", Validate: panics},
		},
		Providers: []Provider{
			ProviderFunc(func(context.Context, *AgentRuntime, *types.Memory, *types.State) (string, error) {
				return "It is sunny in Oslo.", nil
			}),
			ProviderFunc(func(context.Context, *AgentRuntime, *types.Memory, *types.State) (string, error) {
				return "ignored", errors.New("weather api down")
			}),
			ProviderFunc(func(context.Context, *AgentRuntime, *types.Memory, *types.State) (string, error) {
				panic("provider bug")
			}),
		},
	})
	connect(t, rt, roomA)

	state, err := rt.ComposeState(ctx, &types.Memory{ID: "m", UserID: userBob, RoomID: roomA, Content: types.Content{Text: "hi"}}, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"WAVE", "CONTINUE"}, state.ActionsData)
	assert.True(t, strings.HasPrefix(state.ActionNames, "Possible response actions: "))
	assert.Contains(t, state.ActionNames, "WAVE")
	assert.NotContains(t, state.ActionNames, "SHOUT")
	assert.NotContains(t, state.ActionNames, "CRASH")
	assert.True(t, strings.HasPrefix(state.Actions, "# Available Actions\n"))
	assert.Contains(t, state.Actions, "WAVE: wave back")
	assert.Contains(t, state.ActionExamples, "*waves* (WAVE)")

	assert.Equal(t, []string{"FACTS"}, state.EvaluatorsData)
	assert.Equal(t, "'FACTS'", state.EvaluatorNames)
	assert.Equal(t, "'FACTS: extract facts'", state.Evaluators)

	assert.Equal(t, "# Additional Information About Ada and The World\nIt is sunny in Oslo.\n", state.Providers)
}

func TestUpdateRecentMessageState(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Options{})
	connect(t, rt, roomA)

	now := types.NowMillis()
	msg := addMessage(t, rt, userBob, roomA, "first", now-1000)
	state, err := rt.ComposeState(ctx, msg, nil)
	require.NoError(t, err)
	require.Len(t, state.RecentMessagesData, 1)

	addMessage(t, rt, rt.AgentID(), roomA, "second", now)
	updated, err := rt.UpdateRecentMessageState(ctx, state)
	require.NoError(t, err)

	require.Len(t, updated.RecentMessagesData, 2)
	for _, m := range updated.RecentMessagesData {
		assert.Nil(t, m.Embedding)
	}
	assert.Contains(t, updated.RecentMessages, "Ada: second")
	assert.Equal(t, state.Bio, updated.Bio)
	assert.Len(t, state.RecentMessagesData, 1, "the original state is untouched")
	assert.NotContains(t, state.RecentMessages, "second")

	_, err = rt.UpdateRecentMessageState(ctx, nil)
	assert.Error(t, err)
}
