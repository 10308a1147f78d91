package agent

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentruntime/agent/memory"
	"github.com/BaSui01/agentruntime/agent/template"
	"github.com/BaSui01/agentruntime/rag"
	"github.com/BaSui01/agentruntime/types"
)

const tracerName = "github.com/BaSui01/agentruntime/agent"

// 组装上下文时的采样上限
const (
	composeGoalCount        = 10
	interactionLimit        = 20
	knowledgeContextLength  = 3
	knowledgeLimit          = 8
	bioSampleSize           = 3
	loreSampleSize          = 10
	topicSampleSize         = 5
	postExampleSampleSize   = 50
	messageExampleSamples   = 5
	actionExampleCount      = 10
	attachmentHideWindowMs  = 60 * 60 * 1000
	hiddenAttachmentText    = "[Hidden]"
	unknownInteractionActor = "unknown"
)

// ComposeState 为一条消息组装提示词上下文。additionalKeys 写入 State.Extra，
// 在模板替换时优先于计算出的字段。
func (r *AgentRuntime) ComposeState(ctx context.Context, message *types.Memory, additionalKeys map[string]any) (*types.State, error) {
	if message == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "message is required")
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.ComposeState")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.id", r.agentID),
		attribute.String("room.id", message.RoomID))

	state, err := r.composeState(ctx, message, additionalKeys)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return state, nil
}

func (r *AgentRuntime) composeState(ctx context.Context, message *types.Memory, additionalKeys map[string]any) (*types.State, error) {
	var (
		actors  []types.Actor
		recent  []*types.Memory
		goalPtr []*types.Goal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		actors, err = r.db.GetActorDetails(gctx, message.RoomID)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = r.recentMessages(gctx, message.RoomID)
		return err
	})
	g.Go(func() error {
		var err error
		goalPtr, err = r.GetGoals(gctx, GetGoalsOptions{RoomID: message.RoomID, Count: composeGoalCount})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compose state: %w", err)
	}

	recentData := derefMemories(recent)
	goals := make([]types.Goal, 0, len(goalPtr))
	for _, goal := range goalPtr {
		if goal != nil {
			goals = append(goals, *goal)
		}
	}

	agentName := r.character.Name
	if a, ok := actorByID(actors, r.agentID); ok && a.Name != "" {
		agentName = a.Name
	}
	senderName := ""
	if a, ok := actorByID(actors, message.UserID); ok {
		senderName = a.Name
	}

	state := &types.State{
		AgentID:            r.agentID,
		RoomID:             message.RoomID,
		UserID:             message.UserID,
		AgentName:          agentName,
		SenderName:         senderName,
		System:             r.character.System,
		ActorsData:         actors,
		Actors:             template.AddHeader("# Actors", FormatActors(actors)),
		GoalsData:          goals,
		RecentMessagesData: recentData,
		RecentMessages:     template.AddHeader("# Conversation Messages", FormatMessages(recentData, actors)),
		RecentPosts:        template.AddHeader("# Posts in Thread", FormatPosts(recentData, actors, false)),
		Attachments:        template.AddHeader("# Attachments", formatAttachments(collectAttachments(recentData, message.Content.Attachments))),
		MessageDirections:  r.directions("# Message Directions for ", r.character.Style.Chat),
		PostDirections:     r.directions("# Post Directions for ", r.character.Style.Post),
		Extra:              additionalKeys,
	}
	if s := FormatGoalsAsString(goals); s != "" {
		state.Goals = template.AddHeader(
			fmt.Sprintf("# Goals\n%s should prioritize accomplishing the objectives that are in progress.", agentName), s)
	}
	r.sampleCharacter(state)

	if err := r.composeInteractions(ctx, message, actors, state); err != nil {
		return nil, err
	}
	if err := r.composeKnowledge(ctx, message, recentData, state); err != nil {
		return nil, err
	}
	if err := r.composePlugins(ctx, message, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (r *AgentRuntime) recentMessages(ctx context.Context, roomID string) ([]*types.Memory, error) {
	unique := false
	return r.messages.GetMemories(ctx, memory.GetMemoriesOptions{
		RoomID: roomID,
		Count:  r.conversationLength,
		Unique: &unique,
	})
}

func derefMemories(mems []*types.Memory) []types.Memory {
	out := make([]types.Memory, 0, len(mems))
	for _, m := range mems {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// collectAttachments 汇总最近消息的附件，按时间正序。以最新一条带附件消息的时间为基准，
// 更早一小时以上的附件文本替换为 "[Hidden]"。没有带附件的历史消息时返回当前消息的附件。
func collectAttachments(recent []types.Memory, current []types.Media) []types.Media {
	newest := -1
	for i, m := range recent {
		if len(m.Content.Attachments) > 0 {
			newest = i
			break
		}
	}
	if newest < 0 {
		return current
	}

	cutoff := recent[newest].CreatedAt - attachmentHideWindowMs
	var out []types.Media
	for i := len(recent) - 1; i >= 0; i-- {
		m := &recent[i]
		if len(m.Content.Attachments) == 0 {
			continue
		}
		media := append([]types.Media(nil), m.Content.Attachments...)
		if m.CreatedAt < cutoff {
			for j := range media {
				media[j].Text = hiddenAttachmentText
			}
		}
		m.Content.Attachments = media
		out = append(out, media...)
	}
	return out
}

func (r *AgentRuntime) directions(header string, extra []string) string {
	lines := append(append([]string(nil), r.character.Style.All...), extra...)
	if len(lines) == 0 {
		return ""
	}
	return template.AddHeader(header+r.character.Name, strings.Join(lines, "\n"))
}

// sampleCharacter 随机抽取人设片段，使每次提示词有所变化
func (r *AgentRuntime) sampleCharacter(state *types.State) {
	c := r.character
	r.withRand(func(rng *rand.Rand) {
		state.Bio = strings.Join(sample(rng, c.Bio, bioSampleSize), " ")
		state.Lore = strings.Join(sample(rng, c.Lore, loreSampleSize), "\n")
		if len(c.Adjectives) > 0 {
			state.Adjective = c.Adjectives[rng.IntN(len(c.Adjectives))]
		}
		if len(c.Topics) > 0 {
			state.Topic = c.Topics[rng.IntN(len(c.Topics))]
			state.Topics = c.Name + " is interested in " + joinNatural(sample(rng, c.Topics, topicSampleSize))
		}

		posts := strings.Join(sample(rng, c.PostExamples, postExampleSampleSize), "\n")
		if strings.TrimSpace(strings.ReplaceAll(posts, "\n", "")) != "" {
			state.CharacterPostExamples = template.AddHeader("# Example Posts for "+c.Name, posts)
		}

		convos := sample(rng, c.MessageExamples, messageExampleSamples)
		blocks := make([]string, 0, len(convos))
		for _, convo := range convos {
			names := template.RandomNames(rng, 5)
			lines := make([]string, len(convo))
			for i, ex := range convo {
				lines[i] = template.ReplaceUsers(ex.User+": "+ex.Content.Text, names)
			}
			blocks = append(blocks, strings.Join(lines, "\n"))
		}
		if examples := strings.Join(blocks, "\n\n"); strings.TrimSpace(strings.ReplaceAll(examples, "\n", "")) != "" {
			state.CharacterMessageExamples = template.AddHeader("# Example Conversations for "+c.Name, examples)
		}
	})
}

// sample 返回 items 打乱后的前 n 个，不修改 items
func sample[T any](rng *rand.Rand, items []T, n int) []T {
	if len(items) == 0 {
		return nil
	}
	out := append([]T(nil), items...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// joinNatural 把 [a b c] 连接为 "a, b and c"
func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

// composeInteractions 读取发送者与 agent 在其他房间的最近交流
func (r *AgentRuntime) composeInteractions(ctx context.Context, message *types.Memory, actors []types.Actor, state *types.State) error {
	if message.UserID == "" || message.UserID == r.agentID {
		return nil
	}
	rooms, err := r.db.GetRoomsForParticipants(ctx, []string{message.UserID, r.agentID})
	if err != nil {
		return fmt.Errorf("compose state: rooms for participants: %w", err)
	}
	others := rooms[:0:0]
	for _, room := range rooms {
		if room != message.RoomID {
			others = append(others, room)
		}
	}
	interactions, err := r.messages.GetMemoriesByRoomIDs(ctx, others, interactionLimit)
	if err != nil {
		return fmt.Errorf("compose state: recent interactions: %w", err)
	}
	data := derefMemories(interactions)

	senders := make(map[string]string)
	lines := make([]string, 0, len(data))
	for _, m := range data {
		sender, ok := senders[m.UserID]
		if !ok {
			sender = r.interactionSender(ctx, m.UserID)
			senders[m.UserID] = sender
		}
		lines = append(lines, sender+": "+m.Content.Text)
	}

	state.RecentInteractionsData = data
	state.RecentMessageInteractions = strings.Join(lines, "\n")
	state.RecentPostInteractions = FormatPosts(data, actors, true)
	state.RecentInteractions = state.RecentMessageInteractions
	return nil
}

func (r *AgentRuntime) interactionSender(ctx context.Context, userID string) string {
	if userID == r.agentID {
		return r.character.Name
	}
	account, err := r.db.GetAccountByID(ctx, userID)
	if err != nil {
		r.logger.Debug("account lookup failed", zap.String("user_id", userID), zap.Error(err))
		return unknownInteractionActor
	}
	if account == nil || account.Username == "" {
		return unknownInteractionActor
	}
	return account.Username
}

// composeKnowledge 在 RAG 模式下结合最近三条消息检索，否则走平面知识
func (r *AgentRuntime) composeKnowledge(ctx context.Context, message *types.Memory, recent []types.Memory, state *types.State) error {
	if r.character.Settings.RAGKnowledge {
		n := min(knowledgeContextLength, len(recent))
		parts := make([]string, 0, n)
		for i := n - 1; i >= 0; i-- {
			if t := recent[i].Content.Text; t != "" {
				parts = append(parts, t)
			}
		}
		items, err := r.ragKnowledge.GetKnowledge(ctx, rag.GetKnowledgeParams{
			Query:               message.Content.Text,
			ConversationContext: strings.Join(parts, " "),
			Limit:               knowledgeLimit,
		})
		if err != nil {
			return fmt.Errorf("compose state: knowledge: %w", err)
		}
		texts := make([]string, 0, len(items))
		for _, it := range items {
			state.RAGKnowledgeData = append(state.RAGKnowledgeData, *it)
			texts = append(texts, it.Content.Text)
		}
		state.Knowledge = FormatKnowledge(texts)
		return nil
	}

	items, err := r.knowledge.Get(ctx, message)
	if err != nil {
		return fmt.Errorf("compose state: knowledge: %w", err)
	}
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Content.Text
	}
	state.KnowledgeData = items
	state.Knowledge = FormatKnowledge(texts)
	return nil
}

// composePlugins 并发校验动作与评估器，并调用所有提供者
func (r *AgentRuntime) composePlugins(ctx context.Context, message *types.Memory, state *types.State) error {
	actions := r.Actions()
	evaluators := r.Evaluators()
	providers := r.Providers()

	actionOK := make([]bool, len(actions))
	evaluatorOK := make([]bool, len(evaluators))
	providerOut := make([]string, len(providers))

	var wg sync.WaitGroup
	for i := range actions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actionOK[i] = r.safeValidate(ctx, "action", actions[i].Name, actions[i].Validate, message, state)
		}()
	}
	for i := range evaluators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evaluatorOK[i] = r.safeValidate(ctx, "evaluator", evaluators[i].Name, evaluators[i].Validate, message, state)
		}()
	}
	for i := range providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			providerOut[i] = r.safeProvide(ctx, providers[i], message, state)
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	var validActions []Action
	for i, ok := range actionOK {
		if ok {
			validActions = append(validActions, actions[i])
		}
	}
	var validEvaluators []Evaluator
	for i, ok := range evaluatorOK {
		if ok {
			validEvaluators = append(validEvaluators, evaluators[i])
		}
	}

	r.withRand(func(rng *rand.Rand) {
		shuffled := sample(rng, validActions, len(validActions))
		state.ActionNames = "Possible response actions: " + formatActionNames(shuffled)
		if len(validActions) > 0 {
			state.Actions = template.AddHeader("# Available Actions", formatActions(shuffled))
			state.ActionExamples = template.AddHeader("# Action Examples", composeActionExamples(rng, validActions, actionExampleCount))
		}
		if len(validEvaluators) > 0 {
			state.Evaluators = formatEvaluators(validEvaluators)
			state.EvaluatorNames = formatEvaluatorNames(validEvaluators)
			state.EvaluatorExamples = formatEvaluatorExamples(rng, validEvaluators)
		}
	})
	for _, a := range validActions {
		state.ActionsData = append(state.ActionsData, a.Name)
	}
	for _, e := range validEvaluators {
		state.EvaluatorsData = append(state.EvaluatorsData, e.Name)
	}

	var parts []string
	for _, out := range providerOut {
		if out != "" {
			parts = append(parts, out)
		}
	}
	state.Providers = template.AddHeader(
		fmt.Sprintf("# Additional Information About %s and The World", r.character.Name),
		strings.Join(parts, "\n"))
	return nil
}

func (r *AgentRuntime) safeValidate(ctx context.Context, kind, name string, fn ValidateFunc,
	message *types.Memory, state *types.State) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("validate panicked", zap.String(kind, name), zap.Any("panic", p))
			ok = false
		}
	}()
	return validates(ctx, fn, r, message, state)
}

func (r *AgentRuntime) safeProvide(ctx context.Context, p Provider, message *types.Memory, state *types.State) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("provider panicked", zap.Any("panic", rec))
			out = ""
		}
	}()
	out, err := p.Get(ctx, r, message, state)
	if err != nil {
		r.logger.Warn("provider failed", zap.Error(err))
		return ""
	}
	return out
}

// UpdateRecentMessageState 只重新读取最近消息，返回更新后的副本
func (r *AgentRuntime) UpdateRecentMessageState(ctx context.Context, state *types.State) (*types.State, error) {
	if state == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "state is required")
	}
	recent, err := r.recentMessages(ctx, state.RoomID)
	if err != nil {
		return nil, fmt.Errorf("update recent messages: %w", err)
	}
	data := derefMemories(recent)
	for i := range data {
		data[i].Embedding = nil
	}

	updated := *state
	updated.RecentMessagesData = data
	updated.RecentMessages = template.AddHeader("# Conversation Messages", FormatMessages(data, state.ActorsData))
	updated.Attachments = template.AddHeader("# Attachments", formatAttachments(collectAttachments(data, nil)))
	return &updated, nil
}
