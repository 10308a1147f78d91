package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/agent/template"
	"github.com/BaSui01/agentruntime/internal/ctxkeys"
	"github.com/BaSui01/agentruntime/llm"
	"github.com/BaSui01/agentruntime/llm/generation"
	"github.com/BaSui01/agentruntime/types"
)

// MessageOptions 配置一次消息处理
type MessageOptions struct {
	ConnectionOptions
	// Extra 写入 State.Extra，供自定义模板使用
	Extra map[string]any
}

// HandleMessage 处理一条用户消息并返回 agent 写入的回复：
// 建立连接、保存消息、组装上下文、生成回复、执行动作，最后运行评估器。
// 模型没有给出文本和动作时返回 nil，只运行 AlwaysRun 评估器。
func (r *AgentRuntime) HandleMessage(ctx context.Context, message *types.Memory, opts MessageOptions) ([]*types.Memory, error) {
	if message == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "message is required")
	}
	if r.generator == nil {
		return nil, types.NewError(types.ErrProviderNotSet, "no generator configured")
	}
	if err := r.EnsureConnection(ctx, message.UserID, message.RoomID, opts.ConnectionOptions); err != nil {
		return nil, err
	}

	message.AgentID = r.agentID
	if message.ID == "" {
		message.ID = types.NewID()
	}
	ctx = ctxkeys.WithRunID(ctx, message.ID)
	if err := r.saveMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	state, err := r.ComposeState(ctx, message, opts.Extra)
	if err != nil {
		return nil, err
	}

	content, err := r.generator.GenerateMessageResponse(ctx, generation.Request{
		Context:    template.ComposeContext(state, template.Get(r.character, template.MessageHandler)),
		System:     r.character.System,
		Provider:   r.modelProvider,
		ModelClass: llm.ModelClassLarge,
	})
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}

	var (
		mu        sync.Mutex
		responses []*types.Memory
	)
	callback := func(ctx context.Context, c types.Content) ([]*types.Memory, error) {
		if c.InReplyTo == "" {
			c.InReplyTo = message.ID
		}
		reply := &types.Memory{
			ID:      types.NewID(),
			AgentID: r.agentID,
			UserID:  r.agentID,
			RoomID:  message.RoomID,
			Content: c,
		}
		if err := r.saveMessage(ctx, reply); err != nil {
			return nil, err
		}
		mu.Lock()
		responses = append(responses, reply)
		mu.Unlock()
		return []*types.Memory{reply}, nil
	}

	if content.Text == "" && content.Action == "" {
		r.logger.Debug("empty response, nothing to send", zap.String("message_id", message.ID))
		if _, err := r.Evaluate(ctx, message, state, false, callback); err != nil {
			r.logger.Warn("evaluation failed", zap.Error(err))
		}
		return responses, nil
	}

	content.InReplyTo = message.ID
	response := &types.Memory{
		ID:      types.StringToUUID(message.ID + "-" + r.agentID),
		AgentID: r.agentID,
		UserID:  r.agentID,
		RoomID:  message.RoomID,
		Content: content,
	}
	if err := r.saveMessage(ctx, response); err != nil {
		return nil, fmt.Errorf("save response: %w", err)
	}
	responses = append(responses, response)

	state, err = r.UpdateRecentMessageState(ctx, state)
	if err != nil {
		return responses, err
	}
	r.ProcessActions(ctx, message, []*types.Memory{response}, state, callback)
	if _, err := r.Evaluate(ctx, message, state, true, callback); err != nil {
		r.logger.Warn("evaluation failed", zap.Error(err))
	}

	mu.Lock()
	defer mu.Unlock()
	return responses, nil
}

// saveMessage 补充向量后写入消息表。没有文本的消息使用零向量。
func (r *AgentRuntime) saveMessage(ctx context.Context, m *types.Memory) error {
	if m.Content.Text == "" {
		m.Embedding = r.embedder.ZeroVector()
	} else if _, err := r.messages.AddEmbeddingToMemory(ctx, m); err != nil {
		return err
	}
	return r.messages.CreateMemory(ctx, m, true)
}
