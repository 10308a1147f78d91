package agent

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentruntime/types"
)

// ConnectionOptions 描述外部用户，留空时使用由 id 派生的名字
type ConnectionOptions struct {
	UserName   string
	ScreenName string
	Email      string
	Source     string
}

// EnsureConnection 确保 agent 与用户的账户、房间以及双方的成员关系都已存在
func (r *AgentRuntime) EnsureConnection(ctx context.Context, userID, roomID string, opts ConnectionOptions) error {
	if userID == "" || roomID == "" {
		return types.NewError(types.ErrInvalidRequest, "user id and room id are required")
	}

	agentUsername := firstNonEmpty(r.character.Username, r.character.Name, "Agent")
	agentName := firstNonEmpty(r.character.Name, "Agent")
	userName := firstNonEmpty(opts.UserName, "User"+userID)
	screenName := firstNonEmpty(opts.ScreenName, "User"+userID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.EnsureUserExists(gctx, r.agentID, agentUsername, agentName, "") })
	if userID != r.agentID {
		g.Go(func() error { return r.EnsureUserExists(gctx, userID, userName, screenName, opts.Email) })
	}
	g.Go(func() error { return r.EnsureRoomExists(gctx, roomID) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("ensure connection: %w", err)
	}

	// 成员关系依赖账户与房间，单独一轮
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error { return r.EnsureParticipantInRoom(gctx, userID, roomID) })
	if userID != r.agentID {
		g.Go(func() error { return r.EnsureParticipantInRoom(gctx, r.agentID, roomID) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("ensure connection: %w", err)
	}
	return nil
}

// EnsureUserExists 账户不存在时创建
func (r *AgentRuntime) EnsureUserExists(ctx context.Context, userID, userName, name, email string) error {
	account, err := r.db.GetAccountByID(ctx, userID)
	if err != nil {
		return err
	}
	if account != nil {
		return nil
	}
	created, err := r.db.CreateAccount(ctx, &types.Account{
		ID:       userID,
		Name:     name,
		Username: userName,
		Email:    firstNonEmpty(email, userID),
		Details:  map[string]any{"summary": ""},
	})
	if err != nil {
		return err
	}
	if created {
		r.logger.Debug("account created", zap.String("user_id", userID), zap.String("username", userName))
	}
	return nil
}

// EnsureRoomExists 房间不存在时创建
func (r *AgentRuntime) EnsureRoomExists(ctx context.Context, roomID string) error {
	room, err := r.db.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room != "" {
		return nil
	}
	if _, err := r.db.CreateRoom(ctx, roomID); err != nil {
		return err
	}
	r.logger.Debug("room created", zap.String("room_id", roomID))
	return nil
}

// EnsureParticipantInRoom 用户不在房间内时加入
func (r *AgentRuntime) EnsureParticipantInRoom(ctx context.Context, userID, roomID string) error {
	participants, err := r.db.GetParticipantsForRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if slices.Contains(participants, userID) {
		return nil
	}
	if _, err := r.db.AddParticipant(ctx, userID, roomID); err != nil {
		return err
	}
	if userID == r.agentID {
		r.logger.Info("agent linked to room", zap.String("room_id", roomID))
	} else {
		r.logger.Debug("user linked to room", zap.String("user_id", userID), zap.String("room_id", roomID))
	}
	return nil
}
