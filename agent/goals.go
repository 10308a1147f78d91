package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/types"
)

// 默认读取的目标数
const defaultGoalCount = 5

// GetGoalsOptions 选择房间内的目标
type GetGoalsOptions struct {
	RoomID string
	UserID string
	// OnlyInProgress 为 true 时只返回进行中的目标
	OnlyInProgress bool
	// Count 为 0 时取 5
	Count int
}

// GetGoals 读取本 agent 在房间内的目标
func (r *AgentRuntime) GetGoals(ctx context.Context, opts GetGoalsOptions) ([]*types.Goal, error) {
	count := opts.Count
	if count <= 0 {
		count = defaultGoalCount
	}
	return r.db.GetGoals(ctx, adapter.GetGoalsParams{
		AgentID:        r.agentID,
		RoomID:         opts.RoomID,
		UserID:         opts.UserID,
		OnlyInProgress: opts.OnlyInProgress,
		Count:          count,
	})
}

// UpdateGoal 保存目标的最新状态
func (r *AgentRuntime) UpdateGoal(ctx context.Context, goal *types.Goal) error {
	if goal == nil || goal.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "goal id is required")
	}
	return r.db.UpdateGoal(ctx, goal)
}

// CreateGoal 新建目标，id 为空时自动生成
func (r *AgentRuntime) CreateGoal(ctx context.Context, goal *types.Goal) error {
	if goal == nil {
		return types.NewError(types.ErrInvalidRequest, "goal is required")
	}
	if goal.ID == "" {
		goal.ID = types.NewID()
	}
	if goal.Status == "" {
		goal.Status = types.GoalInProgress
	}
	return r.db.CreateGoal(ctx, goal)
}

// FormatGoalsAsString 把目标渲染为清单：
//
//	Goal: ship v1
//	id: 42
//	Objectives:
//	- [x] write docs  (DONE)
//	- [ ] release  (IN PROGRESS)
func FormatGoalsAsString(goals []types.Goal) string {
	blocks := make([]string, len(goals))
	for i, g := range goals {
		var b strings.Builder
		fmt.Fprintf(&b, "Goal: %s\nid: %s\nObjectives:", g.Name, g.ID)
		for _, o := range g.Objectives {
			mark, status := "[ ]", "IN PROGRESS"
			if o.Completed {
				mark, status = "[x]", "DONE"
			}
			fmt.Fprintf(&b, "\n- %s %s  (%s)", mark, o.Description, status)
		}
		blocks[i] = b.String()
	}
	return strings.Join(blocks, "\n")
}
