package adapter

import (
	"context"
	"errors"

	"github.com/BaSui01/agentruntime/llm/circuitbreaker"
	"github.com/BaSui01/agentruntime/types"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned by every Guarded call while the breaker is open.
var ErrCircuitOpen = circuitbreaker.ErrCircuitOpen

// GuardedOption 配置 Guarded.
type GuardedOption func(*guardedOptions)

type guardedOptions struct {
	config   *circuitbreaker.Config
	logger   *zap.Logger
	onChange func(from, to circuitbreaker.State)
}

// WithBreakerConfig replaces circuitbreaker.DefaultConfig.
func WithBreakerConfig(cfg *circuitbreaker.Config) GuardedOption {
	return func(o *guardedOptions) { o.config = cfg }
}

// WithGuardLogger sets the logger.
func WithGuardLogger(logger *zap.Logger) GuardedOption {
	return func(o *guardedOptions) { o.logger = logger }
}

// WithStateObserver is notified on every breaker transition.
func WithStateObserver(fn func(from, to circuitbreaker.State)) GuardedOption {
	return func(o *guardedOptions) { o.onChange = fn }
}

// Guarded 为任意 DatabaseAdapter 加上熔断保护。
// 连续 5 次失败后打开，60 秒后半开，半开状态下连续 3 次成功后关闭。
// 未找到、重复键与取消不计入失败。
type Guarded struct {
	inner   DatabaseAdapter
	breaker circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ DatabaseAdapter = (*Guarded)(nil)

// NewGuarded wraps inner.
func NewGuarded(inner DatabaseAdapter, opts ...GuardedOption) *Guarded {
	o := guardedOptions{config: circuitbreaker.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	logger := o.logger.With(zap.String("component", "database_adapter"))

	cfg := *o.config
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("database circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()))
		if userHook != nil {
			userHook(from, to)
		}
		if o.onChange != nil {
			o.onChange(from, to)
		}
	}

	return &Guarded{
		inner:   inner,
		breaker: circuitbreaker.NewCircuitBreaker(&cfg, logger),
		logger:  logger,
	}
}

// countsAsFailure 过滤业务性错误，只有存储层故障才推动熔断。
func countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch types.GetErrorCode(err) {
	case types.ErrNotFound, types.ErrDuplicate, types.ErrInvalidRequest:
		return false
	}
	return true
}

// State returns the current breaker state.
func (g *Guarded) State() circuitbreaker.State { return g.breaker.State() }

// Reset closes the breaker manually.
func (g *Guarded) Reset() { g.breaker.Reset() }

// Unwrap returns the wrapped adapter.
func (g *Guarded) Unwrap() DatabaseAdapter { return g.inner }

func guard[T any](ctx context.Context, g *Guarded, fn func(ctx context.Context) (T, error)) (T, error) {
	return circuitbreaker.CallWithResultTyped(ctx, g.breaker, fn)
}

func (g *Guarded) run(ctx context.Context, fn func(ctx context.Context) error) error {
	return g.breaker.Call(ctx, fn)
}

// Init is not guarded: a failing bootstrap should surface directly.
func (g *Guarded) Init(ctx context.Context) error { return g.inner.Init(ctx) }

func (g *Guarded) Close() error { return g.inner.Close() }

func (g *Guarded) CreateMemory(ctx context.Context, m *types.Memory, tableName string, unique bool) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.CreateMemory(ctx, m, tableName, unique) })
}

func (g *Guarded) GetMemories(ctx context.Context, p GetMemoriesParams) ([]*types.Memory, error) {
	return guard(ctx, g, func(ctx context.Context) ([]*types.Memory, error) { return g.inner.GetMemories(ctx, p) })
}

func (g *Guarded) GetMemoryByID(ctx context.Context, id string) (*types.Memory, error) {
	return guard(ctx, g, func(ctx context.Context) (*types.Memory, error) { return g.inner.GetMemoryByID(ctx, id) })
}

func (g *Guarded) GetMemoriesByRoomIDs(ctx context.Context, p GetMemoriesByRoomIDsParams) ([]*types.Memory, error) {
	return guard(ctx, g, func(ctx context.Context) ([]*types.Memory, error) { return g.inner.GetMemoriesByRoomIDs(ctx, p) })
}

func (g *Guarded) SearchMemories(ctx context.Context, p SearchMemoriesParams) ([]*types.Memory, error) {
	return guard(ctx, g, func(ctx context.Context) ([]*types.Memory, error) { return g.inner.SearchMemories(ctx, p) })
}

func (g *Guarded) GetCachedEmbeddings(ctx context.Context, p CachedEmbeddingsParams) ([]types.CachedEmbedding, error) {
	return guard(ctx, g, func(ctx context.Context) ([]types.CachedEmbedding, error) { return g.inner.GetCachedEmbeddings(ctx, p) })
}

func (g *Guarded) RemoveMemory(ctx context.Context, id, tableName string) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.RemoveMemory(ctx, id, tableName) })
}

func (g *Guarded) RemoveAllMemories(ctx context.Context, roomID, tableName string) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.RemoveAllMemories(ctx, roomID, tableName) })
}

func (g *Guarded) CountMemories(ctx context.Context, roomID string, unique bool, tableName string) (int, error) {
	return guard(ctx, g, func(ctx context.Context) (int, error) { return g.inner.CountMemories(ctx, roomID, unique, tableName) })
}

func (g *Guarded) CreateKnowledge(ctx context.Context, item *types.RAGKnowledgeItem) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.CreateKnowledge(ctx, item) })
}

func (g *Guarded) GetKnowledge(ctx context.Context, p GetKnowledgeParams) ([]*types.RAGKnowledgeItem, error) {
	return guard(ctx, g, func(ctx context.Context) ([]*types.RAGKnowledgeItem, error) { return g.inner.GetKnowledge(ctx, p) })
}

func (g *Guarded) SearchKnowledge(ctx context.Context, p SearchKnowledgeParams) ([]*types.RAGKnowledgeItem, error) {
	return guard(ctx, g, func(ctx context.Context) ([]*types.RAGKnowledgeItem, error) { return g.inner.SearchKnowledge(ctx, p) })
}

func (g *Guarded) RemoveKnowledge(ctx context.Context, id string) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.RemoveKnowledge(ctx, id) })
}

func (g *Guarded) ClearKnowledge(ctx context.Context, agentID string, shared bool) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.ClearKnowledge(ctx, agentID, shared) })
}

func (g *Guarded) GetGoals(ctx context.Context, p GetGoalsParams) ([]*types.Goal, error) {
	return guard(ctx, g, func(ctx context.Context) ([]*types.Goal, error) { return g.inner.GetGoals(ctx, p) })
}

func (g *Guarded) CreateGoal(ctx context.Context, goal *types.Goal) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.CreateGoal(ctx, goal) })
}

func (g *Guarded) UpdateGoal(ctx context.Context, goal *types.Goal) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.UpdateGoal(ctx, goal) })
}

func (g *Guarded) RemoveGoal(ctx context.Context, id string) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.RemoveGoal(ctx, id) })
}

func (g *Guarded) RemoveAllGoals(ctx context.Context, roomID string) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.RemoveAllGoals(ctx, roomID) })
}

func (g *Guarded) GetAccountByID(ctx context.Context, id string) (*types.Account, error) {
	return guard(ctx, g, func(ctx context.Context) (*types.Account, error) { return g.inner.GetAccountByID(ctx, id) })
}

func (g *Guarded) CreateAccount(ctx context.Context, a *types.Account) (bool, error) {
	return guard(ctx, g, func(ctx context.Context) (bool, error) { return g.inner.CreateAccount(ctx, a) })
}

func (g *Guarded) GetActorDetails(ctx context.Context, roomID string) ([]types.Actor, error) {
	return guard(ctx, g, func(ctx context.Context) ([]types.Actor, error) { return g.inner.GetActorDetails(ctx, roomID) })
}

func (g *Guarded) GetRoom(ctx context.Context, roomID string) (string, error) {
	return guard(ctx, g, func(ctx context.Context) (string, error) { return g.inner.GetRoom(ctx, roomID) })
}

func (g *Guarded) CreateRoom(ctx context.Context, roomID string) (string, error) {
	return guard(ctx, g, func(ctx context.Context) (string, error) { return g.inner.CreateRoom(ctx, roomID) })
}

func (g *Guarded) RemoveRoom(ctx context.Context, roomID string) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.RemoveRoom(ctx, roomID) })
}

func (g *Guarded) GetRoomsForParticipant(ctx context.Context, userID string) ([]string, error) {
	return guard(ctx, g, func(ctx context.Context) ([]string, error) { return g.inner.GetRoomsForParticipant(ctx, userID) })
}

func (g *Guarded) GetRoomsForParticipants(ctx context.Context, userIDs []string) ([]string, error) {
	return guard(ctx, g, func(ctx context.Context) ([]string, error) { return g.inner.GetRoomsForParticipants(ctx, userIDs) })
}

func (g *Guarded) AddParticipant(ctx context.Context, userID, roomID string) (bool, error) {
	return guard(ctx, g, func(ctx context.Context) (bool, error) { return g.inner.AddParticipant(ctx, userID, roomID) })
}

func (g *Guarded) RemoveParticipant(ctx context.Context, userID, roomID string) (bool, error) {
	return guard(ctx, g, func(ctx context.Context) (bool, error) { return g.inner.RemoveParticipant(ctx, userID, roomID) })
}

func (g *Guarded) GetParticipantsForAccount(ctx context.Context, userID string) ([]types.Participant, error) {
	return guard(ctx, g, func(ctx context.Context) ([]types.Participant, error) { return g.inner.GetParticipantsForAccount(ctx, userID) })
}

func (g *Guarded) GetParticipantsForRoom(ctx context.Context, roomID string) ([]string, error) {
	return guard(ctx, g, func(ctx context.Context) ([]string, error) { return g.inner.GetParticipantsForRoom(ctx, roomID) })
}

func (g *Guarded) GetParticipantUserState(ctx context.Context, roomID, userID string) (types.ParticipantUserState, error) {
	return guard(ctx, g, func(ctx context.Context) (types.ParticipantUserState, error) {
		return g.inner.GetParticipantUserState(ctx, roomID, userID)
	})
}

func (g *Guarded) SetParticipantUserState(ctx context.Context, roomID, userID string, state types.ParticipantUserState) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.SetParticipantUserState(ctx, roomID, userID, state) })
}

func (g *Guarded) GetCache(ctx context.Context, key, agentID string) (string, bool, error) {
	type hit struct {
		value string
		found bool
	}
	h, err := guard(ctx, g, func(ctx context.Context) (hit, error) {
		v, ok, err := g.inner.GetCache(ctx, key, agentID)
		return hit{v, ok}, err
	})
	return h.value, h.found, err
}

func (g *Guarded) SetCache(ctx context.Context, key, agentID, value string) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.SetCache(ctx, key, agentID, value) })
}

func (g *Guarded) DeleteCache(ctx context.Context, key, agentID string) error {
	return g.run(ctx, func(ctx context.Context) error { return g.inner.DeleteCache(ctx, key, agentID) })
}
