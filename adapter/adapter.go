package adapter

import (
	"context"

	"github.com/BaSui01/agentruntime/types"
)

// GetMemoriesParams selects the newest memories of a room.
type GetMemoriesParams struct {
	TableName string
	AgentID   string
	RoomID    string
	// Count 为 0 表示不限
	Count  int
	Unique bool
	// Start / End 是 epoch ms 的闭区间，0 表示不限
	Start int64
	End   int64
}

// GetMemoriesByRoomIDsParams selects memories across rooms.
type GetMemoriesByRoomIDsParams struct {
	TableName string
	AgentID   string
	RoomIDs   []string
	Limit     int
}

// SearchMemoriesParams is a vector search over one table.
type SearchMemoriesParams struct {
	TableName      string
	AgentID        string
	RoomID         string
	Embedding      []float32
	MatchThreshold float64
	MatchCount     int
	Unique         bool
}

// CachedEmbeddingsParams looks up stored vectors whose source text is close
// to QueryInput by Levenshtein distance.
type CachedEmbeddingsParams struct {
	QueryTableName    string
	QueryThreshold    int
	QueryInput        string
	QueryFieldName    string
	QueryFieldSubName string
	QueryMatchCount   int
}

// GetKnowledgeParams 直接按 id 或按 agent 列出知识.
type GetKnowledgeParams struct {
	ID      string
	AgentID string
	Limit   int
}

// SearchKnowledgeParams is a vector search over the knowledge collection.
// Shared items are visible to every agent.
type SearchKnowledgeParams struct {
	AgentID        string
	Embedding      []float32
	MatchThreshold float64
	MatchCount     int
	SearchText     string
}

// GetGoalsParams filters goals of a room.
type GetGoalsParams struct {
	AgentID        string
	RoomID         string
	UserID         string
	OnlyInProgress bool
	Count          int
}

// MemoryStore 是记忆相关操作.
type MemoryStore interface {
	CreateMemory(ctx context.Context, m *types.Memory, tableName string, unique bool) error
	GetMemories(ctx context.Context, p GetMemoriesParams) ([]*types.Memory, error)
	// GetMemoryByID returns nil, nil when no record exists.
	GetMemoryByID(ctx context.Context, id string) (*types.Memory, error)
	GetMemoriesByRoomIDs(ctx context.Context, p GetMemoriesByRoomIDsParams) ([]*types.Memory, error)
	SearchMemories(ctx context.Context, p SearchMemoriesParams) ([]*types.Memory, error)
	GetCachedEmbeddings(ctx context.Context, p CachedEmbeddingsParams) ([]types.CachedEmbedding, error)
	RemoveMemory(ctx context.Context, id, tableName string) error
	RemoveAllMemories(ctx context.Context, roomID, tableName string) error
	CountMemories(ctx context.Context, roomID string, unique bool, tableName string) (int, error)
}

// KnowledgeStore 是 RAG 知识相关操作.
type KnowledgeStore interface {
	// CreateKnowledge returns a types.ErrDuplicate error when the id exists.
	CreateKnowledge(ctx context.Context, item *types.RAGKnowledgeItem) error
	GetKnowledge(ctx context.Context, p GetKnowledgeParams) ([]*types.RAGKnowledgeItem, error)
	SearchKnowledge(ctx context.Context, p SearchKnowledgeParams) ([]*types.RAGKnowledgeItem, error)
	// RemoveKnowledge removes the item and its chunks. An id ending in "*"
	// removes every item with that prefix.
	RemoveKnowledge(ctx context.Context, id string) error
	// ClearKnowledge removes every item of the agent, and every shared item too when shared is true.
	ClearKnowledge(ctx context.Context, agentID string, shared bool) error
}

// GoalStore 是目标相关操作.
type GoalStore interface {
	GetGoals(ctx context.Context, p GetGoalsParams) ([]*types.Goal, error)
	CreateGoal(ctx context.Context, g *types.Goal) error
	UpdateGoal(ctx context.Context, g *types.Goal) error
	RemoveGoal(ctx context.Context, id string) error
	RemoveAllGoals(ctx context.Context, roomID string) error
}

// AccountStore 是账户、房间与参与者相关操作.
type AccountStore interface {
	GetAccountByID(ctx context.Context, id string) (*types.Account, error)
	CreateAccount(ctx context.Context, a *types.Account) (bool, error)
	GetActorDetails(ctx context.Context, roomID string) ([]types.Actor, error)

	GetRoom(ctx context.Context, roomID string) (string, error)
	CreateRoom(ctx context.Context, roomID string) (string, error)
	RemoveRoom(ctx context.Context, roomID string) error
	GetRoomsForParticipant(ctx context.Context, userID string) ([]string, error)
	GetRoomsForParticipants(ctx context.Context, userIDs []string) ([]string, error)

	AddParticipant(ctx context.Context, userID, roomID string) (bool, error)
	RemoveParticipant(ctx context.Context, userID, roomID string) (bool, error)
	GetParticipantsForAccount(ctx context.Context, userID string) ([]types.Participant, error)
	GetParticipantsForRoom(ctx context.Context, roomID string) ([]string, error)
	GetParticipantUserState(ctx context.Context, roomID, userID string) (types.ParticipantUserState, error)
	SetParticipantUserState(ctx context.Context, roomID, userID string, state types.ParticipantUserState) error
}

// CacheStore 是按 agent 隔离的键值缓存.
type CacheStore interface {
	// GetCache reports false when the key is absent.
	GetCache(ctx context.Context, key, agentID string) (string, bool, error)
	SetCache(ctx context.Context, key, agentID, value string) error
	DeleteCache(ctx context.Context, key, agentID string) error
}

// DatabaseAdapter is the complete storage contract.
type DatabaseAdapter interface {
	MemoryStore
	KnowledgeStore
	GoalStore
	AccountStore
	CacheStore

	Init(ctx context.Context) error
	Close() error
}

// DuplicateError builds the error CreateKnowledge/CreateMemory return for an existing id.
func DuplicateError(kind, id string) error {
	return types.NewError(types.ErrDuplicate, kind+" "+id+" already exists")
}

// IsDuplicate reports whether err is a duplicate-key error.
func IsDuplicate(err error) bool {
	return types.IsErrorCode(err, types.ErrDuplicate)
}
