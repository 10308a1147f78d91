package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/BaSui01/agentruntime/types"
)

// =============================================================================
// 列类型
// =============================================================================

// vectorColumn 以 pgvector 文本格式 "[1,2,3]" 存储向量。postgres 上是原生
// vector 列，mysql/sqlite 上是文本列，扫描与写入都走 pgvector.Vector。
// 空向量存为 NULL。
type vectorColumn []float32

func (v vectorColumn) Value() (driver.Value, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return pgvector.NewVector(v).Value()
}

func (v *vectorColumn) Scan(src any) error {
	if src == nil {
		*v = nil
		return nil
	}
	var pv pgvector.Vector
	if err := pv.Scan(src); err != nil {
		return fmt.Errorf("scan vector: %w", err)
	}
	*v = pv.Slice()
	return nil
}

func (vectorColumn) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "vector"
	case "mysql":
		return "longtext"
	default:
		return "text"
	}
}

// jsonColumn 将任意值序列化为 JSON 存储。
type jsonColumn[T any] struct {
	V T
}

func newJSON[T any](v T) jsonColumn[T] { return jsonColumn[T]{V: v} }

func (j jsonColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *jsonColumn[T]) Scan(src any) error {
	var data []byte
	switch s := src.(type) {
	case nil:
		return nil
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return fmt.Errorf("scan json: unsupported type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &j.V)
}

func (jsonColumn[T]) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "jsonb"
	case "mysql":
		return "json"
	default:
		return "text"
	}
}

// =============================================================================
// 表模型（与 internal/migration 下的 SQL 保持一致）
// =============================================================================

// memoryRecord 所有记忆表共用 memories，以 type 区分
type memoryRecord struct {
	ID        string                    `gorm:"primaryKey;size:191"`
	Type      string                    `gorm:"primaryKey;size:64;index:idx_memories_room,priority:1"`
	AgentID   string                    `gorm:"size:191;index"`
	UserID    string                    `gorm:"size:191"`
	RoomID    string                    `gorm:"size:191;index:idx_memories_room,priority:2"`
	Content   jsonColumn[types.Content] `gorm:"not null"`
	Embedding vectorColumn
	CreatedAt int64 `gorm:"autoCreateTime:milli;index"`
	IsUnique  bool
}

func (memoryRecord) TableName() string { return "memories" }

func memoryToRecord(m *types.Memory, table string) *memoryRecord {
	return &memoryRecord{
		ID:        m.ID,
		Type:      table,
		AgentID:   m.AgentID,
		UserID:    m.UserID,
		RoomID:    m.RoomID,
		Content:   newJSON(m.Content),
		Embedding: vectorColumn(m.Embedding),
		CreatedAt: m.CreatedAt,
		IsUnique:  m.Unique,
	}
}

func (r *memoryRecord) toMemory() *types.Memory {
	return &types.Memory{
		ID:        r.ID,
		AgentID:   r.AgentID,
		UserID:    r.UserID,
		RoomID:    r.RoomID,
		Content:   r.Content.V,
		Embedding: []float32(r.Embedding),
		CreatedAt: r.CreatedAt,
		Unique:    r.IsUnique,
	}
}

// memoryHit 是带相似度的检索结果行
type memoryHit struct {
	memoryRecord
	Similarity float64 `gorm:"->"`
}

// knowledgeRecord 主记录与分块共用一张表，由 is_main / original_id 区分
type knowledgeRecord struct {
	ID         string                             `gorm:"primaryKey;size:191"`
	AgentID    string                             `gorm:"size:191;index"`
	Content    jsonColumn[types.KnowledgeContent] `gorm:"not null"`
	Embedding  vectorColumn
	CreatedAt  int64  `gorm:"autoCreateTime:milli"`
	IsMain     bool   `gorm:"default:false"`
	OriginalID string `gorm:"size:191;index"`
	ChunkIndex int    `gorm:"default:0"`
	IsShared   bool   `gorm:"default:false;index"`
}

func (knowledgeRecord) TableName() string { return "knowledge" }

func knowledgeToRecord(k *types.RAGKnowledgeItem) *knowledgeRecord {
	meta := k.Meta()
	return &knowledgeRecord{
		ID:         k.ID,
		AgentID:    k.AgentID,
		Content:    newJSON(k.Content),
		Embedding:  vectorColumn(k.Embedding),
		CreatedAt:  k.CreatedAt,
		IsMain:     meta.IsMain,
		OriginalID: meta.OriginalID,
		ChunkIndex: meta.ChunkIndex,
		IsShared:   meta.IsShared,
	}
}

func (r *knowledgeRecord) toItem() *types.RAGKnowledgeItem {
	return &types.RAGKnowledgeItem{
		ID:        r.ID,
		AgentID:   r.AgentID,
		Content:   r.Content.V,
		Embedding: []float32(r.Embedding),
		CreatedAt: r.CreatedAt,
	}
}

type knowledgeHit struct {
	knowledgeRecord
	Similarity float64 `gorm:"->"`
}

type goalRecord struct {
	ID         string                        `gorm:"primaryKey;size:191"`
	RoomID     string                        `gorm:"size:191;index"`
	UserID     string                        `gorm:"size:191"`
	Name       string                        `gorm:"size:255"`
	Status     string                        `gorm:"size:32;index"`
	Objectives jsonColumn[[]types.Objective] `gorm:"not null"`
	CreatedAt  int64                         `gorm:"autoCreateTime:milli"`
}

func (goalRecord) TableName() string { return "goals" }

func goalToRecord(g *types.Goal) *goalRecord {
	objectives := g.Objectives
	if objectives == nil {
		objectives = []types.Objective{}
	}
	return &goalRecord{
		ID:         g.ID,
		RoomID:     g.RoomID,
		UserID:     g.UserID,
		Name:       g.Name,
		Status:     string(g.Status),
		Objectives: newJSON(objectives),
	}
}

func (r *goalRecord) toGoal() *types.Goal {
	return &types.Goal{
		ID:         r.ID,
		RoomID:     r.RoomID,
		UserID:     r.UserID,
		Name:       r.Name,
		Status:     types.GoalStatus(r.Status),
		Objectives: r.Objectives.V,
	}
}

type accountRecord struct {
	ID        string                    `gorm:"primaryKey;size:191"`
	Name      string                    `gorm:"size:255"`
	Username  string                    `gorm:"size:255"`
	Email     string                    `gorm:"size:255"`
	AvatarURL string                    `gorm:"size:1024"`
	Details   jsonColumn[map[string]any] `gorm:"not null"`
	CreatedAt int64                     `gorm:"autoCreateTime:milli"`
}

func (accountRecord) TableName() string { return "accounts" }

func (r *accountRecord) toAccount() *types.Account {
	return &types.Account{
		ID:        r.ID,
		Name:      r.Name,
		Username:  r.Username,
		Email:     r.Email,
		AvatarURL: r.AvatarURL,
		Details:   r.Details.V,
	}
}

type roomRecord struct {
	ID        string `gorm:"primaryKey;size:191"`
	CreatedAt int64  `gorm:"autoCreateTime:milli"`
}

func (roomRecord) TableName() string { return "rooms" }

type participantRecord struct {
	ID        string `gorm:"primaryKey;size:191"`
	UserID    string `gorm:"size:191;uniqueIndex:idx_participants_user_room,priority:1"`
	RoomID    string `gorm:"size:191;uniqueIndex:idx_participants_user_room,priority:2;index"`
	UserState string `gorm:"size:32"`
	CreatedAt int64  `gorm:"autoCreateTime:milli"`
}

func (participantRecord) TableName() string { return "participants" }

func participantID(roomID, userID string) string {
	return types.StringToUUID(roomID + "-" + userID)
}

type cacheRecord struct {
	Key       string `gorm:"primaryKey;size:191"`
	AgentID   string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text"`
	CreatedAt int64  `gorm:"autoCreateTime:milli"`
}

func (cacheRecord) TableName() string { return "cache" }

// Models 返回需要 AutoMigrate 的全部模型
func Models() []any {
	return []any{
		&memoryRecord{},
		&knowledgeRecord{},
		&goalRecord{},
		&accountRecord{},
		&roomRecord{},
		&participantRecord{},
		&cacheRecord{},
	}
}
