package sqlstore

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/types"
)

func (s *Store) CreateMemory(ctx context.Context, m *types.Memory, tableName string, unique bool) error {
	if m == nil || m.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "memory id is required")
	}
	if err := s.checkDimensions(m.Embedding); err != nil {
		return err
	}

	rec := memoryToRecord(m, tableName)
	if rec.CreatedAt == 0 {
		rec.CreatedAt = types.NowMillis()
	}
	rec.IsUnique = unique
	if unique && len(m.Embedding) > 0 && !adapter.IsZeroVector(m.Embedding) {
		similar, err := s.searchMemories(ctx, adapter.SearchMemoriesParams{
			TableName:      tableName,
			AgentID:        m.AgentID,
			RoomID:         m.RoomID,
			Embedding:      m.Embedding,
			MatchThreshold: adapter.UniqueThreshold,
			MatchCount:     1,
		})
		if err != nil {
			return storageError(err, "check memory uniqueness")
		}
		rec.IsUnique = len(similar) == 0
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return adapter.DuplicateError("memory", m.ID)
		}
		return storageError(err, "create memory")
	}
	return nil
}

func (s *Store) memoryQuery(ctx context.Context, table, agentID, roomID string, unique bool) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&memoryRecord{}).Where("type = ?", table)
	if agentID != "" {
		q = q.Where("agent_id = ?", agentID)
	}
	if roomID != "" {
		q = q.Where("room_id = ?", roomID)
	}
	if unique {
		q = q.Where("is_unique = ?", true)
	}
	return q
}

func toMemories(recs []memoryRecord) []*types.Memory {
	out := make([]*types.Memory, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toMemory())
	}
	return out
}

func (s *Store) GetMemories(ctx context.Context, p adapter.GetMemoriesParams) ([]*types.Memory, error) {
	q := s.memoryQuery(ctx, p.TableName, p.AgentID, p.RoomID, p.Unique)
	if p.Start > 0 {
		q = q.Where("created_at >= ?", p.Start)
	}
	if p.End > 0 {
		q = q.Where("created_at <= ?", p.End)
	}
	q = q.Order("created_at DESC").Order("id")
	if p.Count > 0 {
		q = q.Limit(p.Count)
	}
	var recs []memoryRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, storageError(err, "get memories")
	}
	return toMemories(recs), nil
}

func (s *Store) GetMemoryByID(ctx context.Context, id string) (*types.Memory, error) {
	var recs []memoryRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Order("type").Limit(1).Find(&recs).Error
	if err != nil {
		return nil, storageError(err, "get memory")
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0].toMemory(), nil
}

func (s *Store) GetMemoriesByRoomIDs(ctx context.Context, p adapter.GetMemoriesByRoomIDsParams) ([]*types.Memory, error) {
	if len(p.RoomIDs) == 0 {
		return nil, nil
	}
	q := s.memoryQuery(ctx, p.TableName, p.AgentID, "", false).
		Where("room_id IN ?", p.RoomIDs).
		Order("created_at DESC").Order("id")
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	var recs []memoryRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, storageError(err, "get memories by rooms")
	}
	return toMemories(recs), nil
}

func (s *Store) SearchMemories(ctx context.Context, p adapter.SearchMemoriesParams) ([]*types.Memory, error) {
	hits, err := s.searchMemories(ctx, p)
	if err != nil {
		return nil, storageError(err, "search memories")
	}
	return hits, nil
}

func (s *Store) searchMemories(ctx context.Context, p adapter.SearchMemoriesParams) ([]*types.Memory, error) {
	if len(p.Embedding) == 0 || adapter.IsZeroVector(p.Embedding) {
		return nil, nil
	}
	q := s.memoryQuery(ctx, p.TableName, p.AgentID, p.RoomID, p.Unique)

	if s.pgvector() {
		vec := pgvector.NewVector(p.Embedding)
		q = q.Select("*, 1 - (embedding <=> ?) AS similarity", vec).
			Where("embedding IS NOT NULL AND vector_dims(embedding) = ? AND vector_norm(embedding) > 0", len(p.Embedding)).
			Where("1 - (embedding <=> ?) >= ?", vec, p.MatchThreshold).
			Clauses(clause.OrderBy{Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}})
		if p.MatchCount > 0 {
			q = q.Limit(p.MatchCount)
		}
		var rows []memoryHit
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]*types.Memory, 0, len(rows))
		for i := range rows {
			m := rows[i].toMemory()
			m.Similarity = rows[i].Similarity
			out = append(out, m)
		}
		return out, nil
	}

	var recs []memoryRecord
	if err := q.Where("embedding IS NOT NULL").Find(&recs).Error; err != nil {
		return nil, err
	}
	hits := make([]*types.Memory, 0, len(recs))
	for i := range recs {
		sim, ok := similarity(p.Embedding, recs[i].Embedding)
		if !ok {
			continue
		}
		m := recs[i].toMemory()
		m.Similarity = sim
		hits = append(hits, m)
	}
	return adapter.SortBySimilarity(hits, func(m *types.Memory) float64 { return m.Similarity }, p.MatchThreshold, p.MatchCount), nil
}

// similarity 与 postgres 路径保持一致：维度不同或零向量不参与比较
func similarity(query, stored []float32) (float64, bool) {
	if len(stored) != len(query) || adapter.IsZeroVector(stored) {
		return 0, false
	}
	return adapter.CosineSimilarity(query, stored), true
}

func (s *Store) GetCachedEmbeddings(ctx context.Context, p adapter.CachedEmbeddingsParams) ([]types.CachedEmbedding, error) {
	var recs []memoryRecord
	err := s.db.WithContext(ctx).
		Select("content", "embedding").
		Where("type = ? AND embedding IS NOT NULL", p.QueryTableName).
		Find(&recs).Error
	if err != nil {
		return nil, storageError(err, "get cached embeddings")
	}
	candidates := make([]adapter.CachedEmbeddingCandidate, 0, len(recs))
	for i := range recs {
		text, err := adapter.ContentField(recs[i].Content.V, p.QueryFieldName, p.QueryFieldSubName)
		if err != nil {
			return nil, types.WrapError(err, types.ErrInvalidRequest, "cached embedding field")
		}
		candidates = append(candidates, adapter.CachedEmbeddingCandidate{Text: text, Embedding: recs[i].Embedding})
	}
	return adapter.RankCachedEmbeddings(p, candidates), nil
}

func (s *Store) RemoveMemory(ctx context.Context, id, tableName string) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND type = ?", id, tableName).
		Delete(&memoryRecord{}).Error
	return storageError(err, "remove memory")
}

func (s *Store) RemoveAllMemories(ctx context.Context, roomID, tableName string) error {
	res := s.db.WithContext(ctx).
		Where("room_id = ? AND type = ?", roomID, tableName).
		Delete(&memoryRecord{})
	if res.Error != nil {
		return storageError(res.Error, "remove room memories")
	}
	s.logger.Debug("room memories removed",
		zap.String("room_id", roomID),
		zap.String("table", tableName),
		zap.Int64("rows", res.RowsAffected),
	)
	return nil
}

func (s *Store) CountMemories(ctx context.Context, roomID string, unique bool, tableName string) (int, error) {
	var n int64
	if err := s.memoryQuery(ctx, tableName, "", roomID, unique).Count(&n).Error; err != nil {
		return 0, storageError(err, "count memories")
	}
	return int(n), nil
}
