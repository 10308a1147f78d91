package sqlstore

import (
	"context"
	"strings"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/types"
)

func (s *Store) CreateKnowledge(ctx context.Context, item *types.RAGKnowledgeItem) error {
	if item == nil || item.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "knowledge id is required")
	}
	if err := s.checkDimensions(item.Embedding); err != nil {
		return err
	}
	rec := knowledgeToRecord(item)
	if rec.CreatedAt == 0 {
		rec.CreatedAt = types.NowMillis()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return adapter.DuplicateError("knowledge", item.ID)
		}
		return storageError(err, "create knowledge")
	}
	return nil
}

// visibleTo 私有知识只对所属 agent 可见，共享知识对所有 agent 可见
func visibleTo(q *gorm.DB, agentID string) *gorm.DB {
	if agentID == "" {
		return q
	}
	return q.Where("(agent_id = ? OR is_shared = ?)", agentID, true)
}

func (s *Store) GetKnowledge(ctx context.Context, p adapter.GetKnowledgeParams) ([]*types.RAGKnowledgeItem, error) {
	q := visibleTo(s.db.WithContext(ctx).Model(&knowledgeRecord{}), p.AgentID)
	if p.ID != "" {
		q = q.Where("id = ?", p.ID)
	}
	q = q.Order("created_at DESC").Order("id")
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	var recs []knowledgeRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, storageError(err, "get knowledge")
	}
	out := make([]*types.RAGKnowledgeItem, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toItem())
	}
	return out, nil
}

func (s *Store) SearchKnowledge(ctx context.Context, p adapter.SearchKnowledgeParams) ([]*types.RAGKnowledgeItem, error) {
	if len(p.Embedding) == 0 || adapter.IsZeroVector(p.Embedding) {
		return nil, nil
	}
	q := visibleTo(s.db.WithContext(ctx).Model(&knowledgeRecord{}), p.AgentID)

	if s.pgvector() {
		vec := pgvector.NewVector(p.Embedding)
		q = q.Select("*, 1 - (embedding <=> ?) AS similarity", vec).
			Where("embedding IS NOT NULL AND vector_dims(embedding) = ? AND vector_norm(embedding) > 0", len(p.Embedding)).
			Where("1 - (embedding <=> ?) >= ?", vec, p.MatchThreshold).
			Clauses(clause.OrderBy{Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}})
		if p.MatchCount > 0 {
			q = q.Limit(p.MatchCount)
		}
		var rows []knowledgeHit
		if err := q.Find(&rows).Error; err != nil {
			return nil, storageError(err, "search knowledge")
		}
		out := make([]*types.RAGKnowledgeItem, 0, len(rows))
		for i := range rows {
			k := rows[i].toItem()
			k.Similarity = rows[i].Similarity
			out = append(out, k)
		}
		return out, nil
	}

	var recs []knowledgeRecord
	if err := q.Where("embedding IS NOT NULL").Find(&recs).Error; err != nil {
		return nil, storageError(err, "search knowledge")
	}
	hits := make([]*types.RAGKnowledgeItem, 0, len(recs))
	for i := range recs {
		sim, ok := similarity(p.Embedding, recs[i].Embedding)
		if !ok {
			continue
		}
		k := recs[i].toItem()
		k.Similarity = sim
		hits = append(hits, k)
	}
	return adapter.SortBySimilarity(hits, func(k *types.RAGKnowledgeItem) float64 { return k.Similarity }, p.MatchThreshold, p.MatchCount), nil
}

// RemoveKnowledge 删除记录及其分块；以 "*" 结尾时按前缀删除
func (s *Store) RemoveKnowledge(ctx context.Context, id string) error {
	q := s.db.WithContext(ctx)
	if prefix, ok := strings.CutSuffix(id, "*"); ok {
		q = q.Where("id LIKE ?"+likeEscape, likePrefix(prefix))
	} else {
		q = q.Where("id = ? OR id LIKE ?"+likeEscape, id, likePrefix(types.ChunkPrefix(id)))
	}
	return storageError(q.Delete(&knowledgeRecord{}).Error, "remove knowledge")
}

func (s *Store) ClearKnowledge(ctx context.Context, agentID string, shared bool) error {
	q := s.db.WithContext(ctx)
	if shared {
		q = q.Where("agent_id = ? OR is_shared = ?", agentID, true)
	} else {
		q = q.Where("agent_id = ?", agentID)
	}
	return storageError(q.Delete(&knowledgeRecord{}).Error, "clear knowledge")
}
