package knowledge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/agent/memory"
	"github.com/BaSui01/agentruntime/rag"
	"github.com/BaSui01/agentruntime/types"
)

// 检索与切分参数
const (
	DefaultChunkSize = rag.DefaultChunkSize
	DefaultBleed     = rag.DefaultBleed

	fragmentMatchCount     = 5
	fragmentMatchThreshold = 0.1
)

// Preprocess 与 RAG 共用同一套文本规范化
func Preprocess(content string) string { return rag.Preprocess(content) }

// Knowledge 是非 RAG 模式的知识：整篇文档存入 documents 表，
// 预处理后的片段带向量存入 fragments 表，检索时按片段找回原文档。
type Knowledge struct {
	agentID   string
	documents *memory.Manager
	fragments *memory.Manager
	embedder  memory.Embedder
	logger    *zap.Logger
}

// New 创建 Knowledge。documents 与 fragments 必须属于同一个 agent。
func New(documents, fragments *memory.Manager, embedder memory.Embedder, logger *zap.Logger) *Knowledge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Knowledge{
		agentID:   documents.AgentID(),
		documents: documents,
		fragments: fragments,
		embedder:  embedder,
		logger:    logger.With(zap.String("component", "knowledge")),
	}
}

// Get 返回与消息相关的文档：嵌入消息文本，在片段中检索，再按片段来源读取文档。
func (k *Knowledge) Get(ctx context.Context, message *types.Memory) ([]types.KnowledgeItem, error) {
	if message == nil || message.Content.Text == "" {
		k.logger.Debug("no message text for knowledge lookup")
		return nil, nil
	}
	processed := Preprocess(message.Content.Text)
	if processed == "" {
		return nil, nil
	}

	vec, err := k.embedder.Embed(ctx, processed)
	if err != nil {
		return nil, fmt.Errorf("embed knowledge query: %w", err)
	}
	fragments, err := k.fragments.SearchMemoriesByEmbedding(ctx, vec, memory.SearchOptions{
		RoomID:         k.agentID,
		Count:          fragmentMatchCount,
		MatchThreshold: fragmentMatchThreshold,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(fragments))
	var items []types.KnowledgeItem
	for _, f := range fragments {
		source := f.Content.Source
		if source == "" {
			continue
		}
		if _, dup := seen[source]; dup {
			continue
		}
		seen[source] = struct{}{}

		doc, err := k.documents.GetMemoryByID(ctx, source)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		items = append(items, types.KnowledgeItem{ID: doc.ID, Content: doc.Content})
	}
	return items, nil
}

// Set 写入一篇文档及其片段。chunkSize 为 0、bleed 为负时使用默认值 512 / 20。
// 任一片段写入失败时删除已写入的文档与片段，下次初始化会重新导入。
func (k *Knowledge) Set(ctx context.Context, item types.KnowledgeItem, chunkSize, bleed int) error {
	if item.Content.Text == "" {
		return nil
	}
	if item.ID == "" {
		item.ID = types.StringToUUID(item.Content.Text)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if bleed < 0 {
		bleed = DefaultBleed
	}

	now := types.NowMillis()
	err := k.documents.CreateMemory(ctx, &types.Memory{
		ID:        item.ID,
		AgentID:   k.agentID,
		RoomID:    k.agentID,
		UserID:    k.agentID,
		Content:   item.Content,
		Embedding: k.embedder.ZeroVector(),
		CreatedAt: now,
	}, false)
	if err != nil {
		return fmt.Errorf("store knowledge document %s: %w", item.ID, err)
	}

	chunks := rag.SplitChunks(Preprocess(item.Content.Text), chunkSize, bleed)
	var written []string
	for _, chunk := range chunks {
		vec, err := k.embedder.Embed(ctx, chunk)
		if err != nil {
			k.rollback(ctx, item.ID, written)
			return fmt.Errorf("embed knowledge fragment of %s: %w", item.ID, err)
		}
		fragID := types.StringToUUID(item.ID + chunk)
		err = k.fragments.CreateMemory(ctx, &types.Memory{
			ID:        fragID,
			AgentID:   k.agentID,
			RoomID:    k.agentID,
			UserID:    k.agentID,
			Content:   types.Content{Source: item.ID, Text: chunk},
			Embedding: vec,
			CreatedAt: now,
		}, false)
		if err != nil {
			k.rollback(ctx, item.ID, written)
			return fmt.Errorf("store knowledge fragment of %s: %w", item.ID, err)
		}
		written = append(written, fragID)
	}
	k.logger.Debug("knowledge stored", zap.String("id", item.ID), zap.Int("fragments", len(chunks)))
	return nil
}

// rollback 删除不完整的文档，失败只记录日志
func (k *Knowledge) rollback(ctx context.Context, docID string, fragments []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range fragments {
		if err := k.fragments.RemoveMemory(ctx, id); err != nil {
			k.logger.Warn("failed to remove partial knowledge fragment", zap.String("id", id), zap.Error(err))
		}
	}
	if err := k.documents.RemoveMemory(ctx, docID); err != nil {
		k.logger.Warn("failed to remove partial knowledge document", zap.String("id", docID), zap.Error(err))
	}
}
