package types

// KnowledgeMetadata distinguishes main records from their chunks.
type KnowledgeMetadata struct {
	Source     string `json:"source,omitempty"`
	Type       string `json:"type,omitempty"`
	IsMain     bool   `json:"isMain,omitempty"`
	IsChunk    bool   `json:"isChunk,omitempty"`
	IsShared   bool   `json:"isShared,omitempty"`
	OriginalID string `json:"originalId,omitempty"`
	ChunkIndex int    `json:"chunkIndex,omitempty"`
}

// KnowledgeContent is the text payload of a knowledge item.
type KnowledgeContent struct {
	Text     string             `json:"text"`
	Metadata *KnowledgeMetadata `json:"metadata,omitempty"`
}

// RAGKnowledgeItem is one document or chunk in the knowledge collection.
type RAGKnowledgeItem struct {
	ID        string           `json:"id"`
	AgentID   string           `json:"agentId"`
	Content   KnowledgeContent `json:"content"`
	Embedding []float32        `json:"embedding,omitempty"`
	CreatedAt int64            `json:"createdAt,omitempty"`

	Similarity float64 `json:"similarity,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Meta returns the metadata, never nil.
func (k *RAGKnowledgeItem) Meta() KnowledgeMetadata {
	if k == nil || k.Content.Metadata == nil {
		return KnowledgeMetadata{}
	}
	return *k.Content.Metadata
}

// IsShared reports whether the item belongs to the shared scope.
func (k *RAGKnowledgeItem) IsShared() bool {
	return k.Meta().IsShared
}

// KnowledgeItem is the flat (non-RAG) knowledge form.
type KnowledgeItem struct {
	ID      string  `json:"id"`
	Content Content `json:"content"`
}
