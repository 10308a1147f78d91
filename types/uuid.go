package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// StringToUUID derives a deterministic identifier from arbitrary text.
// The same input always yields the same UUID (v5, SHA-1 over the OID namespace).
func StringToUUID(s string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(s)).String()
}

// NewID returns a random identifier for records without a natural key.
func NewID() string {
	return uuid.NewString()
}

// KnowledgeScope separates knowledge visible to every agent from agent-private knowledge.
type KnowledgeScope string

const (
	ScopeShared  KnowledgeScope = "shared"
	ScopePrivate KnowledgeScope = "private"
)

// ScopeFor maps the shared flag of a knowledge source to its scope.
func ScopeFor(shared bool) KnowledgeScope {
	if shared {
		return ScopeShared
	}
	return ScopePrivate
}

// ScopedKnowledgeID derives the id of a knowledge document from its scope and path.
func ScopedKnowledgeID(path string, shared bool) string {
	return StringToUUID(string(ScopeFor(shared)) + "-" + path)
}

// ChunkID names the n-th chunk of a parent knowledge record.
func ChunkID(parentID string, index int) string {
	return fmt.Sprintf("%s-chunk-%d", parentID, index)
}

// ChunkPrefix is the id prefix shared by every chunk of parentID.
func ChunkPrefix(parentID string) string {
	return parentID + "-chunk-"
}

// IsChunkID reports whether id names a chunk of parentID.
func IsChunkID(id, parentID string) bool {
	return strings.HasPrefix(id, ChunkPrefix(parentID))
}
