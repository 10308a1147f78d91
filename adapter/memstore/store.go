// Package memstore is an in-process DatabaseAdapter.
//
// Records live in maps guarded by one RWMutex; vectors are indexed in
// chromem-go collections (one per memory table plus one for knowledge) so
// similarity search runs through the same exhaustive cosine search the
// persistent chromem backend uses. Nothing survives Close unless the store was
// opened with a persistence directory.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/types"
)

const knowledgeCollection = "knowledge"

// Option 配置 Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithPersistence keeps the vector index under dir (gob files, optionally gzip).
func WithPersistence(dir string, compress bool) Option {
	return func(s *Store) {
		s.persistDir = dir
		s.compress = compress
	}
}

type participant struct {
	state types.ParticipantUserState
}

// Store implements adapter.DatabaseAdapter in memory.
type Store struct {
	logger     *zap.Logger
	persistDir string
	compress   bool

	db *chromem.DB

	mu           sync.RWMutex
	memories     map[string]map[string]*types.Memory // table -> id
	knowledge    map[string]*types.RAGKnowledgeItem
	goals        map[string]*types.Goal
	accounts     map[string]*types.Account
	rooms        map[string]struct{}
	participants map[string]map[string]*participant // room -> user
	cache        map[string]string
}

var _ adapter.DatabaseAdapter = (*Store)(nil)

// New creates an empty store. Init must be called before use.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("component", "memstore"))
	s.reset()
	return s
}

func (s *Store) reset() {
	s.memories = make(map[string]map[string]*types.Memory)
	s.knowledge = make(map[string]*types.RAGKnowledgeItem)
	s.goals = make(map[string]*types.Goal)
	s.accounts = make(map[string]*types.Account)
	s.rooms = make(map[string]struct{})
	s.participants = make(map[string]map[string]*participant)
	s.cache = make(map[string]string)
}

// Init opens the vector index.
func (s *Store) Init(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	if s.persistDir == "" {
		s.db = chromem.NewDB()
		return nil
	}
	db, err := chromem.NewPersistentDB(s.persistDir, s.compress)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	s.db = db
	return nil
}

// Close drops every record.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.db = nil
	return nil
}

func (s *Store) collection(name string) (*chromem.Collection, error) {
	if s.db == nil {
		return nil, errors.New("memstore: not initialised")
	}
	// 向量由调用方提供，不需要 embedding 函数
	return s.db.GetOrCreateCollection(name, nil, nil)
}

func memoryCollection(table string) string { return "memories_" + table }

func memoryMeta(m *types.Memory) map[string]string {
	return map[string]string{
		"agent_id": m.AgentID,
		"room_id":  m.RoomID,
		"unique":   strconv.FormatBool(m.Unique),
	}
}

// indexable 零向量无法归一化，不进入向量索引。
func indexable(v []float32) bool {
	return len(v) > 0 && !adapter.IsZeroVector(v)
}

// query runs an exhaustive search over the collection, tolerating an empty
// collection and filters that leave fewer documents than requested.
func query(ctx context.Context, col *chromem.Collection, vec []float32, where map[string]string) ([]chromem.Result, error) {
	n := col.Count()
	if n == 0 || !indexable(vec) {
		return nil, nil
	}
	return col.QueryEmbedding(ctx, vec, n, where, nil)
}

func cloneMemory(m *types.Memory) *types.Memory {
	c := *m
	return &c
}

func cloneKnowledge(k *types.RAGKnowledgeItem) *types.RAGKnowledgeItem {
	c := *k
	if k.Content.Metadata != nil {
		md := *k.Content.Metadata
		c.Content.Metadata = &md
	}
	return &c
}

// ---------------------------------------------------------------------------
// Memories
// ---------------------------------------------------------------------------

func (s *Store) CreateMemory(ctx context.Context, m *types.Memory, tableName string, unique bool) error {
	if m == nil || m.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "memory id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.collection(memoryCollection(tableName))
	if err != nil {
		return err
	}
	table := s.memories[tableName]
	if table == nil {
		table = make(map[string]*types.Memory)
		s.memories[tableName] = table
	}
	if _, exists := table[m.ID]; exists {
		return adapter.DuplicateError("memory", m.ID)
	}

	stored := cloneMemory(m)
	stored.Similarity = 0
	if stored.CreatedAt == 0 {
		stored.CreatedAt = types.NowMillis()
	}
	stored.Unique = unique
	if unique && indexable(stored.Embedding) {
		similar, err := query(ctx, col, stored.Embedding, map[string]string{
			"agent_id": stored.AgentID,
			"room_id":  stored.RoomID,
		})
		if err != nil {
			return fmt.Errorf("check memory uniqueness: %w", err)
		}
		for _, r := range similar {
			if float64(r.Similarity) >= adapter.UniqueThreshold {
				stored.Unique = false
				break
			}
		}
	}

	if indexable(stored.Embedding) {
		err := col.AddDocument(ctx, chromem.Document{
			ID:        stored.ID,
			Metadata:  memoryMeta(stored),
			Embedding: append([]float32(nil), stored.Embedding...),
			Content:   stored.Content.Text,
		})
		if err != nil {
			return fmt.Errorf("index memory %s: %w", stored.ID, err)
		}
	}
	table[stored.ID] = stored
	return nil
}

func inRange(createdAt, start, end int64) bool {
	if start > 0 && createdAt < start {
		return false
	}
	if end > 0 && createdAt > end {
		return false
	}
	return true
}

func newestFirst(ms []*types.Memory) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].CreatedAt > ms[j].CreatedAt })
}

func (s *Store) GetMemories(_ context.Context, p adapter.GetMemoriesParams) ([]*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Memory
	for _, m := range s.memories[p.TableName] {
		if p.RoomID != "" && m.RoomID != p.RoomID {
			continue
		}
		if p.AgentID != "" && m.AgentID != p.AgentID {
			continue
		}
		if p.Unique && !m.Unique {
			continue
		}
		if !inRange(m.CreatedAt, p.Start, p.End) {
			continue
		}
		out = append(out, cloneMemory(m))
	}
	newestFirst(out)
	if p.Count > 0 && len(out) > p.Count {
		out = out[:p.Count]
	}
	return out, nil
}

func (s *Store) GetMemoryByID(_ context.Context, id string) (*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, table := range s.memories {
		if m, ok := table[id]; ok {
			return cloneMemory(m), nil
		}
	}
	return nil, nil
}

func (s *Store) GetMemoriesByRoomIDs(_ context.Context, p adapter.GetMemoriesByRoomIDsParams) ([]*types.Memory, error) {
	rooms := make(map[string]struct{}, len(p.RoomIDs))
	for _, r := range p.RoomIDs {
		rooms[r] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Memory
	for _, m := range s.memories[p.TableName] {
		if _, ok := rooms[m.RoomID]; !ok {
			continue
		}
		if p.AgentID != "" && m.AgentID != p.AgentID {
			continue
		}
		out = append(out, cloneMemory(m))
	}
	newestFirst(out)
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

func (s *Store) SearchMemories(ctx context.Context, p adapter.SearchMemoriesParams) ([]*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.collection(memoryCollection(p.TableName))
	if err != nil {
		return nil, err
	}
	where := map[string]string{}
	if p.AgentID != "" {
		where["agent_id"] = p.AgentID
	}
	if p.RoomID != "" {
		where["room_id"] = p.RoomID
	}
	if p.Unique {
		where["unique"] = "true"
	}
	results, err := query(ctx, col, p.Embedding, where)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}

	table := s.memories[p.TableName]
	hits := make([]*types.Memory, 0, len(results))
	for _, r := range results {
		m, ok := table[r.ID]
		if !ok {
			continue
		}
		c := cloneMemory(m)
		c.Similarity = float64(r.Similarity)
		hits = append(hits, c)
	}
	return adapter.SortBySimilarity(hits, func(m *types.Memory) float64 { return m.Similarity }, p.MatchThreshold, p.MatchCount), nil
}

func (s *Store) GetCachedEmbeddings(_ context.Context, p adapter.CachedEmbeddingsParams) ([]types.CachedEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]adapter.CachedEmbeddingCandidate, 0, len(s.memories[p.QueryTableName]))
	for _, m := range s.memories[p.QueryTableName] {
		text, err := adapter.ContentField(m.Content, p.QueryFieldName, p.QueryFieldSubName)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, adapter.CachedEmbeddingCandidate{Text: text, Embedding: m.Embedding})
	}
	return adapter.RankCachedEmbeddings(p, candidates), nil
}

func (s *Store) RemoveMemory(ctx context.Context, id, tableName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := s.memories[tableName]
	if _, ok := table[id]; !ok {
		return nil
	}
	delete(table, id)
	col, err := s.collection(memoryCollection(tableName))
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, id)
}

func (s *Store) RemoveAllMemories(ctx context.Context, roomID, tableName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := s.memories[tableName]
	var ids []string
	for id, m := range table {
		if m.RoomID == roomID {
			ids = append(ids, id)
			delete(table, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	col, err := s.collection(memoryCollection(tableName))
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, ids...)
}

func (s *Store) CountMemories(_ context.Context, roomID string, unique bool, tableName string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.memories[tableName] {
		if m.RoomID == roomID && (!unique || m.Unique) {
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Knowledge
// ---------------------------------------------------------------------------

func knowledgeMeta(k *types.RAGKnowledgeItem) map[string]string {
	return map[string]string{
		"agent_id": k.AgentID,
		"shared":   strconv.FormatBool(k.IsShared()),
	}
}

func (s *Store) CreateKnowledge(ctx context.Context, item *types.RAGKnowledgeItem) error {
	if item == nil || item.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "knowledge id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.knowledge[item.ID]; exists {
		return adapter.DuplicateError("knowledge", item.ID)
	}
	stored := cloneKnowledge(item)
	stored.Similarity, stored.Score = 0, 0
	if stored.CreatedAt == 0 {
		stored.CreatedAt = types.NowMillis()
	}
	if indexable(stored.Embedding) {
		col, err := s.collection(knowledgeCollection)
		if err != nil {
			return err
		}
		err = col.AddDocument(ctx, chromem.Document{
			ID:        stored.ID,
			Metadata:  knowledgeMeta(stored),
			Embedding: append([]float32(nil), stored.Embedding...),
			Content:   stored.Content.Text,
		})
		if err != nil {
			return fmt.Errorf("index knowledge %s: %w", stored.ID, err)
		}
	}
	s.knowledge[stored.ID] = stored
	return nil
}

// visible 私有知识只对所属 agent 可见，共享知识对所有 agent 可见。
func visible(k *types.RAGKnowledgeItem, agentID string) bool {
	return agentID == "" || k.AgentID == agentID || k.IsShared()
}

func (s *Store) GetKnowledge(_ context.Context, p adapter.GetKnowledgeParams) ([]*types.RAGKnowledgeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p.ID != "" {
		k, ok := s.knowledge[p.ID]
		if !ok || !visible(k, p.AgentID) {
			return nil, nil
		}
		return []*types.RAGKnowledgeItem{cloneKnowledge(k)}, nil
	}

	var out []*types.RAGKnowledgeItem
	for _, k := range s.knowledge {
		if visible(k, p.AgentID) {
			out = append(out, cloneKnowledge(k))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

func (s *Store) SearchKnowledge(ctx context.Context, p adapter.SearchKnowledgeParams) ([]*types.RAGKnowledgeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.collection(knowledgeCollection)
	if err != nil {
		return nil, err
	}
	results, err := query(ctx, col, p.Embedding, nil)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	hits := make([]*types.RAGKnowledgeItem, 0, len(results))
	for _, r := range results {
		k, ok := s.knowledge[r.ID]
		if !ok || !visible(k, p.AgentID) {
			continue
		}
		c := cloneKnowledge(k)
		c.Similarity = float64(r.Similarity)
		hits = append(hits, c)
	}
	return adapter.SortBySimilarity(hits, func(k *types.RAGKnowledgeItem) float64 { return k.Similarity }, p.MatchThreshold, p.MatchCount), nil
}

func (s *Store) RemoveKnowledge(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	if prefix, ok := strings.CutSuffix(id, "*"); ok {
		for kid := range s.knowledge {
			if strings.HasPrefix(kid, prefix) {
				ids = append(ids, kid)
			}
		}
	} else {
		for kid := range s.knowledge {
			if kid == id || types.IsChunkID(kid, id) {
				ids = append(ids, kid)
			}
		}
	}
	return s.dropKnowledge(ctx, ids)
}

func (s *Store) ClearKnowledge(ctx context.Context, agentID string, shared bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, k := range s.knowledge {
		if k.AgentID == agentID || (shared && k.IsShared()) {
			ids = append(ids, id)
		}
	}
	return s.dropKnowledge(ctx, ids)
}

func (s *Store) dropKnowledge(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		delete(s.knowledge, id)
	}
	col, err := s.collection(knowledgeCollection)
	if err != nil {
		return err
	}
	return col.Delete(ctx, nil, nil, ids...)
}
