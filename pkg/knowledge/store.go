// Package knowledge implements the in-memory knowledge store: typed entries
// with inverted indices over their attributes, heuristic relevance scoring,
// and capacity-bounded eviction.
package knowledge

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/docfold/memoria/pkg/bus"
	apperrors "github.com/docfold/memoria/pkg/errors"
	"github.com/docfold/memoria/pkg/logging"
)

// EmbeddingProvider produces embedding vectors for entry content.
type EmbeddingProvider interface {
	CreateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// memoryIndex holds the inverted indices over entry attributes. Every
// bucket maps an attribute value to the set of entry ids carrying it.
type memoryIndex struct {
	byType   map[EntryType]map[string]struct{}
	byTag    map[string]map[string]struct{}
	byFile   map[string]map[string]struct{}
	bySymbol map[string]map[string]struct{}
	byPage   map[string]map[string]struct{}
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{
		byType:   make(map[EntryType]map[string]struct{}),
		byTag:    make(map[string]map[string]struct{}),
		byFile:   make(map[string]map[string]struct{}),
		bySymbol: make(map[string]map[string]struct{}),
		byPage:   make(map[string]map[string]struct{}),
	}
}

func addToBucket[K comparable](m map[K]map[string]struct{}, key K, id string) {
	bucket, ok := m[key]
	if !ok {
		bucket = make(map[string]struct{})
		m[key] = bucket
	}
	bucket[id] = struct{}{}
}

func removeFromBucket[K comparable](m map[K]map[string]struct{}, key K, id string) {
	bucket, ok := m[key]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(m, key)
	}
}

func (ix *memoryIndex) add(e *MemoryEntry) {
	addToBucket(ix.byType, e.Type, e.ID)
	for _, tag := range e.Metadata.Tags {
		addToBucket(ix.byTag, tag, e.ID)
	}
	if e.Metadata.FilePath != "" {
		addToBucket(ix.byFile, e.Metadata.FilePath, e.ID)
	}
	if e.Metadata.SymbolName != "" {
		addToBucket(ix.bySymbol, e.Metadata.SymbolName, e.ID)
	}
	if e.Metadata.PageID != "" {
		addToBucket(ix.byPage, e.Metadata.PageID, e.ID)
	}
}

func (ix *memoryIndex) remove(e *MemoryEntry) {
	removeFromBucket(ix.byType, e.Type, e.ID)
	for _, tag := range e.Metadata.Tags {
		removeFromBucket(ix.byTag, tag, e.ID)
	}
	if e.Metadata.FilePath != "" {
		removeFromBucket(ix.byFile, e.Metadata.FilePath, e.ID)
	}
	if e.Metadata.SymbolName != "" {
		removeFromBucket(ix.bySymbol, e.Metadata.SymbolName, e.ID)
	}
	if e.Metadata.PageID != "" {
		removeFromBucket(ix.byPage, e.Metadata.PageID, e.ID)
	}
}

// Store holds knowledge entries in memory behind a single lock. Writes
// mutate the entry map and every affected index bucket in one lock
// acquisition; embedding calls happen before the lock is taken.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*MemoryEntry
	index      *memoryIndex
	seq        map[string]uint64
	nextSeq    uint64
	maxEntries int
	evictions  int

	provider  EmbeddingProvider
	publisher bus.Publisher
}

// StoreOptions configures a Store. Provider and Publisher are optional;
// without a provider entries are stored without embeddings, without a
// publisher no events are emitted.
type StoreOptions struct {
	MaxEntries int
	Provider   EmbeddingProvider
	Publisher  bus.Publisher
}

// NewStore creates an empty store. MaxEntries <= 0 falls back to 10000.
func NewStore(opts StoreOptions) *Store {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10000
	}
	return &Store{
		entries:    make(map[string]*MemoryEntry),
		index:      newMemoryIndex(),
		seq:        make(map[string]uint64),
		maxEntries: opts.MaxEntries,
		provider:   opts.Provider,
		publisher:  opts.Publisher,
	}
}

// Store inserts a new entry. The embedding is computed best-effort before
// the store lock is taken; provider failures are logged and the entry is
// stored without an embedding. When the insert pushes the store over its
// capacity the oldest tenth of the capacity is evicted.
func (s *Store) Store(ctx context.Context, req StoreRequest) (MemoryEntry, error) {
	if !req.Type.Valid() {
		return MemoryEntry{}, apperrors.New(apperrors.ErrCodeInvalidInput, "unknown entry type").
			WithContext("type", string(req.Type))
	}
	if req.Content == "" {
		return MemoryEntry{}, apperrors.New(apperrors.ErrCodeInvalidInput, "content must not be empty")
	}

	var embedding []float64
	if s.provider != nil {
		vec, err := s.provider.CreateEmbedding(ctx, req.Content)
		if err != nil {
			logging.Warn(logging.CategoryKnowledge, "embedding_failed", "storing entry without embedding", map[string]any{
				"error": err.Error(),
			})
		} else {
			embedding = vec
		}
	}

	now := time.Now()
	entry := &MemoryEntry{
		ID:      ulid.Make().String(),
		Type:    req.Type,
		Content: req.Content,
		Metadata: Metadata{
			Source:     req.Metadata.Source,
			PageID:     req.Metadata.PageID,
			FilePath:   req.Metadata.FilePath,
			SymbolName: req.Metadata.SymbolName,
			Tags:       normalizeTags(req.Metadata.Tags),
			Relevance:  clamp01(req.Metadata.Relevance),
			Confidence: clamp01(req.Metadata.Confidence),
		},
		Embedding:      embedding,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      req.ExpiresAt,
		LastAccessedAt: now,
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.nextSeq++
	s.seq[entry.ID] = s.nextSeq
	s.index.add(entry)

	var evicted []string
	if len(s.entries) > s.maxEntries {
		evicted = s.evictOldestLocked()
	}
	out := entry.Clone()
	s.mu.Unlock()

	s.publish(bus.SubjectKnowledgeStored, map[string]any{"id": entry.ID, "type": entry.Type})
	if len(evicted) > 0 {
		s.publish(bus.SubjectKnowledgeRemoved, map[string]any{"ids": evicted, "reason": "evicted"})
	}
	return out, nil
}

// evictOldestLocked removes the oldest tenth of the capacity, ordered by
// CreatedAt with insertion sequence as the tiebreak. At least one entry is
// always removed so the store shrinks even at tiny capacities.
func (s *Store) evictOldestLocked() []string {
	count := s.maxEntries / 10
	if count < 1 {
		count = 1
	}

	type aged struct {
		id        string
		createdAt time.Time
		seq       uint64
	}
	all := make([]aged, 0, len(s.entries))
	for id, e := range s.entries {
		all = append(all, aged{id: id, createdAt: e.CreatedAt, seq: s.seq[id]})
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].createdAt.Equal(all[j].createdAt) {
			return all[i].createdAt.Before(all[j].createdAt)
		}
		return all[i].seq < all[j].seq
	})

	if count > len(all) {
		count = len(all)
	}
	removed := make([]string, 0, count)
	for _, victim := range all[:count] {
		s.removeLocked(victim.id)
		removed = append(removed, victim.id)
	}
	s.evictions += len(removed)

	logging.Info(logging.CategoryKnowledge, "entries_evicted", "store over capacity", map[string]any{
		"removed":    len(removed),
		"remaining":  len(s.entries),
		"maxEntries": s.maxEntries,
	})
	return removed
}

func (s *Store) removeLocked(id string) {
	entry, ok := s.entries[id]
	if !ok {
		return
	}
	s.index.remove(entry)
	delete(s.entries, id)
	delete(s.seq, id)
}

// Query scores candidate entries against the query and returns the
// threshold survivors in score order (older entries first on ties),
// truncated to the limit. Every survivor's access statistics are touched,
// including those cut by the limit.
func (s *Store) Query(q Query) []QueryResult {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	now := time.Now()
	providerConfigured := s.provider != nil

	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.candidatesLocked(q)

	var typeFilter map[EntryType]struct{}
	if len(q.Types) > 0 {
		typeFilter = make(map[EntryType]struct{}, len(q.Types))
		for _, t := range q.Types {
			typeFilter[t] = struct{}{}
		}
	}

	type scored struct {
		entry *MemoryEntry
		score float64
		seq   uint64
	}
	matches := make([]scored, 0, len(candidates))
	for _, id := range candidates {
		entry, ok := s.entries[id]
		if !ok {
			continue
		}
		if typeFilter != nil {
			if _, ok := typeFilter[entry.Type]; !ok {
				continue
			}
		}
		if !q.IncludeExpired && entry.Expired(now) {
			continue
		}
		score := scoreEntry(entry, q, providerConfigured)
		if score < q.Threshold {
			continue
		}
		matches = append(matches, scored{entry: entry, score: score, seq: s.seq[id]})
	}

	for _, m := range matches {
		m.entry.AccessCount++
		m.entry.LastAccessedAt = now
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].seq < matches[j].seq
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]QueryResult, len(matches))
	for i, m := range matches {
		results[i] = QueryResult{Entry: m.entry.Clone(), Score: m.score}
	}
	return results
}

// candidatesLocked unions index buckets for the query's file path, symbol
// name, and tags. When none of those are present every entry is a
// candidate; type only narrows, it never seeds.
func (s *Store) candidatesLocked(q Query) []string {
	if q.FilePath == "" && q.SymbolName == "" && len(q.Tags) == 0 {
		ids := make([]string, 0, len(s.entries))
		for id := range s.entries {
			ids = append(ids, id)
		}
		return ids
	}

	set := make(map[string]struct{})
	if q.FilePath != "" {
		for id := range s.index.byFile[q.FilePath] {
			set[id] = struct{}{}
		}
	}
	if q.SymbolName != "" {
		for id := range s.index.bySymbol[q.SymbolName] {
			set[id] = struct{}{}
		}
	}
	for _, tag := range q.Tags {
		for id := range s.index.byTag[tag] {
			set[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// GetByID returns a copy of the entry, or false when absent.
func (s *Store) GetByID(id string) (MemoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return MemoryEntry{}, false
	}
	return entry.Clone(), true
}

// Update merges the non-nil request fields into the entry, re-touching
// UpdatedAt and re-indexing any changed attributes. Returns false when the
// entry does not exist. Embeddings are never computed here; callers that
// want one for new content pass it in the request.
func (s *Store) Update(id string, req UpdateRequest) (MemoryEntry, bool) {
	s.mu.Lock()

	entry, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return MemoryEntry{}, false
	}

	s.index.remove(entry)

	if req.Type != nil && req.Type.Valid() {
		entry.Type = *req.Type
	}
	if req.Content != nil {
		entry.Content = *req.Content
	}
	if req.Source != nil {
		entry.Metadata.Source = *req.Source
	}
	if req.PageID != nil {
		entry.Metadata.PageID = *req.PageID
	}
	if req.FilePath != nil {
		entry.Metadata.FilePath = *req.FilePath
	}
	if req.SymbolName != nil {
		entry.Metadata.SymbolName = *req.SymbolName
	}
	if req.Tags != nil {
		entry.Metadata.Tags = normalizeTags(req.Tags)
	}
	if req.Relevance != nil {
		entry.Metadata.Relevance = clamp01(*req.Relevance)
	}
	if req.Confidence != nil {
		entry.Metadata.Confidence = clamp01(*req.Confidence)
	}
	if req.Embedding != nil {
		entry.Embedding = append([]float64{}, req.Embedding...)
	}
	if req.ExpiresAt != nil {
		t := *req.ExpiresAt
		entry.ExpiresAt = &t
	}
	entry.UpdatedAt = time.Now()

	s.index.add(entry)
	out := entry.Clone()
	s.mu.Unlock()

	return out, true
}

// Delete removes the entry; false when it was not present.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.entries[id]
	if ok {
		s.removeLocked(id)
	}
	s.mu.Unlock()

	if ok {
		s.publish(bus.SubjectKnowledgeRemoved, map[string]any{"ids": []string{id}, "reason": "deleted"})
	}
	return ok
}

// DeleteMany removes the given entries under one lock acquisition and
// returns how many existed.
func (s *Store) DeleteMany(ids []string) int {
	s.mu.Lock()
	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			s.removeLocked(id)
			removed = append(removed, id)
		}
	}
	s.mu.Unlock()

	if len(removed) > 0 {
		s.publish(bus.SubjectKnowledgeRemoved, map[string]any{"ids": removed, "reason": "deleted"})
	}
	return len(removed)
}

// Invalidate removes every entry matching all provided filter fields:
// type membership, exact file path, exact symbol name, exact page id, and
// overlap with any filter tag. An empty filter matches nothing.
func (s *Store) Invalidate(filter InvalidateFilter) int {
	if len(filter.Types) == 0 && filter.FilePath == "" && filter.SymbolName == "" &&
		filter.PageID == "" && len(filter.Tags) == 0 {
		return 0
	}

	var typeFilter map[EntryType]struct{}
	if len(filter.Types) > 0 {
		typeFilter = make(map[EntryType]struct{}, len(filter.Types))
		for _, t := range filter.Types {
			typeFilter[t] = struct{}{}
		}
	}

	s.mu.Lock()
	var removed []string
	for id, entry := range s.entries {
		if typeFilter != nil {
			if _, ok := typeFilter[entry.Type]; !ok {
				continue
			}
		}
		if filter.FilePath != "" && entry.Metadata.FilePath != filter.FilePath {
			continue
		}
		if filter.SymbolName != "" && entry.Metadata.SymbolName != filter.SymbolName {
			continue
		}
		if filter.PageID != "" && entry.Metadata.PageID != filter.PageID {
			continue
		}
		if len(filter.Tags) > 0 && !sharesTag(entry.Metadata.Tags, filter.Tags) {
			continue
		}
		removed = append(removed, id)
	}
	for _, id := range removed {
		s.removeLocked(id)
	}
	s.mu.Unlock()

	if len(removed) > 0 {
		s.publish(bus.SubjectKnowledgeInvalidated, map[string]any{"ids": removed, "count": len(removed)})
	}
	return len(removed)
}

func sharesTag(entryTags, filterTags []string) bool {
	for _, have := range entryTags {
		for _, want := range filterTags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*MemoryEntry)
	s.index = newMemoryIndex()
	s.seq = make(map[string]uint64)
	s.mu.Unlock()
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Export returns copies of every entry in insertion order, for snapshots.
func (s *Store) Export() []MemoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MemoryEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out
}

// Restore replaces the store contents with the given entries, preserving
// their ids, timestamps, and access counters. Insertion sequence follows
// slice order. The capacity bound is enforced after loading.
func (s *Store) Restore(entries []MemoryEntry) {
	s.mu.Lock()
	s.entries = make(map[string]*MemoryEntry, len(entries))
	s.index = newMemoryIndex()
	s.seq = make(map[string]uint64, len(entries))
	s.nextSeq = 0

	for i := range entries {
		e := entries[i].Clone()
		e.Metadata.Tags = normalizeTags(e.Metadata.Tags)
		e.Metadata.Relevance = clamp01(e.Metadata.Relevance)
		e.Metadata.Confidence = clamp01(e.Metadata.Confidence)
		if _, dup := s.entries[e.ID]; dup {
			continue
		}
		s.entries[e.ID] = &e
		s.nextSeq++
		s.seq[e.ID] = s.nextSeq
		s.index.add(&e)
	}

	for len(s.entries) > s.maxEntries {
		s.evictOldestLocked()
	}
	s.mu.Unlock()
}

// Stats summarizes the store contents.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		TotalEntries:   len(s.entries),
		ByType:         make(map[EntryType]int),
		EvictionsTotal: s.evictions,
	}
	for _, entry := range s.entries {
		stats.ByType[entry.Type]++
		if len(entry.Embedding) > 0 {
			stats.WithEmbedding++
		}
		stats.TotalAccesses += entry.AccessCount
		created := entry.CreatedAt
		if stats.OldestCreated == nil || created.Before(*stats.OldestCreated) {
			t := created
			stats.OldestCreated = &t
		}
		if stats.NewestCreated == nil || created.After(*stats.NewestCreated) {
			t := created
			stats.NewestCreated = &t
		}
	}
	return stats
}

// publish emits a bus event when a publisher is configured. Marshal
// failures only log; events are advisory.
func (s *Store) publish(subject string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Warn(logging.CategoryBus, "marshal_failed", "dropping event", map[string]any{
			"subject": subject,
			"error":   err.Error(),
		})
		return
	}
	if err := s.publisher.Publish(subject, data); err != nil {
		logging.Warn(logging.CategoryBus, "publish_failed", "dropping event", map[string]any{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}
