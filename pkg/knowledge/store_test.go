package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/docfold/memoria/pkg/errors"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	vec   []float64
	err   error
	calls int
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

type capturePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *capturePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *capturePublisher) seen(subject string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(StoreOptions{MaxEntries: 100})
}

func mustStore(t *testing.T, s *Store, req StoreRequest) MemoryEntry {
	t.Helper()
	entry, err := s.Store(context.Background(), req)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	return entry
}

func TestStoreAndGetByID(t *testing.T) {
	s := newTestStore(t)

	expires := time.Now().Add(time.Hour)
	stored := mustStore(t, s, StoreRequest{
		Type:    TypeCode,
		Content: "func Add(a, b int) int { return a + b }",
		Metadata: Metadata{
			Source:     "ingest",
			PageID:     "page-1",
			FilePath:   "math/add.go",
			SymbolName: "Add",
			Tags:       []string{"math", "arithmetic"},
			Relevance:  0.9,
			Confidence: 0.8,
		},
		ExpiresAt: &expires,
	})

	if stored.ID == "" {
		t.Fatal("Expected assigned ID")
	}
	if stored.CreatedAt.IsZero() || stored.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be assigned")
	}
	if stored.AccessCount != 0 {
		t.Errorf("Expected accessCount 0 on store, got %d", stored.AccessCount)
	}

	got, ok := s.GetByID(stored.ID)
	if !ok {
		t.Fatal("GetByID returned false for stored entry")
	}
	if got.Type != TypeCode {
		t.Errorf("Expected type %q, got %q", TypeCode, got.Type)
	}
	if got.Content != stored.Content {
		t.Errorf("Content mismatch: %q", got.Content)
	}
	if got.Metadata.Source != "ingest" || got.Metadata.PageID != "page-1" {
		t.Errorf("Metadata mismatch: %+v", got.Metadata)
	}
	if got.Metadata.FilePath != "math/add.go" || got.Metadata.SymbolName != "Add" {
		t.Errorf("Metadata mismatch: %+v", got.Metadata)
	}
	if len(got.Metadata.Tags) != 2 {
		t.Errorf("Expected 2 tags, got %v", got.Metadata.Tags)
	}
	if got.Metadata.Relevance != 0.9 || got.Metadata.Confidence != 0.8 {
		t.Errorf("Expected relevance 0.9 confidence 0.8, got %v %v", got.Metadata.Relevance, got.Metadata.Confidence)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt mismatch: %v", got.ExpiresAt)
	}
}

func TestGetByIDMissing(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.GetByID("nope"); ok {
		t.Error("Expected false for unknown id")
	}
}

func TestStoreRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Store(context.Background(), StoreRequest{Type: "bogus", Content: "x"})
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("Expected invalid input error for bad type, got %v", err)
	}

	_, err = s.Store(context.Background(), StoreRequest{Type: TypeCode})
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("Expected invalid input error for empty content, got %v", err)
	}
}

func TestStoreClampsRelevanceConfidence(t *testing.T) {
	s := newTestStore(t)

	entry := mustStore(t, s, StoreRequest{
		Type:     TypeDocumentation,
		Content:  "clamped",
		Metadata: Metadata{Relevance: 1.5, Confidence: -0.2},
	})

	if entry.Metadata.Relevance != 1 {
		t.Errorf("Expected relevance clamped to 1, got %v", entry.Metadata.Relevance)
	}
	if entry.Metadata.Confidence != 0 {
		t.Errorf("Expected confidence clamped to 0, got %v", entry.Metadata.Confidence)
	}
}

func TestStoreNormalizesTags(t *testing.T) {
	s := newTestStore(t)

	entry := mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "tagged",
		Metadata: Metadata{Tags: []string{"a", "b", "a", "", "b"}, Relevance: 1, Confidence: 1},
	})

	if len(entry.Metadata.Tags) != 2 || entry.Metadata.Tags[0] != "a" || entry.Metadata.Tags[1] != "b" {
		t.Errorf("Expected deduplicated tags [a b], got %v", entry.Metadata.Tags)
	}
}

func TestStoreWithEmbeddingProvider(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float64{0.1, 0.2, 0.3}}
	s := NewStore(StoreOptions{MaxEntries: 10, Provider: embedder})

	entry := mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "embedded content",
		Metadata: Metadata{Relevance: 1, Confidence: 1},
	})

	if len(entry.Embedding) != 3 {
		t.Errorf("Expected embedding of length 3, got %v", entry.Embedding)
	}
	if embedder.calls != 1 {
		t.Errorf("Expected 1 provider call, got %d", embedder.calls)
	}
}

func TestStoreEmbeddingFailureDegrades(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	s := NewStore(StoreOptions{MaxEntries: 10, Provider: embedder})

	entry, err := s.Store(context.Background(), StoreRequest{
		Type:     TypeCode,
		Content:  "no embedding",
		Metadata: Metadata{Relevance: 1, Confidence: 1},
	})
	if err != nil {
		t.Fatalf("Expected store to succeed without embedding, got %v", err)
	}
	if entry.Embedding != nil {
		t.Errorf("Expected nil embedding, got %v", entry.Embedding)
	}
}

func TestEvictionBound(t *testing.T) {
	s := NewStore(StoreOptions{MaxEntries: 10})

	var first MemoryEntry
	for i := 0; i < 11; i++ {
		entry := mustStore(t, s, StoreRequest{
			Type:     TypeCode,
			Content:  "entry content",
			Metadata: Metadata{Relevance: 1, Confidence: 1},
		})
		if i == 0 {
			first = entry
		}
	}

	if s.Len() > 10 {
		t.Errorf("Expected at most 10 entries after eviction, got %d", s.Len())
	}
	if _, ok := s.GetByID(first.ID); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	if got := s.Stats().EvictionsTotal; got != 1 {
		t.Errorf("Expected 1 recorded eviction, got %d", got)
	}
}

func TestQueryBasicScenario(t *testing.T) {
	s := newTestStore(t)

	mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "function calculateSum(a, b) { return a + b; }",
		Metadata: Metadata{Tags: []string{"math"}, Relevance: 1, Confidence: 1},
	})

	results := s.Query(Query{Text: "calculate", Limit: 10})
	if len(results) != 1 {
		t.Fatalf("Expected exactly 1 result, got %d", len(results))
	}
	if results[0].Score <= 0 {
		t.Errorf("Expected positive score, got %v", results[0].Score)
	}
}

func TestQueryDefaultLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 15; i++ {
		mustStore(t, s, StoreRequest{
			Type:     TypeCode,
			Content:  "shared searchable content",
			Metadata: Metadata{Relevance: 1, Confidence: 1},
		})
	}

	results := s.Query(Query{Text: "searchable"})
	if len(results) != 10 {
		t.Errorf("Expected default limit of 10, got %d", len(results))
	}
}

func TestQueryThreshold(t *testing.T) {
	s := newTestStore(t)

	mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "threshold subject matter",
		Metadata: Metadata{Relevance: 1, Confidence: 1},
	})

	// One term match scores 0.2
	if got := s.Query(Query{Text: "threshold", Threshold: 0.3}); len(got) != 0 {
		t.Errorf("Expected no results above threshold 0.3, got %d", len(got))
	}
	if got := s.Query(Query{Text: "threshold", Threshold: 0.2}); len(got) != 1 {
		t.Errorf("Expected score equal to threshold to survive, got %d results", len(got))
	}
}

func TestQueryUnionsAcrossIndices(t *testing.T) {
	s := newTestStore(t)

	// Candidate generation unions index matches: an entry matching only one
	// of several query attributes is still scored rather than filtered out.
	byFile := mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "file scoped",
		Metadata: Metadata{FilePath: "pkg/a.go", Relevance: 1, Confidence: 1},
	})
	bySymbol := mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "symbol scoped",
		Metadata: Metadata{SymbolName: "Handler", Relevance: 1, Confidence: 1},
	})
	byTag := mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "tag scoped",
		Metadata: Metadata{Tags: []string{"http"}, Relevance: 1, Confidence: 1},
	})
	mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "unrelated",
		Metadata: Metadata{Relevance: 1, Confidence: 1},
	})

	results := s.Query(Query{
		FilePath:   "pkg/a.go",
		SymbolName: "Handler",
		Tags:       []string{"http"},
		Limit:      10,
	})

	found := map[string]bool{}
	for _, r := range results {
		found[r.Entry.ID] = true
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 union candidates, got %d", len(results))
	}
	for _, want := range []string{byFile.ID, bySymbol.ID, byTag.ID} {
		if !found[want] {
			t.Errorf("Expected entry %s in union results", want)
		}
	}
}

func TestQueryTypeFilter(t *testing.T) {
	s := newTestStore(t)

	mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "filtered content alpha",
		Metadata: Metadata{Relevance: 1, Confidence: 1},
	})
	doc := mustStore(t, s, StoreRequest{
		Type:     TypeDocumentation,
		Content:  "filtered content alpha",
		Metadata: Metadata{Relevance: 1, Confidence: 1},
	})

	results := s.Query(Query{Text: "alpha", Types: []EntryType{TypeDocumentation}})
	if len(results) != 1 {
		t.Fatalf("Expected 1 result after type filter, got %d", len(results))
	}
	if results[0].Entry.ID != doc.ID {
		t.Errorf("Expected documentation entry, got %s", results[0].Entry.Type)
	}
}

func TestQueryExpiry(t *testing.T) {
	s := newTestStore(t)

	past := time.Now().Add(-time.Minute)
	mustStore(t, s, StoreRequest{
		Type:      TypeCode,
		Content:   "expired payload",
		Metadata:  Metadata{Relevance: 1, Confidence: 1},
		ExpiresAt: &past,
	})

	if got := s.Query(Query{Text: "payload"}); len(got) != 0 {
		t.Errorf("Expected expired entry to be filtered, got %d results", len(got))
	}
	if got := s.Query(Query{Text: "payload", IncludeExpired: true}); len(got) != 1 {
		t.Errorf("Expected expired entry with IncludeExpired, got %d results", len(got))
	}
}

func TestQueryTouchesAllSurvivors(t *testing.T) {
	s := newTestStore(t)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		entry := mustStore(t, s, StoreRequest{
			Type:     TypeCode,
			Content:  "touched content",
			Metadata: Metadata{Relevance: 1, Confidence: 1},
		})
		ids = append(ids, entry.ID)
	}

	// Limit cuts the result set to 1, but access stats are touched on the
	// whole match set.
	results := s.Query(Query{Text: "touched", Limit: 1})
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	for _, id := range ids {
		entry, ok := s.GetByID(id)
		if !ok {
			t.Fatalf("Entry %s missing", id)
		}
		if entry.AccessCount != 1 {
			t.Errorf("Expected accessCount 1 for %s, got %d", id, entry.AccessCount)
		}
	}
}

func TestQueryOrderingDeterministic(t *testing.T) {
	s := newTestStore(t)

	first := mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "identical scoring content",
		Metadata: Metadata{Relevance: 1, Confidence: 1},
	})
	second := mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "identical scoring content",
		Metadata: Metadata{Relevance: 1, Confidence: 1},
	})

	results := s.Query(Query{Text: "identical scoring"})
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Entry.ID != first.ID || results[1].Entry.ID != second.ID {
		t.Errorf("Expected insertion order on score ties, got %s then %s", results[0].Entry.ID, results[1].Entry.ID)
	}
	if _, ok := s.GetByID(second.ID); !ok {
		t.Fatal("Second entry should still exist")
	}
}

func TestUpdatePartialMerge(t *testing.T) {
	s := newTestStore(t)

	entry := mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "original content",
		Metadata: Metadata{Source: "ingest", Tags: []string{"old"}, Relevance: 0.5, Confidence: 0.5},
	})

	time.Sleep(5 * time.Millisecond)

	newContent := "replacement content"
	newConf := 1.7
	updated, ok := s.Update(entry.ID, UpdateRequest{
		Content:    &newContent,
		Tags:       []string{"new"},
		Confidence: &newConf,
	})
	if !ok {
		t.Fatal("Update returned false")
	}

	if updated.Content != newContent {
		t.Errorf("Expected content replaced, got %q", updated.Content)
	}
	if updated.Metadata.Confidence != 1 {
		t.Errorf("Expected confidence clamped to 1, got %v", updated.Metadata.Confidence)
	}
	if updated.Metadata.Relevance != 0.5 {
		t.Errorf("Expected untouched relevance 0.5, got %v", updated.Metadata.Relevance)
	}
	if updated.Metadata.Source != "ingest" {
		t.Errorf("Expected untouched source, got %q", updated.Metadata.Source)
	}
	if !updated.UpdatedAt.After(entry.UpdatedAt) {
		t.Error("Expected UpdatedAt to advance")
	}

	// Re-indexing: old tag bucket no longer matches, new one does.
	if got := s.Query(Query{Tags: []string{"old"}}); len(got) != 0 {
		t.Errorf("Expected no matches on replaced tag, got %d", len(got))
	}
	if got := s.Query(Query{Tags: []string{"new"}}); len(got) != 1 {
		t.Errorf("Expected match on new tag, got %d", len(got))
	}
}

func TestUpdateMissing(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.Update("ghost", UpdateRequest{}); ok {
		t.Error("Expected false updating unknown id")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	entry := mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "to delete",
		Metadata: Metadata{FilePath: "del.go", Relevance: 1, Confidence: 1},
	})

	if !s.Delete(entry.ID) {
		t.Fatal("Delete returned false")
	}
	if s.Delete(entry.ID) {
		t.Error("Expected false deleting twice")
	}
	if _, ok := s.GetByID(entry.ID); ok {
		t.Error("Entry still present after delete")
	}
	if got := s.Query(Query{FilePath: "del.go"}); len(got) != 0 {
		t.Errorf("Expected index cleaned up, got %d results", len(got))
	}
}

func TestDeleteMany(t *testing.T) {
	s := newTestStore(t)

	a := mustStore(t, s, StoreRequest{Type: TypeCode, Content: "a", Metadata: Metadata{Relevance: 1, Confidence: 1}})
	b := mustStore(t, s, StoreRequest{Type: TypeCode, Content: "b", Metadata: Metadata{Relevance: 1, Confidence: 1}})

	if got := s.DeleteMany([]string{a.ID, b.ID, "ghost"}); got != 2 {
		t.Errorf("Expected 2 deletions, got %d", got)
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d", s.Len())
	}
}

func TestInvalidate(t *testing.T) {
	s := newTestStore(t)

	mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "handler implementation",
		Metadata: Metadata{FilePath: "api/handler.go", Tags: []string{"http"}, Relevance: 1, Confidence: 1},
	})
	mustStore(t, s, StoreRequest{
		Type:     TypeTest,
		Content:  "handler test",
		Metadata: Metadata{FilePath: "api/handler.go", Tags: []string{"http"}, Relevance: 1, Confidence: 1},
	})
	mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "unrelated",
		Metadata: Metadata{FilePath: "other.go", Relevance: 1, Confidence: 1},
	})

	// All provided fields must match.
	if got := s.Invalidate(InvalidateFilter{FilePath: "api/handler.go", Types: []EntryType{TypeTest}}); got != 1 {
		t.Errorf("Expected 1 invalidated, got %d", got)
	}
	if got := s.Invalidate(InvalidateFilter{FilePath: "api/handler.go"}); got != 1 {
		t.Errorf("Expected remaining file entry invalidated, got %d", got)
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 entry left, got %d", s.Len())
	}
}

func TestInvalidateByTagOverlap(t *testing.T) {
	s := newTestStore(t)

	mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "tagged one",
		Metadata: Metadata{Tags: []string{"auth", "http"}, Relevance: 1, Confidence: 1},
	})
	mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "tagged two",
		Metadata: Metadata{Tags: []string{"storage"}, Relevance: 1, Confidence: 1},
	})

	if got := s.Invalidate(InvalidateFilter{Tags: []string{"auth", "missing"}}); got != 1 {
		t.Errorf("Expected any-tag overlap to remove 1, got %d", got)
	}
}

func TestInvalidateEmptyFilter(t *testing.T) {
	s := newTestStore(t)
	mustStore(t, s, StoreRequest{Type: TypeCode, Content: "keep", Metadata: Metadata{Relevance: 1, Confidence: 1}})

	if got := s.Invalidate(InvalidateFilter{}); got != 0 {
		t.Errorf("Expected empty filter to match nothing, got %d", got)
	}
	if s.Len() != 1 {
		t.Error("Empty filter must not remove entries")
	}
}

func TestExportRestore(t *testing.T) {
	s := newTestStore(t)

	a := mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "export alpha",
		Metadata: Metadata{Tags: []string{"x"}, Relevance: 0.7, Confidence: 0.6},
	})
	mustStore(t, s, StoreRequest{
		Type:     TypeDocumentation,
		Content:  "export beta",
		Metadata: Metadata{Relevance: 1, Confidence: 1},
	})
	s.Query(Query{Text: "alpha"}) // bump access stats

	exported := s.Export()
	if len(exported) != 2 {
		t.Fatalf("Expected 2 exported entries, got %d", len(exported))
	}
	if exported[0].ID != a.ID {
		t.Error("Expected export in insertion order")
	}

	restored := NewStore(StoreOptions{MaxEntries: 100})
	restored.Restore(exported)

	if restored.Len() != 2 {
		t.Fatalf("Expected 2 entries after restore, got %d", restored.Len())
	}
	got, ok := restored.GetByID(a.ID)
	if !ok {
		t.Fatal("Restored store missing entry")
	}
	if got.AccessCount != 1 {
		t.Errorf("Expected preserved accessCount 1, got %d", got.AccessCount)
	}
	if !got.CreatedAt.Equal(a.CreatedAt) {
		t.Error("Expected preserved CreatedAt")
	}
	if res := restored.Query(Query{Tags: []string{"x"}}); len(res) != 1 {
		t.Errorf("Expected rebuilt tag index, got %d results", len(res))
	}
}

func TestRestoreEnforcesCapacity(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		mustStore(t, s, StoreRequest{Type: TypeCode, Content: "cap", Metadata: Metadata{Relevance: 1, Confidence: 1}})
		time.Sleep(time.Millisecond)
	}

	small := NewStore(StoreOptions{MaxEntries: 3})
	small.Restore(s.Export())

	if small.Len() > 3 {
		t.Errorf("Expected restore to respect capacity 3, got %d", small.Len())
	}
}

func TestStorePublishesEvents(t *testing.T) {
	pub := &capturePublisher{}
	s := NewStore(StoreOptions{MaxEntries: 10, Publisher: pub})

	entry := mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "event source",
		Metadata: Metadata{FilePath: "e.go", Relevance: 1, Confidence: 1},
	})
	s.Delete(entry.ID)

	mustStore(t, s, StoreRequest{
		Type:     TypeCode,
		Content:  "event source",
		Metadata: Metadata{FilePath: "e.go", Relevance: 1, Confidence: 1},
	})
	s.Invalidate(InvalidateFilter{FilePath: "e.go"})

	if !pub.seen("knowledge.stored") {
		t.Error("Expected knowledge.stored event")
	}
	if !pub.seen("knowledge.removed") {
		t.Error("Expected knowledge.removed event")
	}
	if !pub.seen("knowledge.invalidated") {
		t.Error("Expected knowledge.invalidated event")
	}
}

func TestStatsSummarizes(t *testing.T) {
	s := newTestStore(t)

	mustStore(t, s, StoreRequest{Type: TypeCode, Content: "one", Metadata: Metadata{Relevance: 1, Confidence: 1}})
	mustStore(t, s, StoreRequest{Type: TypeCode, Content: "two", Metadata: Metadata{Relevance: 1, Confidence: 1}})
	mustStore(t, s, StoreRequest{Type: TypeDecision, Content: "three", Metadata: Metadata{Relevance: 1, Confidence: 1}})
	s.Query(Query{Text: "one"})

	stats := s.Stats()
	if stats.TotalEntries != 3 {
		t.Errorf("Expected 3 entries, got %d", stats.TotalEntries)
	}
	if stats.ByType[TypeCode] != 2 || stats.ByType[TypeDecision] != 1 {
		t.Errorf("Unexpected type counts: %v", stats.ByType)
	}
	if stats.TotalAccesses != 1 {
		t.Errorf("Expected 1 total access, got %d", stats.TotalAccesses)
	}
	if stats.OldestCreated == nil || stats.NewestCreated == nil {
		t.Error("Expected created bounds to be set")
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	mustStore(t, s, StoreRequest{Type: TypeCode, Content: "gone", Metadata: Metadata{Tags: []string{"t"}, Relevance: 1, Confidence: 1}})

	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d", s.Len())
	}
	if got := s.Query(Query{Tags: []string{"t"}}); len(got) != 0 {
		t.Errorf("Expected cleared indices, got %d results", len(got))
	}
}

func TestConcurrentStoreAndQuery(t *testing.T) {
	s := NewStore(StoreOptions{MaxEntries: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := s.Store(context.Background(), StoreRequest{
					Type:     TypeCode,
					Content:  "concurrent content",
					Metadata: Metadata{Relevance: 1, Confidence: 1},
				}); err != nil {
					t.Errorf("Store failed: %v", err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s.Query(Query{Text: "concurrent"})
			}
		}()
	}
	wg.Wait()

	if s.Len() != 200 {
		t.Errorf("Expected 200 entries, got %d", s.Len())
	}
}
