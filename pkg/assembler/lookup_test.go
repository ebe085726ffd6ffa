package assembler

import (
	"testing"

	"github.com/docfold/memoria/pkg/knowledge"
)

func TestRelevantSymbolsCacheFirst(t *testing.T) {
	a, store := newTestAssembler(t, Options{})
	entry := seedEntry(t, store, knowledge.TypeCode, "walks the parse tree", knowledge.Metadata{SymbolName: "ParseDocument"})

	got := a.RelevantSymbols("ParseDocument")
	if len(got) != 1 || got[0].ID != entry.ID {
		t.Fatalf("RelevantSymbols = %v, want the stored entry", got)
	}

	// Repeat lookups serve the cached best match even after the store
	// entry is gone.
	store.Delete(entry.ID)
	again := a.RelevantSymbols("ParseDocument")
	if len(again) != 1 || again[0].ID != entry.ID {
		t.Fatalf("cached lookup = %v, want the original entry", again)
	}

	if missing := a.RelevantSymbols("NoSuchSymbol"); len(missing) != 0 {
		t.Errorf("unknown symbol returned %d entries", len(missing))
	}
}

func TestRelevantFilesReturnsMatches(t *testing.T) {
	a, store := newTestAssembler(t, Options{})
	first := seedEntry(t, store, knowledge.TypeCode, "parser entry point", knowledge.Metadata{FilePath: "pkg/parse.go"})
	second := seedEntry(t, store, knowledge.TypeTest, "parser test cases", knowledge.Metadata{FilePath: "pkg/parse.go"})
	seedEntry(t, store, knowledge.TypeCode, "unrelated file", knowledge.Metadata{FilePath: "pkg/other.go"})

	got := a.RelevantFiles("pkg/parse.go")
	if len(got) != 2 {
		t.Fatalf("RelevantFiles = %d entries, want 2", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != second.ID {
		t.Errorf("entries out of insertion order: %s, %s", got[0].ID, got[1].ID)
	}

	cached := a.RelevantFiles("pkg/parse.go")
	if len(cached) != 1 || cached[0].ID != first.ID {
		t.Errorf("repeat lookup should serve the cached best match")
	}
}

func TestInvalidateFileDropsCacheAndStore(t *testing.T) {
	a, store := newTestAssembler(t, Options{})
	first := seedEntry(t, store, knowledge.TypeCode, "parser entry point", knowledge.Metadata{FilePath: "pkg/parse.go"})
	seedEntry(t, store, knowledge.TypeTest, "parser test cases", knowledge.Metadata{FilePath: "pkg/parse.go"})
	a.RelevantFiles("pkg/parse.go")

	if n := a.InvalidateFile("pkg/parse.go"); n != 2 {
		t.Fatalf("InvalidateFile removed %d entries, want 2", n)
	}
	if _, ok := store.GetByID(first.ID); ok {
		t.Errorf("store entry survived invalidation")
	}
	if got := a.RelevantFiles("pkg/parse.go"); len(got) != 0 {
		t.Errorf("lookup after invalidation returned %d entries", len(got))
	}
}

func TestInvalidateSymbolDropsCacheAndStore(t *testing.T) {
	a, store := newTestAssembler(t, Options{})
	entry := seedEntry(t, store, knowledge.TypeCode, "walks the parse tree", knowledge.Metadata{SymbolName: "ParseDocument"})
	a.RelevantSymbols("ParseDocument")

	if n := a.InvalidateSymbol("ParseDocument"); n != 1 {
		t.Fatalf("InvalidateSymbol removed %d entries, want 1", n)
	}
	if _, ok := store.GetByID(entry.ID); ok {
		t.Errorf("store entry survived invalidation")
	}
	if got := a.RelevantSymbols("ParseDocument"); len(got) != 0 {
		t.Errorf("lookup after invalidation returned %d entries", len(got))
	}
}
