package interaction

import (
	"fmt"
	"testing"
	"time"
)

func TestAppendAssignsIdentity(t *testing.T) {
	l := NewLog(10)

	rec := l.Append(Record{
		Type:     TypeQuery,
		Input:    "how does the scheduler work",
		Output:   "the scheduler polls every tick",
		Metadata: Metadata{Success: true},
	})

	if rec.ID == "" {
		t.Error("Expected assigned ID")
	}
	if rec.Timestamp.IsZero() {
		t.Error("Expected assigned timestamp")
	}
	if rec.Metadata.TokensUsed <= 0 {
		t.Errorf("Expected token count filled, got %d", rec.Metadata.TokensUsed)
	}
}

func TestAppendKeepsExplicitTokens(t *testing.T) {
	l := NewLog(10)

	rec := l.Append(Record{
		Type:     TypeToolCall,
		Input:    "input text",
		Metadata: Metadata{TokensUsed: 42},
	})

	if rec.Metadata.TokensUsed != 42 {
		t.Errorf("Expected explicit token count preserved, got %d", rec.Metadata.TokensUsed)
	}
}

func TestNewestFirstOrder(t *testing.T) {
	l := NewLog(10)

	l.Append(Record{Type: TypeQuery, Input: "first"})
	l.Append(Record{Type: TypeQuery, Input: "second"})
	l.Append(Record{Type: TypeQuery, Input: "third"})

	recent := l.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recent))
	}
	if recent[0].Input != "third" || recent[1].Input != "second" {
		t.Errorf("Expected newest-first order, got %q then %q", recent[0].Input, recent[1].Input)
	}
}

func TestCapEvictsOldest(t *testing.T) {
	l := NewLog(3)

	for i := 0; i < 5; i++ {
		l.Append(Record{Type: TypeQuery, Input: fmt.Sprintf("record-%d", i)})
	}

	if l.Len() != 3 {
		t.Fatalf("Expected 3 records, got %d", l.Len())
	}
	all := l.Recent(0)
	for _, rec := range all {
		if rec.Input == "record-0" || rec.Input == "record-1" {
			t.Errorf("Expected oldest records evicted, found %q", rec.Input)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	l := NewLog(100)

	ok := true
	failed := false

	l.Append(Record{Type: TypeQuery, SessionID: "s1", Metadata: Metadata{Success: true}})
	l.Append(Record{Type: TypeToolCall, SessionID: "s1", Metadata: Metadata{Success: false, ToolName: "search"}})
	l.Append(Record{Type: TypeQuery, SessionID: "s2", Metadata: Metadata{Success: false}})

	if got := l.Query(Filter{Type: TypeQuery}); len(got) != 2 {
		t.Errorf("Expected 2 query records, got %d", len(got))
	}
	if got := l.Query(Filter{SessionID: "s1"}); len(got) != 2 {
		t.Errorf("Expected 2 s1 records, got %d", len(got))
	}
	if got := l.Query(Filter{Success: &ok}); len(got) != 1 {
		t.Errorf("Expected 1 successful record, got %d", len(got))
	}
	if got := l.Query(Filter{Success: &failed, Type: TypeQuery}); len(got) != 1 {
		t.Errorf("Expected 1 failed query record, got %d", len(got))
	}
	if got := l.Query(Filter{Limit: 2}); len(got) != 2 {
		t.Errorf("Expected limit to apply, got %d", len(got))
	}
}

func TestQuerySince(t *testing.T) {
	l := NewLog(100)

	l.Append(Record{Type: TypeQuery, Input: "old"})
	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	l.Append(Record{Type: TypeQuery, Input: "new"})

	got := l.Query(Filter{Since: cutoff})
	if len(got) != 1 || got[0].Input != "new" {
		t.Errorf("Expected only the record after cutoff, got %d", len(got))
	}
}

func TestStats(t *testing.T) {
	l := NewLog(100)

	l.Append(Record{Type: TypeQuery, Metadata: Metadata{Success: true, TokensUsed: 10}})
	l.Append(Record{Type: TypeQuery, Metadata: Metadata{Success: false, TokensUsed: 5}})
	l.Append(Record{Type: TypeToolCall, Metadata: Metadata{Success: true, ToolName: "grep", TokensUsed: 1}})
	l.Append(Record{Type: TypeToolCall, Metadata: Metadata{Success: true, ToolName: "grep", TokensUsed: 1}})

	stats := l.Stats()
	if stats.TotalInteractions != 4 {
		t.Errorf("Expected 4 interactions, got %d", stats.TotalInteractions)
	}
	if stats.ByType[TypeQuery] != 2 || stats.ByType[TypeToolCall] != 2 {
		t.Errorf("Unexpected type counts: %v", stats.ByType)
	}
	if stats.SuccessRate != 0.75 {
		t.Errorf("Expected success rate 0.75, got %v", stats.SuccessRate)
	}
	if stats.ToolUsage["grep"] != 2 {
		t.Errorf("Expected grep used twice, got %d", stats.ToolUsage["grep"])
	}
	if stats.TotalTokens != 17 {
		t.Errorf("Expected 17 total tokens, got %d", stats.TotalTokens)
	}
}

func TestStatsEmpty(t *testing.T) {
	l := NewLog(10)

	stats := l.Stats()
	if stats.TotalInteractions != 0 || stats.SuccessRate != 0 {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
}

func TestClear(t *testing.T) {
	l := NewLog(10)
	l.Append(Record{Type: TypeQuery})

	l.Clear()

	if l.Len() != 0 {
		t.Errorf("Expected empty log, got %d", l.Len())
	}
}
