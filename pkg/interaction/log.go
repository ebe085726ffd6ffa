// Package interaction keeps a bounded in-memory log of host interactions
// with the knowledge subsystem. The evolution engine reads it to learn
// usage patterns and detect knowledge gaps.
package interaction

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docfold/memoria/pkg/tokens"
)

// Common record types. The field is an open string; these cover the
// interactions the subsystem itself produces.
const (
	TypeQuery     = "query"
	TypeContext   = "context"
	TypeToolCall  = "tool_call"
	TypeEvolution = "evolution"
)

// Metadata describes the outcome of an interaction.
type Metadata struct {
	Success    bool              `json:"success"`
	TokensUsed int               `json:"tokensUsed"`
	ToolName   string            `json:"toolName,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Record is one logged interaction.
type Record struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Metadata  Metadata  `json:"metadata"`
	SessionID string    `json:"sessionId,omitempty"`
}

// Filter selects records on Query. Zero values match everything.
type Filter struct {
	Type      string
	SessionID string
	Success   *bool
	Since     time.Time
	Limit     int
}

// Stats aggregates the current log contents.
type Stats struct {
	TotalInteractions int            `json:"totalInteractions"`
	ByType            map[string]int `json:"byType"`
	SuccessRate       float64        `json:"successRate"`
	ToolUsage         map[string]int `json:"toolUsage"`
	TotalTokens       int            `json:"totalTokens"`
}

// Log holds records newest-first, capped at a configured maximum with
// oldest-eviction.
type Log struct {
	mu      sync.RWMutex
	records []Record
	max     int
}

// NewLog creates an empty log. max <= 0 falls back to 1000.
func NewLog(max int) *Log {
	if max <= 0 {
		max = 1000
	}
	return &Log{max: max}
}

// Append assigns id and timestamp, fills TokensUsed from the token counter
// when unset, and prepends the record. Returns the stored record.
func (l *Log) Append(rec Record) Record {
	rec.ID = uuid.NewString()
	rec.Timestamp = time.Now()
	if rec.Metadata.TokensUsed == 0 && (rec.Input != "" || rec.Output != "") {
		rec.Metadata.TokensUsed = tokens.Count(rec.Input) + tokens.Count(rec.Output)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append([]Record{rec}, l.records...)
	if len(l.records) > l.max {
		l.records = l.records[:l.max]
	}
	return rec
}

// Query returns matching records newest-first. Limit <= 0 returns all
// matches.
func (l *Log) Query(f Filter) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, 0)
	for _, rec := range l.records {
		if f.Type != "" && rec.Type != f.Type {
			continue
		}
		if f.SessionID != "" && rec.SessionID != f.SessionID {
			continue
		}
		if f.Success != nil && rec.Metadata.Success != *f.Success {
			continue
		}
		if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
			continue
		}
		out = append(out, rec)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Recent returns the newest n records.
func (l *Log) Recent(n int) []Record {
	return l.Query(Filter{Limit: n})
}

// Stats aggregates over every resident record.
func (l *Log) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalInteractions: len(l.records),
		ByType:            make(map[string]int),
		ToolUsage:         make(map[string]int),
	}

	successes := 0
	for _, rec := range l.records {
		stats.ByType[rec.Type]++
		if rec.Metadata.Success {
			successes++
		}
		if rec.Metadata.ToolName != "" {
			stats.ToolUsage[rec.Metadata.ToolName]++
		}
		stats.TotalTokens += rec.Metadata.TokensUsed
	}
	if len(l.records) > 0 {
		stats.SuccessRate = float64(successes) / float64(len(l.records))
	}
	return stats
}

// Len returns the number of resident records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Clear drops every record.
func (l *Log) Clear() {
	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()
}
