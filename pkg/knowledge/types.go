package knowledge

import (
	"time"
)

// EntryType classifies a knowledge entry
type EntryType string

const (
	TypeCode          EntryType = "code"
	TypeDocumentation EntryType = "documentation"
	TypeArchitecture  EntryType = "architecture"
	TypeDecision      EntryType = "decision"
	TypePattern       EntryType = "pattern"
	TypeAPI           EntryType = "api"
	TypeModule        EntryType = "module"
	TypeConfig        EntryType = "config"
	TypeTest          EntryType = "test"
	TypeExample       EntryType = "example"
)

// AllEntryTypes lists every valid entry type
var AllEntryTypes = []EntryType{
	TypeCode,
	TypeDocumentation,
	TypeArchitecture,
	TypeDecision,
	TypePattern,
	TypeAPI,
	TypeModule,
	TypeConfig,
	TypeTest,
	TypeExample,
}

// Valid reports whether t is a known entry type
func (t EntryType) Valid() bool {
	for _, known := range AllEntryTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Metadata carries the descriptive fields of an entry
type Metadata struct {
	Source     string   `json:"source"`
	PageID     string   `json:"pageId,omitempty"`
	FilePath   string   `json:"filePath,omitempty"`
	SymbolName string   `json:"symbolName,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Relevance  float64  `json:"relevance"`
	Confidence float64  `json:"confidence"`
}

// MemoryEntry is a stored unit of knowledge. Content and metadata are
// treated as immutable snapshots; access statistics and timestamps are the
// mutable lifecycle fields.
type MemoryEntry struct {
	ID             string     `json:"id"`
	Type           EntryType  `json:"type"`
	Content        string     `json:"content"`
	Metadata       Metadata   `json:"metadata"`
	Embedding      []float64  `json:"embedding,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	AccessCount    int        `json:"accessCount"`
	LastAccessedAt time.Time  `json:"lastAccessedAt"`
}

// Expired reports whether the entry is past its expiry at the given time
func (e *MemoryEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// Clone returns a deep copy safe to hand to callers
func (e *MemoryEntry) Clone() MemoryEntry {
	out := *e
	if e.Metadata.Tags != nil {
		out.Metadata.Tags = append([]string{}, e.Metadata.Tags...)
	}
	if e.Embedding != nil {
		out.Embedding = append([]float64{}, e.Embedding...)
	}
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

// StoreRequest is the input to Store: an entry without identity or
// lifecycle fields.
type StoreRequest struct {
	Type      EntryType  `json:"type"`
	Content   string     `json:"content"`
	Metadata  Metadata   `json:"metadata"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Query describes a knowledge lookup
type Query struct {
	Text           string      `json:"text"`
	Types          []EntryType `json:"types,omitempty"`
	Tags           []string    `json:"tags,omitempty"`
	FilePath       string      `json:"filePath,omitempty"`
	SymbolName     string      `json:"symbolName,omitempty"`
	Limit          int         `json:"limit,omitempty"`
	Threshold      float64     `json:"threshold,omitempty"`
	IncludeExpired bool        `json:"includeExpired,omitempty"`
}

// QueryResult pairs an entry snapshot with its score for the query
type QueryResult struct {
	Entry MemoryEntry `json:"entry"`
	Score float64     `json:"score"`
}

// UpdateRequest merges partial fields into an existing entry. Nil pointers
// leave the current value untouched; a non-nil Tags slice replaces the tag
// set wholesale.
type UpdateRequest struct {
	Type       *EntryType `json:"type,omitempty"`
	Content    *string    `json:"content,omitempty"`
	Source     *string    `json:"source,omitempty"`
	PageID     *string    `json:"pageId,omitempty"`
	FilePath   *string    `json:"filePath,omitempty"`
	SymbolName *string    `json:"symbolName,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Relevance  *float64   `json:"relevance,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	Embedding  []float64  `json:"embedding,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// InvalidateFilter selects entries for removal. All provided fields must
// match: type membership, exact file path, exact symbol name, exact page
// id, and any-tag overlap.
type InvalidateFilter struct {
	Types      []EntryType `json:"types,omitempty"`
	FilePath   string      `json:"filePath,omitempty"`
	SymbolName string      `json:"symbolName,omitempty"`
	PageID     string      `json:"pageId,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
}

// StoreStats summarizes store contents
type StoreStats struct {
	TotalEntries   int               `json:"totalEntries"`
	ByType         map[EntryType]int `json:"byType"`
	WithEmbedding  int               `json:"withEmbedding"`
	TotalAccesses  int               `json:"totalAccesses"`
	OldestCreated  *time.Time        `json:"oldestCreated,omitempty"`
	NewestCreated  *time.Time        `json:"newestCreated,omitempty"`
	EvictionsTotal int               `json:"evictionsTotal"`
}

// clamp01 clamps v into [0,1]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeTags deduplicates tags preserving first-seen order
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
