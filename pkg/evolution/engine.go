// Package evolution implements the maintenance cycle over the knowledge
// store and the interaction log: merge-or-create updates, cleanup of stale
// entries, consolidation of near-duplicates, relevance boosting, usage
// pattern learning, and knowledge gap detection. Every operation is
// idempotent; the orchestrator runs them in a fixed order.
package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/docfold/memoria/pkg/bus"
	"github.com/docfold/memoria/pkg/interaction"
	"github.com/docfold/memoria/pkg/keywords"
	"github.com/docfold/memoria/pkg/knowledge"
	"github.com/docfold/memoria/pkg/logging"
)

var tracer = otel.Tracer("memoria/evolution")

// Engine runs maintenance operations. Provider and Publisher are optional;
// without a log the interaction-driven operations are no-ops.
type Engine struct {
	store     *knowledge.Store
	log       *interaction.Log
	provider  knowledge.EmbeddingProvider
	publisher bus.Publisher
}

// Options configures an Engine.
type Options struct {
	Store     *knowledge.Store
	Log       *interaction.Log
	Provider  knowledge.EmbeddingProvider
	Publisher bus.Publisher
}

// NewEngine creates an engine over the given store.
func NewEngine(opts Options) *Engine {
	return &Engine{
		store:     opts.Store,
		log:       opts.Log,
		provider:  opts.Provider,
		publisher: opts.Publisher,
	}
}

// Update carries new information to merge into the store.
type Update struct {
	NewContent string              `json:"newContent"`
	Type       knowledge.EntryType `json:"type,omitempty"`
	Source     string              `json:"source"`
	Tags       []string            `json:"tags,omitempty"`
}

// UpdateResult reports whether UpdateKnowledge merged or created.
type UpdateResult struct {
	Updated bool                  `json:"updated"`
	Created bool                  `json:"created"`
	Entry   knowledge.MemoryEntry `json:"entry"`
}

// UpdateKnowledge merges update into the best store match for query, or
// creates a new entry when nothing matches. A merge replaces the content
// and source, unions the tags, and raises confidence by 0.1 capped at 1.
func (e *Engine) UpdateKnowledge(ctx context.Context, query string, update Update) (UpdateResult, error) {
	results := e.store.Query(knowledge.Query{Text: query, Limit: 5})

	// A zero score is no match at all, not a weak one.
	if len(results) > 0 && results[0].Score > 0 {
		top := results[0].Entry
		confidence := top.Metadata.Confidence + 0.1
		if confidence > 1 {
			confidence = 1
		}
		req := knowledge.UpdateRequest{
			Content:    &update.NewContent,
			Source:     &update.Source,
			Tags:       unionTags(top.Metadata.Tags, update.Tags),
			Confidence: &confidence,
		}
		if e.provider != nil {
			vec, err := e.provider.CreateEmbedding(ctx, update.NewContent)
			if err != nil {
				logging.Warn(logging.CategoryEvolution, "embedding_failed", "keeping stale embedding", map[string]any{
					"id":    top.ID,
					"error": err.Error(),
				})
			} else {
				req.Embedding = vec
			}
		}
		entry, ok := e.store.Update(top.ID, req)
		if !ok {
			return UpdateResult{}, fmt.Errorf("entry %s vanished during update", top.ID)
		}
		return UpdateResult{Updated: true, Entry: entry}, nil
	}

	entryType := update.Type
	if entryType == "" {
		entryType = knowledge.TypeDocumentation
	}
	entry, err := e.store.Store(ctx, knowledge.StoreRequest{
		Type:    entryType,
		Content: update.NewContent,
		Metadata: knowledge.Metadata{
			Source:     update.Source,
			Tags:       update.Tags,
			Relevance:  0.8,
			Confidence: 0.7,
		},
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Created: true, Entry: entry}, nil
}

// CleanupOptions bounds CleanupOutdated. MaxAge <= 0 falls back to 90 days.
type CleanupOptions struct {
	MaxAge         time.Duration `json:"maxAge"`
	MinRelevance   float64       `json:"minRelevance"`
	MinAccessCount int           `json:"minAccessCount"`
}

// DefaultCleanupOptions returns the standalone cleanup defaults.
func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{
		MaxAge:         90 * 24 * time.Hour,
		MinRelevance:   0.3,
		MinAccessCount: 0,
	}
}

// CleanupOutdated removes entries where all three hold: UpdatedAt older
// than now minus MaxAge, relevance below MinRelevance, and access count at
// or below MinAccessCount. Returns the removed ids.
func (e *Engine) CleanupOutdated(opts CleanupOptions) []string {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultCleanupOptions().MaxAge
	}
	cutoff := time.Now().Add(-opts.MaxAge)

	var removed []string
	for _, entry := range e.store.Export() {
		if !entry.UpdatedAt.Before(cutoff) {
			continue
		}
		if entry.Metadata.Relevance >= opts.MinRelevance {
			continue
		}
		if entry.AccessCount > opts.MinAccessCount {
			continue
		}
		removed = append(removed, entry.ID)
	}
	if len(removed) > 0 {
		e.store.DeleteMany(removed)
		logging.Info(logging.CategoryEvolution, "cleanup_completed", "removed outdated entries", map[string]any{
			"removed": len(removed),
		})
	}
	return removed
}

// ConsolidationResult lists merge groups (kept id first) and the total
// number of removed duplicates.
type ConsolidationResult struct {
	Groups  [][]string `json:"groups"`
	Removed int        `json:"removed"`
}

// Consolidate merges near-duplicate entries: same type with content word
// sets above 0.8 Jaccard similarity. Each group keeps the entry with the
// highest access count (earliest stored wins ties). Running it again
// without new entries merges nothing.
func (e *Engine) Consolidate() ConsolidationResult {
	entries := e.store.Export()

	sets := make([]map[string]struct{}, len(entries))
	for i := range entries {
		sets[i] = wordSet(entries[i].Content)
	}

	result := ConsolidationResult{}
	processed := make(map[string]bool, len(entries))
	var doomed []string

	for i := range entries {
		if processed[entries[i].ID] {
			continue
		}
		group := []int{i}
		for j := i + 1; j < len(entries); j++ {
			if processed[entries[j].ID] || entries[j].Type != entries[i].Type {
				continue
			}
			if jaccard(sets[i], sets[j]) > 0.8 {
				group = append(group, j)
			}
		}
		for _, idx := range group {
			processed[entries[idx].ID] = true
		}
		if len(group) < 2 {
			continue
		}

		keep := group[0]
		for _, idx := range group[1:] {
			if entries[idx].AccessCount > entries[keep].AccessCount {
				keep = idx
			}
		}

		ids := []string{entries[keep].ID}
		for _, idx := range group {
			if idx == keep {
				continue
			}
			ids = append(ids, entries[idx].ID)
			doomed = append(doomed, entries[idx].ID)
		}
		result.Groups = append(result.Groups, ids)
		result.Removed += len(ids) - 1
	}

	if len(doomed) > 0 {
		e.store.DeleteMany(doomed)
		logging.Info(logging.CategoryEvolution, "consolidation_completed", "merged duplicate entries", map[string]any{
			"groups":  len(result.Groups),
			"removed": result.Removed,
		})
	}
	return result
}

// BoostOptions bounds BoostRelevance. BoostFactor <= 0 falls back to 1.1.
type BoostOptions struct {
	MinAccessCount int     `json:"minAccessCount"`
	BoostFactor    float64 `json:"boostFactor"`
}

// BoostRelevance raises relevance to min(relevance x factor, 1) for every
// entry accessed at least MinAccessCount times. Returns how many entries
// were boosted.
func (e *Engine) BoostRelevance(opts BoostOptions) int {
	if opts.BoostFactor <= 0 {
		opts.BoostFactor = 1.1
	}

	boosted := 0
	for _, entry := range e.store.Export() {
		if entry.AccessCount < opts.MinAccessCount {
			continue
		}
		relevance := entry.Metadata.Relevance * opts.BoostFactor
		if relevance > 1 {
			relevance = 1
		}
		if _, ok := e.store.Update(entry.ID, knowledge.UpdateRequest{Relevance: &relevance}); ok {
			boosted++
		}
	}
	return boosted
}

// LearnFromInteractions stores one Pattern entry for every tool used more
// than 10 times according to the interaction log. Returns the number of
// patterns created.
func (e *Engine) LearnFromInteractions(ctx context.Context) int {
	if e.log == nil {
		return 0
	}
	usage := e.log.Stats().ToolUsage

	tools := make([]string, 0, len(usage))
	for tool := range usage {
		tools = append(tools, tool)
	}
	sort.Strings(tools)

	created := 0
	for _, tool := range tools {
		count := usage[tool]
		if count <= 10 {
			continue
		}
		_, err := e.store.Store(ctx, knowledge.StoreRequest{
			Type:    knowledge.TypePattern,
			Content: fmt.Sprintf("Frequently used tool: %s (%d uses)", tool, count),
			Metadata: knowledge.Metadata{
				Source:     "interaction-analysis",
				Tags:       []string{"tool-usage", tool},
				Relevance:  0.7,
				Confidence: 0.8,
			},
		})
		if err != nil {
			logging.Warn(logging.CategoryEvolution, "pattern_store_failed", "skipping tool pattern", map[string]any{
				"tool":  tool,
				"error": err.Error(),
			})
			continue
		}
		created++
	}
	return created
}

// gapPhrases mark interaction outputs that admit missing knowledge.
var gapPhrases = []string{"do not have", "no information", "not found"}

// DetectKnowledgeGaps scans the 20 most recent failed interactions for
// outputs admitting missing knowledge and describes each gap with up to 5
// keywords from the interaction input. Returns de-duplicated descriptions.
func (e *Engine) DetectKnowledgeGaps() []string {
	if e.log == nil {
		return nil
	}
	failed := false
	records := e.log.Query(interaction.Filter{Success: &failed, Limit: 20})

	seen := make(map[string]struct{})
	var gaps []string
	for _, rec := range records {
		output := strings.ToLower(rec.Output)
		admitted := false
		for _, phrase := range gapPhrases {
			if strings.Contains(output, phrase) {
				admitted = true
				break
			}
		}
		if !admitted {
			continue
		}
		terms := keywords.Extract(rec.Input, 5)
		if len(terms) == 0 {
			continue
		}
		gap := "Missing knowledge about: " + strings.Join(terms, ", ")
		if _, dup := seen[gap]; dup {
			continue
		}
		seen[gap] = struct{}{}
		gaps = append(gaps, gap)
	}
	return gaps
}

// Changes counts entry mutations from one evolution run.
type Changes struct {
	Updated int `json:"updated"`
	Created int `json:"created"`
	Removed int `json:"removed"`
	Merged  int `json:"merged"`
	Boosted int `json:"boosted"`
}

// EvolutionResult summarizes one evolution run.
type EvolutionResult struct {
	Timestamp       time.Time `json:"timestamp"`
	Changes         Changes   `json:"changes"`
	PatternsLearned int       `json:"patternsLearned"`
	GapsDetected    []string  `json:"gapsDetected"`
}

// Evolve runs the full maintenance cycle in fixed order: cleanup with the
// tighter 60-day bound, consolidation, boosting, pattern learning, then
// gap detection. Cleanup precedes consolidation so fewer candidates are
// compared, and boosting sees post-consolidation access counts.
func (e *Engine) Evolve(ctx context.Context) EvolutionResult {
	ctx, span := tracer.Start(ctx, "evolution.evolve")
	defer span.End()
	start := time.Now()

	removed := e.CleanupOutdated(CleanupOptions{MaxAge: 60 * 24 * time.Hour, MinRelevance: 0.2})
	consolidation := e.Consolidate()
	boosted := e.BoostRelevance(BoostOptions{MinAccessCount: 10, BoostFactor: 1.1})
	learned := e.LearnFromInteractions(ctx)
	gaps := e.DetectKnowledgeGaps()

	result := EvolutionResult{
		Timestamp: time.Now(),
		Changes: Changes{
			Created: learned,
			Removed: len(removed),
			Merged:  consolidation.Removed,
			Boosted: boosted,
		},
		PatternsLearned: learned,
		GapsDetected:    gaps,
	}

	span.SetAttributes(
		attribute.Int("removed", result.Changes.Removed),
		attribute.Int("merged", result.Changes.Merged),
		attribute.Int("boosted", result.Changes.Boosted),
		attribute.Int("patterns", result.PatternsLearned),
		attribute.Int("gaps", len(result.GapsDetected)),
	)

	e.publishResult(result)

	logging.Info(logging.CategoryEvolution, "evolution_completed", "maintenance cycle finished", map[string]any{
		"removed":    result.Changes.Removed,
		"merged":     result.Changes.Merged,
		"boosted":    result.Changes.Boosted,
		"patterns":   result.PatternsLearned,
		"gaps":       len(result.GapsDetected),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return result
}

func (e *Engine) publishResult(result EvolutionResult) {
	if e.publisher == nil {
		return
	}
	if data, err := json.Marshal(result); err == nil {
		if err := e.publisher.Publish(bus.SubjectEvolutionCompleted, data); err != nil {
			logging.Warn(logging.CategoryBus, "publish_failed", "dropping evolution event", map[string]any{
				"error": err.Error(),
			})
		}
	}
	for _, gap := range result.GapsDetected {
		data, err := json.Marshal(map[string]string{"gap": gap})
		if err != nil {
			continue
		}
		if err := e.publisher.Publish(bus.SubjectKnowledgeGap, data); err != nil {
			logging.Warn(logging.CategoryBus, "publish_failed", "dropping gap event", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

// wordSet splits content into a lowercased word set for Jaccard
// comparison.
func wordSet(content string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(content))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// jaccard returns |a intersect b| / |a union b|.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// unionTags merges two tag lists preserving first-seen order.
func unionTags(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, tag := range append(append([]string{}, a...), b...) {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
