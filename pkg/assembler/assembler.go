// Package assembler builds token-budgeted context documents from the
// knowledge store: scored entry selection, provider-backed summaries with
// deterministic fallbacks, prompt enrichment, and task-shaped retrieval.
package assembler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/docfold/memoria/pkg/cache"
	"github.com/docfold/memoria/pkg/knowledge"
	"github.com/docfold/memoria/pkg/logging"
	"github.com/docfold/memoria/pkg/tokens"
)

var tracer = otel.Tracer("memoria/assembler")

// CompletionProvider produces the LLM summary for assembled entries.
type CompletionProvider interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const summarySystemPrompt = "Summarize the following knowledge entries concisely. Preserve key technical details and drop pleasantries."

// Context is an assembled, budgeted view over matching knowledge entries.
type Context struct {
	Query          string                  `json:"query"`
	Entries        []knowledge.MemoryEntry `json:"entries"`
	Summary        string                  `json:"summary,omitempty"`
	RelevanceScore float64                 `json:"relevanceScore"`
	TokenCount     int                     `json:"tokenCount"`
	CachedAt       *time.Time              `json:"cachedAt,omitempty"`
}

// Assembler answers context requests from the store with a cache in
// front. The provider is optional; without one summaries fall back to
// entry excerpts.
type Assembler struct {
	store    *knowledge.Store
	cache    *cache.Cache
	provider CompletionProvider
	group    singleflight.Group

	maxTokens  int
	queryLimit int
	threshold  float64
	summaryTTL time.Duration
}

// Options configures an Assembler. Zero values fall back to the standard
// budget of 4000 tokens, query limit 20, threshold 0.3, and a one hour
// summary TTL.
type Options struct {
	Store      *knowledge.Store
	Cache      *cache.Cache
	Provider   CompletionProvider
	MaxTokens  int
	QueryLimit int
	Threshold  float64
	SummaryTTL time.Duration
}

// New creates an Assembler over the given store and cache.
func New(opts Options) *Assembler {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4000
	}
	if opts.QueryLimit <= 0 {
		opts.QueryLimit = 20
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.3
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = time.Hour
	}
	return &Assembler{
		store:      opts.Store,
		cache:      opts.Cache,
		provider:   opts.Provider,
		maxTokens:  opts.MaxTokens,
		queryLimit: opts.QueryLimit,
		threshold:  opts.Threshold,
		summaryTTL: opts.SummaryTTL,
	}
}

// ProvideContext assembles a context for query within maxTokens
// (non-positive uses the configured budget). Results are cached by a
// stable hash of the query; a hit returns a single-entry context built
// from the cached summary. Concurrent identical requests collapse into
// one assembly.
func (a *Assembler) ProvideContext(ctx context.Context, query string, maxTokens int) Context {
	ctx, span := tracer.Start(ctx, "assembler.provide_context")
	defer span.End()

	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}
	key := contextCacheKey(query)

	if cached, ok := a.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return contextFromCached(query, cached)
	}

	result, _, _ := a.group.Do(key, func() (any, error) {
		// A concurrent assembly may have finished while we queued.
		if cached, ok := a.cache.Get(key); ok {
			return contextFromCached(query, cached), nil
		}
		return a.assemble(ctx, query, maxTokens, key), nil
	})

	out := result.(Context)
	span.SetAttributes(
		attribute.Bool("cache_hit", out.CachedAt != nil),
		attribute.Int("entries", len(out.Entries)),
		attribute.Int("tokens", out.TokenCount),
	)
	return out
}

func (a *Assembler) assemble(ctx context.Context, query string, maxTokens int, key string) Context {
	results := a.store.Query(knowledge.Query{
		Text:      query,
		Limit:     a.queryLimit,
		Threshold: a.threshold,
	})

	out := Context{Query: query}
	var scoreSum float64
	for _, res := range results {
		cost := tokens.Estimate(res.Entry.Content)
		if out.TokenCount+cost > maxTokens {
			break
		}
		out.Entries = append(out.Entries, res.Entry)
		out.TokenCount += cost
		scoreSum += res.Score
	}
	if len(out.Entries) == 0 {
		return out
	}
	out.RelevanceScore = scoreSum / float64(len(out.Entries))
	out.Summary = a.summarize(ctx, out.Entries)

	now := time.Now()
	a.cache.Set(key, knowledge.MemoryEntry{
		ID:      ulid.Make().String(),
		Type:    knowledge.TypeDocumentation,
		Content: out.Summary,
		Metadata: knowledge.Metadata{
			Source:     "context-assembler",
			Relevance:  out.RelevanceScore,
			Confidence: 1,
		},
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
	}, a.summaryTTL)

	return out
}

// summarize produces a summary of the entries via the provider, falling
// back to the first three entries truncated to 200 characters each.
func (a *Assembler) summarize(ctx context.Context, entries []knowledge.MemoryEntry) string {
	if a.provider != nil {
		var sb strings.Builder
		for i, entry := range entries {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(entry.Content)
		}
		summary, err := a.provider.Complete(ctx, summarySystemPrompt, sb.String())
		if err == nil && summary != "" {
			return summary
		}
		if err != nil {
			logging.Warn(logging.CategoryContext, "summary_failed", "falling back to entry excerpts", map[string]any{
				"error": err.Error(),
			})
		}
	}

	excerpts := make([]string, 0, 3)
	for i, entry := range entries {
		if i >= 3 {
			break
		}
		excerpts = append(excerpts, truncate(entry.Content, 200))
	}
	return strings.Join(excerpts, "\n\n")
}

func contextFromCached(query string, cached knowledge.MemoryEntry) Context {
	cachedAt := cached.CreatedAt
	return Context{
		Query:          query,
		Entries:        []knowledge.MemoryEntry{cached},
		Summary:        cached.Content,
		RelevanceScore: cached.Metadata.Relevance,
		TokenCount:     tokens.Estimate(cached.Content),
		CachedAt:       &cachedAt,
	}
}

func contextCacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return "context:" + hex.EncodeToString(sum[:])
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
