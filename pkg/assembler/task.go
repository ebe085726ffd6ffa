package assembler

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/docfold/memoria/pkg/keywords"
	"github.com/docfold/memoria/pkg/knowledge"
	"github.com/docfold/memoria/pkg/tokens"
)

// taskProfile names the entry types a task category cares about most,
// plus a secondary tier merged in after the primary matches.
type taskProfile struct {
	primary   []knowledge.EntryType
	secondary []knowledge.EntryType
}

var taskProfiles = map[string]taskProfile{
	"refactoring": {
		primary:   []knowledge.EntryType{knowledge.TypeCode, knowledge.TypePattern},
		secondary: []knowledge.EntryType{knowledge.TypeArchitecture, knowledge.TypeDecision},
	},
	"feature": {
		primary:   []knowledge.EntryType{knowledge.TypeCode, knowledge.TypeAPI},
		secondary: []knowledge.EntryType{knowledge.TypeDocumentation, knowledge.TypeExample},
	},
	"bugfix": {
		primary:   []knowledge.EntryType{knowledge.TypeCode, knowledge.TypeTest},
		secondary: []knowledge.EntryType{knowledge.TypePattern, knowledge.TypeDocumentation},
	},
	"architecture": {
		primary:   []knowledge.EntryType{knowledge.TypeArchitecture, knowledge.TypeDecision},
		secondary: []knowledge.EntryType{knowledge.TypeModule, knowledge.TypePattern},
	},
	"documentation": {
		primary:   []knowledge.EntryType{knowledge.TypeDocumentation, knowledge.TypeExample},
		secondary: []knowledge.EntryType{knowledge.TypeAPI, knowledge.TypeCode},
	},
}

var defaultTaskProfile = taskProfile{
	primary:   []knowledge.EntryType{knowledge.TypeCode, knowledge.TypeDocumentation},
	secondary: []knowledge.EntryType{knowledge.TypePattern},
}

// ContextForTask assembles context for a task description. The task type
// selects which entry types to pull first; unknown types get the default
// profile. Secondary matches are merged after primary ones and the
// combined list is capped at ten entries.
func (a *Assembler) ContextForTask(ctx context.Context, description, taskType string) Context {
	profile, ok := taskProfiles[strings.ToLower(taskType)]
	if !ok {
		profile = defaultTaskProfile
	}

	text := strings.Join(keywords.Extract(description, 10), " ")
	if text == "" {
		text = description
	}

	primary := a.store.Query(knowledge.Query{
		Text:      text,
		Types:     profile.primary,
		Limit:     10,
		Threshold: a.threshold,
	})
	secondary := a.store.Query(knowledge.Query{
		Text:      text,
		Types:     profile.secondary,
		Limit:     10,
		Threshold: a.threshold,
	})

	out := Context{Query: description}
	seen := make(map[string]struct{})
	var scoreSum float64
	for _, res := range append(primary, secondary...) {
		if _, dup := seen[res.Entry.ID]; dup {
			continue
		}
		if len(out.Entries) >= 10 {
			break
		}
		seen[res.Entry.ID] = struct{}{}
		out.Entries = append(out.Entries, res.Entry)
		out.TokenCount += tokens.Estimate(res.Entry.Content)
		scoreSum += res.Score
	}
	if len(out.Entries) == 0 {
		return out
	}
	out.RelevanceScore = scoreSum / float64(len(out.Entries))
	out.Summary = a.summarize(ctx, out.Entries)
	return out
}

// MultiDimensionalContext queries each entry type separately (limit 3
// per type) and folds the matches into one context under the shared
// token budget. The summary reports how many entries each type
// contributed.
func (a *Assembler) MultiDimensionalContext(ctx context.Context, query string, types []knowledge.EntryType) Context {
	_, span := tracer.Start(ctx, "assembler.multi_dimensional")
	defer span.End()

	out := Context{Query: query}
	var scoreSum float64
	var lines []string

	for _, t := range types {
		results := a.store.Query(knowledge.Query{
			Text:      query,
			Types:     []knowledge.EntryType{t},
			Limit:     3,
			Threshold: a.threshold,
		})
		added := 0
		for _, res := range results {
			cost := tokens.Estimate(res.Entry.Content)
			if out.TokenCount+cost > a.maxTokens {
				break
			}
			out.Entries = append(out.Entries, res.Entry)
			out.TokenCount += cost
			scoreSum += res.Score
			added++
		}
		if added > 0 {
			lines = append(lines, fmt.Sprintf("%s: %d entries", t, added))
		}
	}
	span.SetAttributes(attribute.Int("entries", len(out.Entries)), attribute.Int("tokens", out.TokenCount))
	if len(out.Entries) == 0 {
		return out
	}
	out.RelevanceScore = scoreSum / float64(len(out.Entries))
	out.Summary = strings.Join(lines, "\n")
	return out
}
