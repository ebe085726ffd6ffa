package knowledge

import "strings"

// scoreEntry computes the relevance score of an entry for a query.
//
// Term matches add 0.2 each, an embedding adds a flat 0.3 when a provider
// is configured (a heuristic bonus, not vector similarity), exact file and
// symbol matches add 0.3 and 0.4, and each shared tag adds 0.1. The sum is
// weighted by the entry's relevance and confidence and capped at 1.
func scoreEntry(e *MemoryEntry, q Query, providerConfigured bool) float64 {
	score := 0.0

	if q.Text != "" {
		content := strings.ToLower(e.Content)
		for _, term := range strings.Fields(q.Text) {
			if len(term) <= 2 {
				continue
			}
			if strings.Contains(content, strings.ToLower(term)) {
				score += 0.2
			}
		}
	}

	if len(e.Embedding) > 0 && providerConfigured {
		score += 0.3
	}

	if q.FilePath != "" && q.FilePath == e.Metadata.FilePath {
		score += 0.3
	}

	if q.SymbolName != "" && q.SymbolName == e.Metadata.SymbolName {
		score += 0.4
	}

	if len(q.Tags) > 0 && len(e.Metadata.Tags) > 0 {
		entryTags := make(map[string]struct{}, len(e.Metadata.Tags))
		for _, tag := range e.Metadata.Tags {
			entryTags[tag] = struct{}{}
		}
		for _, tag := range q.Tags {
			if _, ok := entryTags[tag]; ok {
				score += 0.1
			}
		}
	}

	score *= e.Metadata.Relevance * e.Metadata.Confidence

	if score > 1 {
		score = 1
	}
	return score
}
