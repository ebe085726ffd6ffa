package assembler

import (
	"github.com/docfold/memoria/pkg/knowledge"
)

// RelevantSymbols returns entries tied to an exact symbol name. The best
// match is cached so repeat lookups skip the store.
func (a *Assembler) RelevantSymbols(name string) []knowledge.MemoryEntry {
	key := "symbol:" + name
	if cached, ok := a.cache.Get(key); ok {
		return []knowledge.MemoryEntry{cached}
	}
	results := a.store.Query(knowledge.Query{SymbolName: name, Limit: 10})
	entries := make([]knowledge.MemoryEntry, 0, len(results))
	for _, res := range results {
		entries = append(entries, res.Entry)
	}
	if len(entries) > 0 {
		a.cache.Set(key, entries[0], 0)
	}
	return entries
}

// RelevantFiles returns entries tied to an exact file path, cache first.
func (a *Assembler) RelevantFiles(path string) []knowledge.MemoryEntry {
	key := "file:" + path
	if cached, ok := a.cache.Get(key); ok {
		return []knowledge.MemoryEntry{cached}
	}
	results := a.store.Query(knowledge.Query{FilePath: path, Limit: 10})
	entries := make([]knowledge.MemoryEntry, 0, len(results))
	for _, res := range results {
		entries = append(entries, res.Entry)
	}
	if len(entries) > 0 {
		a.cache.Set(key, entries[0], 0)
	}
	return entries
}

// InvalidateFile drops cached lookups for a file and removes its entries
// from the store. Returns how many entries were removed.
func (a *Assembler) InvalidateFile(path string) int {
	a.cache.Invalidate("file:" + path)
	return a.store.Invalidate(knowledge.InvalidateFilter{FilePath: path})
}

// InvalidateSymbol drops cached lookups for a symbol and removes its
// entries from the store. Returns how many entries were removed.
func (a *Assembler) InvalidateSymbol(name string) int {
	a.cache.Invalidate("symbol:" + name)
	return a.store.Invalidate(knowledge.InvalidateFilter{SymbolName: name})
}
