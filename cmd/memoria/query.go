package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/docfold/memoria/pkg/knowledge"
	"github.com/docfold/memoria/pkg/storage"
)

func runQueryCommand(args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	limit := fs.Int("limit", 10, "maximum number of results")
	entryType := fs.String("type", "", "restrict to an entry type (code, documentation, architecture, ...)")
	filePath := fs.String("file", "", "filter by exact file path")
	symbol := fs.String("symbol", "", "filter by exact symbol name")
	tags := fs.String("tags", "", "comma-separated tag filter")
	threshold := fs.Float64("threshold", 0, "minimum score, 0 keeps every match")
	jsonOut := fs.Bool("json", false, "emit results as JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))

	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(err, 2)
	}

	ctx := context.Background()
	snapshots, err := storage.New(cfg.StoragePath())
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer snapshots.Close()

	store, err := restoreFromSnapshot(ctx, cfg, snapshots, knowledge.StoreOptions{})
	if err != nil {
		return err
	}

	q := knowledge.Query{
		Text:       text,
		Tags:       splitCommaList(*tags),
		FilePath:   strings.TrimSpace(*filePath),
		SymbolName: strings.TrimSpace(*symbol),
		Limit:      *limit,
		Threshold:  *threshold,
	}
	if t := strings.TrimSpace(*entryType); t != "" {
		q.Types = []knowledge.EntryType{knowledge.EntryType(t)}
	}

	results := store.Query(q)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No matching entries.")
		return nil
	}
	for i, res := range results {
		fmt.Printf("%2d. [%.2f] %s (%s)\n", i+1, res.Score, res.Entry.ID, res.Entry.Type)
		if res.Entry.Metadata.Source != "" {
			fmt.Printf("    source: %s\n", res.Entry.Metadata.Source)
		}
		fmt.Printf("    %s\n", firstLine(res.Entry.Content))
	}
	return nil
}

func firstLine(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		content = content[:idx]
	}
	const max = 96
	if len(content) <= max {
		return content
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}
