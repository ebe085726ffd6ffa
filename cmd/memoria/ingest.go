package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/docfold/memoria/pkg/ingest"
	"github.com/docfold/memoria/pkg/knowledge"
	"github.com/docfold/memoria/pkg/storage"
)

func runIngestCommand(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	source := fs.String("source", "", "provenance label for the entries (default: the file path)")
	pageID := fs.String("page-id", "", "logical page id grouping the entries")
	tags := fs.String("tags", "", "comma-separated tags applied to every entry")
	relevance := fs.Float64("relevance", 0, "initial relevance score (0 uses the default)")
	confidence := fs.Float64("confidence", 0, "initial confidence score (0 uses the default)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	paths := fs.Args()
	if len(paths) == 0 {
		return fmt.Errorf("usage: memoria ingest [flags] <file>...")
	}

	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(err, 2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	snapshots, err := storage.New(cfg.StoragePath())
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer snapshots.Close()

	var embedder knowledge.EmbeddingProvider
	if llm := newProviderClient(cfg); llm != nil {
		embedder = llm
	}
	store, err := restoreFromSnapshot(ctx, cfg, snapshots, knowledge.StoreOptions{Provider: embedder})
	if err != nil {
		return err
	}

	var stored int
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", path, err)
		}
		requests, err := ingest.File(abs, ingest.SourceOptions{
			Source:     *source,
			PageID:     *pageID,
			Tags:       splitCommaList(*tags),
			Relevance:  *relevance,
			Confidence: *confidence,
		})
		if err != nil {
			return err
		}
		for _, req := range requests {
			if _, err := store.Store(ctx, req); err != nil {
				return fmt.Errorf("storing entry from %s: %w", path, err)
			}
		}
		stored += len(requests)
		fmt.Printf("  %s: %d entries\n", path, len(requests))
	}

	if err := snapshots.SaveSnapshot(ctx, store.Export()); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	fmt.Printf("Ingested %d entries from %d file(s), knowledge base now holds %d\n", stored, len(paths), store.Len())
	return nil
}
