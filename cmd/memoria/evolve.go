package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docfold/memoria/pkg/evolution"
	"github.com/docfold/memoria/pkg/knowledge"
	"github.com/docfold/memoria/pkg/storage"
)

func runEvolveCommand(args []string) error {
	fs := flag.NewFlagSet("evolve", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "report changes without persisting them")

	if err := fs.Parse(args); err != nil {
		return err
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
	before := store.Len()

	engine := evolution.NewEngine(evolution.Options{
		Store:    store,
		Provider: embedder,
	})
	result := engine.Evolve(ctx)

	if !*dryRun {
		if err := snapshots.SaveSnapshot(ctx, store.Export()); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}

	fmt.Printf("Evolution completed at %s\n", result.Timestamp.Format(time.RFC3339))
	fmt.Printf("  Entries:  %d -> %d\n", before, store.Len())
	fmt.Printf("  Removed:  %d\n", result.Changes.Removed)
	fmt.Printf("  Merged:   %d\n", result.Changes.Merged)
	fmt.Printf("  Boosted:  %d\n", result.Changes.Boosted)
	fmt.Printf("  Patterns: %d\n", result.PatternsLearned)
	if len(result.GapsDetected) > 0 {
		fmt.Println("  Gaps:")
		for _, gap := range result.GapsDetected {
			fmt.Printf("    - %s\n", gap)
		}
	}
	if *dryRun {
		fmt.Println("Dry run: snapshot left untouched.")
	}
	return nil
}
