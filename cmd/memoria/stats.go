package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"time"

	"github.com/docfold/memoria/pkg/knowledge"
	"github.com/docfold/memoria/pkg/storage"
)

func runStatsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

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

	schema, err := snapshots.SchemaVersion()
	if err != nil {
		return err
	}
	savedAt, err := snapshots.SavedAt(ctx)
	if err != nil {
		return err
	}

	store, err := restoreFromSnapshot(ctx, cfg, snapshots, knowledge.StoreOptions{})
	if err != nil {
		return err
	}
	stats := store.Stats()

	fmt.Printf("Snapshot: %s\n", cfg.StoragePath())
	fmt.Printf("  Schema version: %d\n", schema)
	if savedAt.IsZero() {
		fmt.Println("  Last saved:     never")
	} else {
		fmt.Printf("  Last saved:     %s\n", savedAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Printf("Entries: %d (%d with embeddings, %d accesses)\n", stats.TotalEntries, stats.WithEmbedding, stats.TotalAccesses)
	if stats.OldestCreated != nil && stats.NewestCreated != nil {
		fmt.Printf("  Created between %s and %s\n",
			stats.OldestCreated.Format("2006-01-02"), stats.NewestCreated.Format("2006-01-02"))
	}

	if len(stats.ByType) > 0 {
		fmt.Println()
		fmt.Println("By type:")
		types := make([]string, 0, len(stats.ByType))
		for t := range stats.ByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Printf("  %-14s %d\n", t, stats.ByType[knowledge.EntryType(t)])
		}
	}
	return nil
}
