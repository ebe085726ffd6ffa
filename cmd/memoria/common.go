package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docfold/memoria/pkg/config"
	"github.com/docfold/memoria/pkg/knowledge"
	"github.com/docfold/memoria/pkg/provider"
	"github.com/docfold/memoria/pkg/storage"
)

func loadConfig() (*config.Config, error) {
	if strings.TrimSpace(configPath) != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// newProviderClient returns nil when the provider is disabled or has no
// key. Callers must keep a nil result out of interface fields.
func newProviderClient(cfg *config.Config) *provider.Client {
	if !cfg.Provider.Enabled || strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return nil
	}
	return provider.New(provider.Options{
		BaseURL:           cfg.Provider.BaseURL,
		APIKey:            cfg.Provider.APIKey,
		EmbeddingModel:    cfg.Provider.EmbeddingModel,
		CompletionModel:   cfg.Provider.CompletionModel,
		Timeout:           time.Duration(cfg.Provider.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
	})
}

// restoreFromSnapshot hydrates an in-memory store from the sqlite mirror.
// Offline commands mutate the returned store and save it back.
func restoreFromSnapshot(ctx context.Context, cfg *config.Config, snapshots *storage.Store, opts knowledge.StoreOptions) (*knowledge.Store, error) {
	entries, err := snapshots.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = cfg.Knowledge.MaxEntries
	}
	store := knowledge.NewStore(opts)
	store.Restore(entries)
	return store, nil
}

func splitCommaList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
