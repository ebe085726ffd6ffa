package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	iofs "io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/docfold/memoria/pkg/api"
	"github.com/docfold/memoria/pkg/assembler"
	"github.com/docfold/memoria/pkg/bus"
	"github.com/docfold/memoria/pkg/cache"
	"github.com/docfold/memoria/pkg/config"
	"github.com/docfold/memoria/pkg/evolution"
	"github.com/docfold/memoria/pkg/filewatch"
	"github.com/docfold/memoria/pkg/interaction"
	"github.com/docfold/memoria/pkg/knowledge"
	"github.com/docfold/memoria/pkg/logging"
	"github.com/docfold/memoria/pkg/observability"
	"github.com/docfold/memoria/pkg/storage"
)

func runServeCommand(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(err, 2)
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	bind := fs.String("bind", cfg.Server.Bind, "address to bind the HTTP API")
	authTokenFlag := fs.String("auth-token", "", "token clients must supply (default: MEMORIA_AUTH_TOKEN)")
	tokenFile := fs.String("token-file", "", "path to a file containing the API auth token (supports ~)")
	generateToken := fs.Bool("generate-token", false, "generate and persist an auth token when the token file is missing")
	printToken := fs.Bool("print-token", false, "print a generated auth token to stderr (may leak via logs)")
	publicMetrics := fs.Bool("public-metrics", cfg.Server.PublicMetrics, "expose /metrics without authentication (useful for Prometheus scraping)")
	noServer := fs.Bool("no-server", !cfg.Server.Enabled, "run snapshot, evolution and watch loops without the HTTP API")

	if err := fs.Parse(args); err != nil {
		return err
	}

	token := strings.TrimSpace(*authTokenFlag)
	if token == "" {
		token = strings.TrimSpace(cfg.Server.AuthToken)
	}
	if path := strings.TrimSpace(*tokenFile); path != "" && token == "" {
		expanded, err := expandHomePath(path)
		if err != nil {
			return err
		}
		stored, readErr := readTokenFile(expanded)
		switch {
		case readErr == nil:
			token = stored
		case errors.Is(readErr, iofs.ErrNotExist):
			if !*generateToken {
				return fmt.Errorf("token file %s does not exist (use --generate-token to create one)", expanded)
			}
			generated, err := generateTokenFile(expanded)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Saved auth token to %s\n", expanded)
			if *printToken {
				fmt.Fprintf(os.Stderr, "Generated auth token (store this securely): %s\n", generated)
			}
			token = generated
		default:
			return readErr
		}
	}

	cfg.Server.Bind = strings.TrimSpace(*bind)
	cfg.Server.AuthToken = token
	cfg.Server.PublicMetrics = *publicMetrics
	cfg.Server.Enabled = !*noServer
	if err := cfg.Validate(); err != nil {
		return withExitCode(err, 2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dataDir := config.ResolveDataDir(cfg)
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogDir())
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logging.SetDefault(logger)
	defer logger.Close()
	if level := strings.ToLower(strings.TrimSpace(cfg.Logging.Level)); level != "" {
		logger.SetMinLevel(logging.Level(level))
	}

	if cfg.Logging.Tracing {
		traceFile, err := os.OpenFile(filepath.Join(cfg.LogDir(), "traces.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening trace output: %w", err)
		}
		tracer, err := observability.NewTracerProvider(observability.Options{
			Writer:  traceFile,
			Version: version,
		})
		if err != nil {
			traceFile.Close()
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				logging.Warn(logging.CategoryServer, "tracer_shutdown_failed", "trace spans may be incomplete", map[string]any{
					"error": err.Error(),
				})
			}
			traceFile.Close()
		}()
	}

	var eventBus bus.Bus
	if url := strings.TrimSpace(cfg.Bus.NATSURL); url != "" {
		natsBus, err := bus.ConnectNATS(bus.Config{URL: url})
		if err != nil {
			return fmt.Errorf("connecting event bus: %w", err)
		}
		eventBus = natsBus
	} else {
		eventBus = bus.NewMemoryBus()
	}
	defer eventBus.Close()

	var embedder knowledge.EmbeddingProvider
	var completer assembler.CompletionProvider
	if llm := newProviderClient(cfg); llm != nil {
		embedder = llm
		completer = llm
	}

	store := knowledge.NewStore(knowledge.StoreOptions{
		MaxEntries: cfg.Knowledge.MaxEntries,
		Provider:   embedder,
		Publisher:  eventBus,
	})
	contextCache := cache.New(cache.Options{DefaultTTL: cfg.Cache.DefaultTTL})
	interactions := interaction.NewLog(cfg.Interaction.MaxRecords)
	engine := evolution.NewEngine(evolution.Options{
		Store:     store,
		Log:       interactions,
		Provider:  embedder,
		Publisher: eventBus,
	})
	contextAssembler := assembler.New(assembler.Options{
		Store:      store,
		Cache:      contextCache,
		Provider:   completer,
		MaxTokens:  cfg.Context.MaxTokens,
		QueryLimit: cfg.Context.QueryLimit,
		Threshold:  cfg.Context.ScoreThreshold,
		SummaryTTL: cfg.Context.SummaryTTL,
	})

	snapshots, err := storage.New(cfg.StoragePath())
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer snapshots.Close()

	if entries, err := snapshots.LoadSnapshot(ctx); err != nil {
		logging.Warn(logging.CategoryStorage, "snapshot_load_failed", "starting with an empty knowledge base", map[string]any{
			"error": err.Error(),
		})
	} else if len(entries) > 0 {
		store.Restore(entries)
		logging.Info(logging.CategoryStorage, "snapshot_restored", "knowledge base hydrated from disk", map[string]any{
			"entries": len(entries),
		})
	}

	persist := func() {
		saveCtx, cancelSave := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelSave()
		if err := snapshots.SaveSnapshot(saveCtx, store.Export()); err != nil {
			logging.Error(logging.CategoryStorage, "snapshot_save_failed", "knowledge base not persisted", map[string]any{
				"error": err.Error(),
			})
		}
	}

	var wg sync.WaitGroup
	if cfg.Storage.SaveInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(cfg.Storage.SaveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					persist()
				}
			}
		}()
	}

	// Evolution rewrites entries in bulk, so mirror each completed cycle
	// to disk instead of waiting out the save interval.
	evolutionSub, err := eventBus.Subscribe(bus.SubjectEvolutionCompleted, func(*bus.Message) { persist() })
	if err != nil {
		logging.Warn(logging.CategoryBus, "subscribe_failed", "evolution results will persist on the next interval", map[string]any{
			"error": err.Error(),
		})
	} else {
		defer evolutionSub.Unsubscribe()
	}

	if cfg.Evolution.Enabled && cfg.Evolution.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(cfg.Evolution.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					engine.Evolve(ctx)
				}
			}
		}()
	}

	if cfg.Watch.Enabled && len(cfg.Watch.Paths) > 0 {
		watcher, err := filewatch.New(filewatch.Options{
			Roots:       cfg.Watch.Paths,
			Extensions:  cfg.Watch.Extensions,
			Debounce:    time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
			Invalidator: contextAssembler,
		})
		if err != nil {
			return fmt.Errorf("starting file watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("starting file watcher: %w", err)
		}
		defer watcher.Stop()
	}

	logging.Info(logging.CategoryServer, "starting", "memoria running", map[string]any{
		"version": version,
		"dataDir": dataDir,
		"entries": store.Len(),
	})

	var server *api.Server
	var errCh chan error
	if cfg.Server.Enabled {
		server = api.NewServer(api.Config{
			Bind:          cfg.Server.Bind,
			AuthToken:     cfg.Server.AuthToken,
			PublicMetrics: cfg.Server.PublicMetrics,
			Version:       version,
		}, api.Deps{
			Store:     store,
			Cache:     contextCache,
			Assembler: contextAssembler,
			Engine:    engine,
			Log:       interactions,
			Bus:       eventBus,
		})
		errCh = make(chan error, 1)
		go func() { errCh <- server.Start() }()
	}

	select {
	case err := <-errCh:
		cancel()
		wg.Wait()
		persist()
		return err
	case <-ctx.Done():
	}

	if server != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Warn(logging.CategoryServer, "shutdown_failed", "some requests may have been dropped", map[string]any{
				"error": err.Error(),
			})
		}
	}

	wg.Wait()
	persist()
	logging.Info(logging.CategoryServer, "stopped", "memoria shut down cleanly", nil)
	return nil
}

func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func generateTokenFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("token file path cannot be empty")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write token file: %w", err)
	}
	return token, nil
}

func expandHomePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}

	return path, nil
}
