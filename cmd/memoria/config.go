package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docfold/memoria/pkg/config"
)

func runConfigCommand(args []string) error {
	subCmd := "show"
	if len(args) > 0 {
		subCmd = args[0]
	}

	switch subCmd {
	case "check":
		return runConfigCheck()
	case "show":
		return runConfigShow()
	case "path":
		return runConfigPath()
	default:
		return fmt.Errorf("unknown config command: %s (use check, show, or path)", subCmd)
	}
}

func runConfigCheck() error {
	fmt.Println("Checking memoria configuration...")
	fmt.Println()

	home, _ := os.UserHomeDir()
	userConfig := filepath.Join(home, ".memoria", "config.yaml")
	projectConfig := filepath.Join(".", ".memoria", "config.yaml")

	fmt.Println("Configuration files:")
	if _, err := os.Stat(userConfig); err == nil {
		fmt.Printf("  + User config:    %s\n", userConfig)
	} else {
		fmt.Printf("  - User config:    %s (not found)\n", userConfig)
	}
	if _, err := os.Stat(projectConfig); err == nil {
		fmt.Printf("  + Project config: %s\n", projectConfig)
	} else {
		fmt.Printf("  - Project config: %s (not found)\n", projectConfig)
	}
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  x Validation: %v\n", err)
		return withExitCode(fmt.Errorf("configuration is invalid"), 2)
	}
	fmt.Println("  + Configuration loads and validates")

	dataDir := config.ResolveDataDir(cfg)
	if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
		fmt.Printf("  + Data directory: %s\n", dataDir)
	} else {
		fmt.Printf("  - Data directory: %s (will be created on first run)\n", dataDir)
	}

	if cfg.Provider.Enabled {
		if strings.TrimSpace(cfg.Provider.APIKey) != "" {
			fmt.Println("  + Provider: enabled with API key")
		} else {
			fmt.Println("  x Provider: enabled but no API key (set MEMORIA_PROVIDER_API_KEY or OPENAI_API_KEY)")
		}
	} else {
		fmt.Println("  - Provider: disabled (embeddings and summaries off)")
	}

	if url := strings.TrimSpace(cfg.Bus.NATSURL); url != "" {
		fmt.Printf("  + Event bus: NATS at %s\n", url)
	} else {
		fmt.Println("  - Event bus: in-process only")
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func runConfigShow() error {
	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(fmt.Errorf("failed to load config: %w", err), 2)
	}

	fmt.Println("Current configuration:")
	fmt.Println()
	fmt.Printf("Data directory: %s\n", config.ResolveDataDir(cfg))
	fmt.Println()
	fmt.Printf("Knowledge:\n")
	fmt.Printf("  Max entries: %d\n", cfg.Knowledge.MaxEntries)
	fmt.Println()
	fmt.Printf("Cache:\n")
	fmt.Printf("  Default TTL: %v\n", cfg.Cache.DefaultTTL)
	fmt.Println()
	fmt.Printf("Context:\n")
	fmt.Printf("  Max tokens:      %d\n", cfg.Context.MaxTokens)
	fmt.Printf("  Query limit:     %d\n", cfg.Context.QueryLimit)
	fmt.Printf("  Score threshold: %.2f\n", cfg.Context.ScoreThreshold)
	fmt.Println()
	fmt.Printf("Evolution:\n")
	fmt.Printf("  Enabled:  %v\n", cfg.Evolution.Enabled)
	fmt.Printf("  Interval: %v\n", cfg.Evolution.Interval)
	fmt.Println()
	fmt.Printf("Provider:\n")
	fmt.Printf("  Enabled:          %v\n", cfg.Provider.Enabled)
	fmt.Printf("  Base URL:         %s\n", cfg.Provider.BaseURL)
	fmt.Printf("  Embedding model:  %s\n", cfg.Provider.EmbeddingModel)
	fmt.Printf("  Completion model: %s\n", cfg.Provider.CompletionModel)
	fmt.Printf("  API key:          %s\n", maskSecret(cfg.Provider.APIKey))
	fmt.Println()
	fmt.Printf("Server:\n")
	fmt.Printf("  Enabled:        %v\n", cfg.Server.Enabled)
	fmt.Printf("  Bind:           %s\n", cfg.Server.Bind)
	fmt.Printf("  Auth token:     %s\n", maskSecret(cfg.Server.AuthToken))
	fmt.Printf("  Public metrics: %v\n", cfg.Server.PublicMetrics)
	fmt.Println()
	fmt.Printf("Watch:\n")
	fmt.Printf("  Enabled: %v\n", cfg.Watch.Enabled)
	if len(cfg.Watch.Paths) > 0 {
		fmt.Printf("  Paths:   %s\n", strings.Join(cfg.Watch.Paths, ", "))
	}
	fmt.Println()
	fmt.Printf("Logging:\n")
	fmt.Printf("  Directory: %s\n", cfg.LogDir())
	fmt.Printf("  Level:     %s\n", cfg.Logging.Level)
	fmt.Printf("  Tracing:   %v\n", cfg.Logging.Tracing)
	return nil
}

func runConfigPath() error {
	home, _ := os.UserHomeDir()
	cfg, err := loadConfig()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	fmt.Println("Configuration file locations:")
	fmt.Printf("  User:    %s\n", filepath.Join(home, ".memoria", "config.yaml"))
	fmt.Printf("  Project: %s\n", filepath.Join(".", ".memoria", "config.yaml"))
	fmt.Printf("  Env:     %s\n", filepath.Join(home, ".memoria", "config.env"))
	fmt.Println()
	fmt.Printf("Snapshot database: %s\n", cfg.StoragePath())
	fmt.Printf("Log directory:     %s\n", cfg.LogDir())
	return nil
}

func maskSecret(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return "(set)"
}
