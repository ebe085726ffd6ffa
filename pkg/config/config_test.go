package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docfold/memoria/pkg/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	if cfg.Knowledge.MaxEntries <= 0 {
		t.Fatalf("default max entries should be positive: %d", cfg.Knowledge.MaxEntries)
	}
	if cfg.Cache.DefaultTTL <= 0 {
		t.Fatalf("default cache TTL should be positive: %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Context.MaxTokens != config.DefaultContextTokens {
		t.Fatalf("unexpected context token budget: %d", cfg.Context.MaxTokens)
	}
	if cfg.Context.ScoreThreshold <= 0 || cfg.Context.ScoreThreshold > 1 {
		t.Fatalf("unexpected score threshold: %f", cfg.Context.ScoreThreshold)
	}
	if cfg.Evolution.BoostFactor < 1 {
		t.Fatalf("unexpected boost factor: %f", cfg.Evolution.BoostFactor)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadHierarchy(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()

	t.Setenv("HOME", home)

	userCfgDir := filepath.Join(home, ".memoria")
	if err := os.MkdirAll(userCfgDir, 0o755); err != nil {
		t.Fatalf("mkdir user config: %v", err)
	}
	userCfg := `
knowledge:
  max_entries: 500
context:
  max_tokens: 2000
`
	if err := os.WriteFile(filepath.Join(userCfgDir, "config.yaml"), []byte(userCfg), 0o644); err != nil {
		t.Fatalf("write user config: %v", err)
	}

	projectCfgDir := filepath.Join(project, ".memoria")
	if err := os.MkdirAll(projectCfgDir, 0o755); err != nil {
		t.Fatalf("mkdir project config: %v", err)
	}
	projectCfg := `
knowledge:
  max_entries: 250
cache:
  default_ttl: 30m
`
	if err := os.WriteFile(filepath.Join(projectCfgDir, "config.yaml"), []byte(projectCfg), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(project); err != nil {
		t.Fatalf("chdir project: %v", err)
	}

	t.Setenv("MEMORIA_CONTEXT_QUERY_LIMIT", "7")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}

	// Project overrides user
	if cfg.Knowledge.MaxEntries != 250 {
		t.Fatalf("expected project max_entries override, got %d", cfg.Knowledge.MaxEntries)
	}
	// User value survives when project is silent
	if cfg.Context.MaxTokens != 2000 {
		t.Fatalf("expected user max_tokens override, got %d", cfg.Context.MaxTokens)
	}
	// Project-only value applies
	if cfg.Cache.DefaultTTL != 30*time.Minute {
		t.Fatalf("expected project cache TTL, got %v", cfg.Cache.DefaultTTL)
	}
	// Env beats files
	if cfg.Context.QueryLimit != 7 {
		t.Fatalf("expected env query limit override, got %d", cfg.Context.QueryLimit)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `
knowledge:
  max_entries: 42
evolution:
  enabled: true
  interval: 10m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath returned error: %v", err)
	}

	if cfg.Knowledge.MaxEntries != 42 {
		t.Fatalf("max_entries = %d, want 42", cfg.Knowledge.MaxEntries)
	}
	if !cfg.Evolution.Enabled {
		t.Fatal("evolution should be enabled")
	}
	if cfg.Evolution.Interval != 10*time.Minute {
		t.Fatalf("interval = %v, want 10m", cfg.Evolution.Interval)
	}
	// Untouched sections keep defaults
	if cfg.Context.MaxTokens != config.DefaultContextTokens {
		t.Fatalf("context.max_tokens should keep default, got %d", cfg.Context.MaxTokens)
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	_, err := config.LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestProviderKeyFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-test-key")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}

	if cfg.Provider.APIKey != "sk-test-key" {
		t.Fatalf("provider key = %q, want env key", cfg.Provider.APIKey)
	}
	if !cfg.Provider.Enabled {
		t.Fatal("provider should be enabled when key is present")
	}
}

func TestProviderKeyFromConfigEnvFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MEMORIA_PROVIDER_API_KEY", "")

	memDir := filepath.Join(home, ".memoria")
	if err := os.MkdirAll(memDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	envFile := "# provider credentials\nexport OPENAI_API_KEY=\"sk-from-file\"\n"
	if err := os.WriteFile(filepath.Join(memDir, "config.env"), []byte(envFile), 0o644); err != nil {
		t.Fatalf("write config.env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}

	if cfg.Provider.APIKey != "sk-from-file" {
		t.Fatalf("provider key = %q, want key from config.env", cfg.Provider.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero max entries", func(c *config.Config) { c.Knowledge.MaxEntries = 0 }},
		{"negative cache ttl", func(c *config.Config) { c.Cache.DefaultTTL = -time.Second }},
		{"zero context tokens", func(c *config.Config) { c.Context.MaxTokens = 0 }},
		{"threshold above one", func(c *config.Config) { c.Context.ScoreThreshold = 1.5 }},
		{"zero interaction records", func(c *config.Config) { c.Interaction.MaxRecords = 0 }},
		{"negative relevance", func(c *config.Config) { c.Evolution.MinRelevance = -0.1 }},
		{"boost factor below one", func(c *config.Config) { c.Evolution.BoostFactor = 0.5 }},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "verbose" }},
		{"empty data dir", func(c *config.Config) { c.DataDir = "  " }},
		{"provider enabled without url", func(c *config.Config) {
			c.Provider.Enabled = true
			c.Provider.BaseURL = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateNonLoopbackBindRequiresToken(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Bind = "0.0.0.0:7731"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for public bind without auth token")
	}

	cfg.Server.AuthToken = "short"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for short auth token on public bind")
	}

	cfg.Server.AuthToken = "0123456789abcdef0123456789abcdef"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("long token on public bind should validate: %v", err)
	}
}

func TestValidateLoopbackBindNeedsNoToken(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Bind = "localhost:7731"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("loopback bind should not require token: %v", err)
	}
}

func TestResolveDataDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	dir := config.ResolveDataDir(cfg)
	if dir != cfg.DataDir {
		t.Fatalf("ResolveDataDir = %q, want %q", dir, cfg.DataDir)
	}

	if got := cfg.LogDir(); got != filepath.Join(dir, "logs") {
		t.Fatalf("LogDir = %q, want %q", got, filepath.Join(dir, "logs"))
	}
	if got := cfg.StoragePath(); got != filepath.Join(dir, "memoria.db") {
		t.Fatalf("StoragePath = %q, want %q", got, filepath.Join(dir, "memoria.db"))
	}

	cfg.Logging.Dir = "/tmp/custom-logs"
	if got := cfg.LogDir(); got != "/tmp/custom-logs" {
		t.Fatalf("explicit LogDir = %q, want /tmp/custom-logs", got)
	}
	cfg.Storage.Path = "/tmp/custom.db"
	if got := cfg.StoragePath(); got != "/tmp/custom.db" {
		t.Fatalf("explicit StoragePath = %q, want /tmp/custom.db", got)
	}
}

func TestEnvOverridesWatch(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEMORIA_WATCH_PATHS", "docs, src ,")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}

	if !cfg.Watch.Enabled {
		t.Fatal("watch should be enabled when paths are set")
	}
	if len(cfg.Watch.Paths) != 2 || cfg.Watch.Paths[0] != "docs" || cfg.Watch.Paths[1] != "src" {
		t.Fatalf("watch paths = %v, want [docs src]", cfg.Watch.Paths)
	}
}
