package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEmbeddingModel  = "text-embedding-3-small"
	defaultCompletionModel = "gpt-4o-mini"

	// MinTokenLength is the minimum length for server auth tokens when
	// binding beyond loopback
	MinTokenLength = 32
)

// Default configuration values exported for documentation and validation
const (
	DefaultMaxEntries     = 10000
	DefaultCacheTTL       = time.Hour
	DefaultContextTokens  = 4000
	DefaultQueryLimit     = 20
	DefaultScoreThreshold = 0.3
	DefaultMaxRecords     = 1000
	DefaultServerBind     = "127.0.0.1:7731"
	DefaultDataDir        = ".memoria"
	DefaultBoostFactor    = 1.1
	DefaultBoostRecent    = 10
)

// Config represents the complete memoria configuration
type Config struct {
	DataDir     string            `yaml:"data_dir"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	Cache       CacheConfig       `yaml:"cache"`
	Context     ContextConfig     `yaml:"context"`
	Interaction InteractionConfig `yaml:"interaction"`
	Evolution   EvolutionConfig   `yaml:"evolution"`
	Provider    ProviderConfig    `yaml:"provider"`
	Storage     StorageConfig     `yaml:"storage"`
	Bus         BusConfig         `yaml:"bus"`
	Watch       WatchConfig       `yaml:"watch"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// KnowledgeConfig controls the in-memory entry store
type KnowledgeConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// CacheConfig controls the TTL context cache
type CacheConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// ContextConfig controls context assembly
type ContextConfig struct {
	MaxTokens      int           `yaml:"max_tokens"`
	QueryLimit     int           `yaml:"query_limit"`
	ScoreThreshold float64       `yaml:"score_threshold"`
	SummaryTTL     time.Duration `yaml:"summary_ttl"`
}

// InteractionConfig controls the interaction log
type InteractionConfig struct {
	MaxRecords int `yaml:"max_records"`
}

// EvolutionConfig controls scheduled knowledge maintenance
type EvolutionConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	MaxAge       time.Duration `yaml:"max_age"`
	MinRelevance float64       `yaml:"min_relevance"`
	BoostRecent  int           `yaml:"boost_recent"`
	BoostFactor  float64       `yaml:"boost_factor"`
}

// ProviderConfig defines the embedding/completion provider settings
type ProviderConfig struct {
	Enabled           bool    `yaml:"enabled"`
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"` // Can be set here or via env var
	EmbeddingModel    string  `yaml:"embedding_model"`
	CompletionModel   string  `yaml:"completion_model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// StorageConfig controls the sqlite snapshot mirror
type StorageConfig struct {
	Path         string        `yaml:"path"` // Defaults to <data_dir>/memoria.db
	SaveInterval time.Duration `yaml:"save_interval"`
}

// BusConfig controls event publishing
type BusConfig struct {
	NATSURL string `yaml:"nats_url"` // Empty means in-process bus only
}

// WatchConfig controls the source file watcher
type WatchConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Paths      []string `yaml:"paths"`
	Extensions []string `yaml:"extensions"`
	DebounceMS int      `yaml:"debounce_ms"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Bind          string `yaml:"bind"`
	AuthToken     string `yaml:"auth_token"`
	PublicMetrics bool   `yaml:"public_metrics"`
}

// LoggingConfig controls structured logging and tracing
type LoggingConfig struct {
	Dir     string `yaml:"dir"` // Defaults to <data_dir>/logs
	Level   string `yaml:"level"`
	Tracing bool   `yaml:"tracing"`
}

// DefaultConfig returns the configuration defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir,
		Knowledge: KnowledgeConfig{
			MaxEntries: DefaultMaxEntries,
		},
		Cache: CacheConfig{
			DefaultTTL: DefaultCacheTTL,
		},
		Context: ContextConfig{
			MaxTokens:      DefaultContextTokens,
			QueryLimit:     DefaultQueryLimit,
			ScoreThreshold: DefaultScoreThreshold,
			SummaryTTL:     time.Hour,
		},
		Interaction: InteractionConfig{
			MaxRecords: DefaultMaxRecords,
		},
		Evolution: EvolutionConfig{
			Enabled:      false,
			Interval:     30 * time.Minute,
			MaxAge:       60 * 24 * time.Hour,
			MinRelevance: 0.2,
			BoostRecent:  DefaultBoostRecent,
			BoostFactor:  DefaultBoostFactor,
		},
		Provider: ProviderConfig{
			Enabled:           false,
			BaseURL:           "https://api.openai.com/v1",
			EmbeddingModel:    defaultEmbeddingModel,
			CompletionModel:   defaultCompletionModel,
			TimeoutSecs:       30,
			RequestsPerSecond: 5,
		},
		Storage: StorageConfig{
			SaveInterval: 5 * time.Minute,
		},
		Watch: WatchConfig{
			Enabled:    false,
			Extensions: []string{".go", ".md", ".ts", ".js", ".py", ".rs", ".java"},
			DebounceMS: 500,
		},
		Server: ServerConfig{
			Enabled: true,
			Bind:    DefaultServerBind,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from default locations with proper precedence
func Load() (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	// Load user config (~/.memoria/config.yaml)
	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to HOME env var if UserHomeDir fails
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".memoria", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	// Load project config (./.memoria/config.yaml)
	projectConfigPath := filepath.Join(".", ".memoria", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg, configEnv)

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	configEnv := loadConfigEnvVars()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	applyEnvOverrides(cfg, configEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config, configEnv map[string]string) {
	if v := os.Getenv("MEMORIA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := strings.TrimSpace(os.Getenv("MEMORIA_MAX_ENTRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Knowledge.MaxEntries = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("MEMORIA_CACHE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Cache.DefaultTTL = d
		}
	}

	if v := strings.TrimSpace(os.Getenv("MEMORIA_CONTEXT_MAX_TOKENS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Context.MaxTokens = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORIA_CONTEXT_QUERY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Context.QueryLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORIA_CONTEXT_SCORE_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Context.ScoreThreshold = f
		}
	}

	if v := strings.TrimSpace(os.Getenv("MEMORIA_INTERACTION_MAX_RECORDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Interaction.MaxRecords = n
		}
	}

	if val, ok := envBool("MEMORIA_EVOLUTION_ENABLED"); ok {
		cfg.Evolution.Enabled = val
	}
	if v := strings.TrimSpace(os.Getenv("MEMORIA_EVOLUTION_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Evolution.Interval = d
			cfg.Evolution.Enabled = true
		}
	}

	// Provider settings
	if val, ok := envBool("MEMORIA_PROVIDER_ENABLED"); ok {
		cfg.Provider.Enabled = val
	}
	if v := os.Getenv("MEMORIA_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("MEMORIA_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
		cfg.Provider.Enabled = true
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
		cfg.Provider.Enabled = true
	} else if cfg.Provider.APIKey == "" {
		if v := configEnv["OPENAI_API_KEY"]; v != "" {
			cfg.Provider.APIKey = v
			cfg.Provider.Enabled = true
		}
	}
	if v := os.Getenv("MEMORIA_EMBEDDING_MODEL"); v != "" {
		cfg.Provider.EmbeddingModel = v
	}
	if v := os.Getenv("MEMORIA_COMPLETION_MODEL"); v != "" {
		cfg.Provider.CompletionModel = v
	}

	if v := os.Getenv("MEMORIA_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("MEMORIA_NATS_URL"); v != "" {
		cfg.Bus.NATSURL = v
	}

	if val, ok := envBool("MEMORIA_WATCH_ENABLED"); ok {
		cfg.Watch.Enabled = val
	}
	if v := strings.TrimSpace(os.Getenv("MEMORIA_WATCH_PATHS")); v != "" {
		var paths []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		if len(paths) > 0 {
			cfg.Watch.Paths = paths
			cfg.Watch.Enabled = true
		}
	}

	if val, ok := envBool("MEMORIA_SERVER_ENABLED"); ok {
		cfg.Server.Enabled = val
	}
	if v := os.Getenv("MEMORIA_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("MEMORIA_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if val, ok := envBool("MEMORIA_PUBLIC_METRICS"); ok {
		cfg.Server.PublicMetrics = val
	}

	if v := os.Getenv("MEMORIA_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("MEMORIA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if val, ok := envBool("MEMORIA_TRACING"); ok {
		cfg.Logging.Tracing = val
	}
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func isLoopbackBindAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	switch strings.ToLower(host) {
	case "localhost":
		return true
	case "0.0.0.0", "::":
		return false
	default:
		ip := net.ParseIP(host)
		if ip == nil {
			return false
		}
		return ip.IsLoopback()
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}

	if c.Knowledge.MaxEntries <= 0 {
		return fmt.Errorf("knowledge.max_entries must be > 0, got %d", c.Knowledge.MaxEntries)
	}

	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.default_ttl must be > 0, got %v", c.Cache.DefaultTTL)
	}

	if c.Context.MaxTokens <= 0 {
		return fmt.Errorf("context.max_tokens must be > 0, got %d", c.Context.MaxTokens)
	}
	if c.Context.QueryLimit <= 0 {
		return fmt.Errorf("context.query_limit must be > 0, got %d", c.Context.QueryLimit)
	}
	if c.Context.ScoreThreshold < 0 || c.Context.ScoreThreshold > 1 {
		return fmt.Errorf("context.score_threshold must be between 0 and 1, got %f", c.Context.ScoreThreshold)
	}
	if c.Context.SummaryTTL <= 0 {
		return fmt.Errorf("context.summary_ttl must be > 0, got %v", c.Context.SummaryTTL)
	}

	if c.Interaction.MaxRecords <= 0 {
		return fmt.Errorf("interaction.max_records must be > 0, got %d", c.Interaction.MaxRecords)
	}

	if c.Evolution.Interval < 0 {
		return fmt.Errorf("evolution.interval must be >= 0, got %v", c.Evolution.Interval)
	}
	if c.Evolution.MaxAge < 0 {
		return fmt.Errorf("evolution.max_age must be >= 0, got %v", c.Evolution.MaxAge)
	}
	if c.Evolution.MinRelevance < 0 || c.Evolution.MinRelevance > 1 {
		return fmt.Errorf("evolution.min_relevance must be between 0 and 1, got %f", c.Evolution.MinRelevance)
	}
	if c.Evolution.BoostRecent < 0 {
		return fmt.Errorf("evolution.boost_recent must be >= 0, got %d", c.Evolution.BoostRecent)
	}
	if c.Evolution.BoostFactor < 1 {
		return fmt.Errorf("evolution.boost_factor must be >= 1, got %f", c.Evolution.BoostFactor)
	}

	if c.Provider.TimeoutSecs < 0 {
		return fmt.Errorf("provider.timeout_secs must be >= 0, got %d", c.Provider.TimeoutSecs)
	}
	if c.Provider.RequestsPerSecond < 0 {
		return fmt.Errorf("provider.requests_per_second must be >= 0, got %f", c.Provider.RequestsPerSecond)
	}
	if c.Provider.Enabled && strings.TrimSpace(c.Provider.BaseURL) == "" {
		return fmt.Errorf("provider.base_url is required when the provider is enabled")
	}

	if c.Storage.SaveInterval < 0 {
		return fmt.Errorf("storage.save_interval must be >= 0, got %v", c.Storage.SaveInterval)
	}

	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch.debounce_ms must be >= 0, got %d", c.Watch.DebounceMS)
	}

	if c.Server.Enabled && strings.TrimSpace(c.Server.Bind) != "" && !isLoopbackBindAddress(c.Server.Bind) {
		if strings.TrimSpace(c.Server.AuthToken) == "" {
			return fmt.Errorf("server.bind %q is not loopback: set server.auth_token", c.Server.Bind)
		}
		if len(c.Server.AuthToken) < MinTokenLength {
			return fmt.Errorf("server.auth_token must be at least %d characters when binding beyond loopback", MinTokenLength)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// loadConfigEnvVars reads ~/.memoria/config.env for provider keys kept
// outside the YAML config
func loadConfigEnvVars() map[string]string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}

	path := filepath.Join(home, ".memoria", "config.env")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	vars := make(map[string]string)
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		line = strings.TrimSpace(line)
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		vars[key] = value
	}
	return vars
}
