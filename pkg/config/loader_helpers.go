package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	// The raw map tells apart "absent" from "explicit zero value" for
	// booleans and zero-ambiguous fields.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.DataDir != "" {
		base.DataDir = override.DataDir
	}

	if override.Knowledge.MaxEntries != 0 {
		base.Knowledge.MaxEntries = override.Knowledge.MaxEntries
	}

	if override.Cache.DefaultTTL != 0 {
		base.Cache.DefaultTTL = override.Cache.DefaultTTL
	}

	if override.Context.MaxTokens != 0 {
		base.Context.MaxTokens = override.Context.MaxTokens
	}
	if override.Context.QueryLimit != 0 {
		base.Context.QueryLimit = override.Context.QueryLimit
	}
	if boolFieldSet(raw, "context", "score_threshold") {
		base.Context.ScoreThreshold = override.Context.ScoreThreshold
	}
	if override.Context.SummaryTTL != 0 {
		base.Context.SummaryTTL = override.Context.SummaryTTL
	}

	if override.Interaction.MaxRecords != 0 {
		base.Interaction.MaxRecords = override.Interaction.MaxRecords
	}

	if boolFieldSet(raw, "evolution", "enabled") {
		base.Evolution.Enabled = override.Evolution.Enabled
	}
	if override.Evolution.Interval != 0 {
		base.Evolution.Interval = override.Evolution.Interval
	}
	if override.Evolution.MaxAge != 0 {
		base.Evolution.MaxAge = override.Evolution.MaxAge
	}
	if boolFieldSet(raw, "evolution", "min_relevance") {
		base.Evolution.MinRelevance = override.Evolution.MinRelevance
	}
	if override.Evolution.BoostRecent != 0 {
		base.Evolution.BoostRecent = override.Evolution.BoostRecent
	}
	if override.Evolution.BoostFactor != 0 {
		base.Evolution.BoostFactor = override.Evolution.BoostFactor
	}

	providerEnabledSet := boolFieldSet(raw, "provider", "enabled")
	if override.Provider.BaseURL != "" {
		base.Provider.BaseURL = override.Provider.BaseURL
	}
	if override.Provider.APIKey != "" {
		base.Provider.APIKey = override.Provider.APIKey
	}
	if override.Provider.EmbeddingModel != "" {
		base.Provider.EmbeddingModel = override.Provider.EmbeddingModel
	}
	if override.Provider.CompletionModel != "" {
		base.Provider.CompletionModel = override.Provider.CompletionModel
	}
	if override.Provider.TimeoutSecs != 0 {
		base.Provider.TimeoutSecs = override.Provider.TimeoutSecs
	}
	if boolFieldSet(raw, "provider", "requests_per_second") {
		base.Provider.RequestsPerSecond = override.Provider.RequestsPerSecond
	}
	if providerEnabledSet {
		base.Provider.Enabled = override.Provider.Enabled
	} else if override.Provider.APIKey != "" {
		base.Provider.Enabled = true
	}

	if override.Storage.Path != "" {
		base.Storage.Path = override.Storage.Path
	}
	if boolFieldSet(raw, "storage", "save_interval") {
		base.Storage.SaveInterval = override.Storage.SaveInterval
	}

	if override.Bus.NATSURL != "" {
		base.Bus.NATSURL = override.Bus.NATSURL
	}

	watchEnabledSet := boolFieldSet(raw, "watch", "enabled")
	if boolFieldSet(raw, "watch", "paths") {
		base.Watch.Paths = append([]string{}, override.Watch.Paths...)
	}
	if boolFieldSet(raw, "watch", "extensions") {
		base.Watch.Extensions = append([]string{}, override.Watch.Extensions...)
	}
	if boolFieldSet(raw, "watch", "debounce_ms") {
		base.Watch.DebounceMS = override.Watch.DebounceMS
	}
	if watchEnabledSet {
		base.Watch.Enabled = override.Watch.Enabled
	} else if len(override.Watch.Paths) > 0 {
		base.Watch.Enabled = true
	}

	if boolFieldSet(raw, "server", "enabled") {
		base.Server.Enabled = override.Server.Enabled
	}
	if override.Server.Bind != "" {
		base.Server.Bind = override.Server.Bind
	}
	if override.Server.AuthToken != "" {
		base.Server.AuthToken = override.Server.AuthToken
	}
	if boolFieldSet(raw, "server", "public_metrics") {
		base.Server.PublicMetrics = override.Server.PublicMetrics
	}

	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if boolFieldSet(raw, "logging", "tracing") {
		base.Logging.Tracing = override.Logging.Tracing
	}
}

func boolFieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
