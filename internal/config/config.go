// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigDir is the per-user configuration directory
	DefaultConfigDir = ".reveries"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.json"
)

// Dir returns the per-user reveries directory (~/.reveries)
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultConfigDir), nil
}

// Load reads configuration from ~/.reveries/config.json
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(dir)

	setDefaults(v, dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromPath loads configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	setDefaults(v, dir)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("socket_path", filepath.Join(dir, "reveries.sock"))
	v.SetDefault("pid_path", filepath.Join(dir, "reveries.pid"))
	v.SetDefault("log_path", filepath.Join(dir, "reveries.log"))

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite_path", filepath.Join(dir, "reveries.db"))

	v.SetDefault("chat.base_url", "https://api.cerebras.ai/v1")
	v.SetDefault("chat.model", "llama-3.3-70b")
	v.SetDefault("chat.api_key_env", "CEREBRAS_API_KEY")

	v.SetDefault("embeddings.provider", "openai")
	v.SetDefault("embeddings.base_url", "https://api.openai.com/v1")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("embeddings.dimensions", 1536)

	v.SetDefault("memory.half_life_days", 7.0)
	v.SetDefault("memory.minimum_salience", 0.05)
	v.SetDefault("memory.minimum_link_strength", 0.05)
	v.SetDefault("memory.merge_threshold", 0.85)

	v.SetDefault("retrieval.limit", 10)
	v.SetDefault("retrieval.max_hops", 3)
	v.SetDefault("retrieval.decay_per_hop", 0.5)
	v.SetDefault("retrieval.activation_threshold", 0.01)

	v.SetDefault("monologue.max_tokens_per_cycle", 2000)
	v.SetDefault("monologue.idle_interval_minutes", 5)
	v.SetDefault("monologue.reach_out_cooldown_minutes", 30)

	v.SetDefault("breaker.distress_threshold", 0.6)
	v.SetDefault("breaker.max_consecutive_distress", 3)

	v.SetDefault("consolidation.interval_minutes", 30)

	v.SetDefault("conversation.max_history_turns", 20)
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *Config) {
	if dbType := os.Getenv("REVERIES_DB_TYPE"); dbType != "" {
		cfg.Database.Type = dbType
	}
	if dbPath := os.Getenv("REVERIES_DB_PATH"); dbPath != "" {
		cfg.Database.SQLitePath = dbPath
	}
	if dbDSN := os.Getenv("REVERIES_DB_DSN"); dbDSN != "" {
		cfg.Database.PostgresDSN = dbDSN
	}
	if socketPath := os.Getenv("REVERIES_SOCKET"); socketPath != "" {
		cfg.SocketPath = socketPath
	}
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.Database.Type != "sqlite" && cfg.Database.Type != "postgres" {
		return fmt.Errorf("database.type must be 'sqlite' or 'postgres', got '%s'", cfg.Database.Type)
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite_path is required when type is 'sqlite'")
	}
	if cfg.Database.Type == "postgres" && cfg.Database.PostgresDSN == "" {
		return fmt.Errorf("database.postgres_dsn is required when type is 'postgres'")
	}

	if !IsValidEmbeddingProvider(cfg.Embeddings.Provider) {
		return fmt.Errorf("embeddings.provider must be one of %v, got '%s'",
			ValidEmbeddingProviders(), cfg.Embeddings.Provider)
	}
	if cfg.Embeddings.Dimensions < 1 {
		return fmt.Errorf("embeddings.dimensions must be at least 1, got %d", cfg.Embeddings.Dimensions)
	}

	if cfg.Memory.HalfLifeDays <= 0 {
		return fmt.Errorf("memory.half_life_days must be positive, got %g", cfg.Memory.HalfLifeDays)
	}
	if cfg.Memory.MinimumSalience < 0 || cfg.Memory.MinimumSalience > 1 {
		return fmt.Errorf("memory.minimum_salience must be in [0,1], got %g", cfg.Memory.MinimumSalience)
	}
	if cfg.Memory.MergeThreshold <= 0 || cfg.Memory.MergeThreshold > 1 {
		return fmt.Errorf("memory.merge_threshold must be in (0,1], got %g", cfg.Memory.MergeThreshold)
	}

	if cfg.Retrieval.MaxHops < 0 {
		return fmt.Errorf("retrieval.max_hops must not be negative, got %d", cfg.Retrieval.MaxHops)
	}
	if cfg.Monologue.MaxTokensPerCycle < 1 {
		return fmt.Errorf("monologue.max_tokens_per_cycle must be at least 1, got %d", cfg.Monologue.MaxTokensPerCycle)
	}
	if cfg.Breaker.DistressThreshold <= 0 || cfg.Breaker.DistressThreshold > 1 {
		return fmt.Errorf("breaker.distress_threshold must be in (0,1], got %g", cfg.Breaker.DistressThreshold)
	}
	if cfg.Breaker.MaxConsecutiveDistress < 1 {
		return fmt.Errorf("breaker.max_consecutive_distress must be at least 1, got %d", cfg.Breaker.MaxConsecutiveDistress)
	}
	if cfg.Consolidation.IntervalMinutes < 1 {
		return fmt.Errorf("consolidation.interval_minutes must be at least 1, got %d", cfg.Consolidation.IntervalMinutes)
	}
	if cfg.Conversation.MaxHistoryTurns < 1 {
		return fmt.Errorf("conversation.max_history_turns must be at least 1, got %d", cfg.Conversation.MaxHistoryTurns)
	}

	return nil
}

// ValidateCredentials checks that every required API key is present in the
// environment. It is fatal on wake: the returned error lists every missing
// variable in one human-readable message.
func (c *Config) ValidateCredentials() error {
	var missing []string
	if os.Getenv(c.Chat.APIKeyEnv) == "" {
		missing = append(missing, c.Chat.APIKeyEnv+" (chat model)")
	}
	if os.Getenv(c.Embeddings.APIKeyEnv) == "" {
		missing = append(missing, c.Embeddings.APIKeyEnv+" (embeddings)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required credentials:\n  %s", strings.Join(missing, "\n  "))
	}
	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}
