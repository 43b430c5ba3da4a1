// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

// Config represents the complete daemon configuration
type Config struct {
	SocketPath    string              `mapstructure:"socket_path"`
	PIDPath       string              `mapstructure:"pid_path"`
	LogPath       string              `mapstructure:"log_path"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Embeddings    EmbeddingConfig     `mapstructure:"embeddings"`
	Memory        MemoryConfig        `mapstructure:"memory"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Monologue     MonologueConfig     `mapstructure:"monologue"`
	Breaker       BreakerConfig       `mapstructure:"breaker"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
	Conversation  ConversationConfig  `mapstructure:"conversation"`
}

// DatabaseConfig holds durable store connection settings
type DatabaseConfig struct {
	Type        string `mapstructure:"type"` // "sqlite" or "postgres"
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// ChatConfig holds the streaming conversation model settings
type ChatConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	APIKeyEnv string `mapstructure:"api_key_env"`
}

// EmbeddingConfig holds the embedding provider settings
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // "openai" or "voyage"
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	APIKeyEnv  string `mapstructure:"api_key_env"`
	Dimensions int    `mapstructure:"dimensions"`
}

// MemoryConfig holds episode graph decay and merge parameters
type MemoryConfig struct {
	HalfLifeDays        float64 `mapstructure:"half_life_days"`
	MinimumSalience     float64 `mapstructure:"minimum_salience"`
	MinimumLinkStrength float64 `mapstructure:"minimum_link_strength"`
	MergeThreshold      float64 `mapstructure:"merge_threshold"`
}

// RetrievalConfig holds spreading-activation retrieval parameters
type RetrievalConfig struct {
	Limit               int     `mapstructure:"limit"`
	MaxHops             int     `mapstructure:"max_hops"`
	DecayPerHop         float64 `mapstructure:"decay_per_hop"`
	ActivationThreshold float64 `mapstructure:"activation_threshold"`
}

// MonologueConfig holds inner-monologue loop parameters
type MonologueConfig struct {
	MaxTokensPerCycle       int `mapstructure:"max_tokens_per_cycle"`
	IdleIntervalMinutes     int `mapstructure:"idle_interval_minutes"`
	ReachOutCooldownMinutes int `mapstructure:"reach_out_cooldown_minutes"`
}

// BreakerConfig holds circuit breaker thresholds
type BreakerConfig struct {
	DistressThreshold      float64 `mapstructure:"distress_threshold"`
	MaxConsecutiveDistress int     `mapstructure:"max_consecutive_distress"`
}

// ConsolidationConfig holds the consolidation schedule
type ConsolidationConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// ConversationConfig holds conversation handler settings
type ConversationConfig struct {
	MaxHistoryTurns int `mapstructure:"max_history_turns"`
}

// EmbeddingProviders defines valid embedding providers
const (
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderVoyage = "voyage"
)

// ValidEmbeddingProviders returns all valid embedding provider values
func ValidEmbeddingProviders() []string {
	return []string{
		EmbeddingProviderOpenAI,
		EmbeddingProviderVoyage,
	}
}

// IsValidEmbeddingProvider checks if a provider is valid
func IsValidEmbeddingProvider(provider string) bool {
	for _, valid := range ValidEmbeddingProviders() {
		if provider == valid {
			return true
		}
	}
	return false
}
