// Package config provides configuration types and loading for corpclaw.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Org, Context, Providers, Store.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Model     ModelConfig     `json:"model"`
	Org       OrgConfig       `json:"org"`
	Context   ContextConfig   `json:"context"`
	Providers ProvidersConfig `json:"providers"`
	Store     StoreConfig     `json:"store"`
}

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	Workspace string `json:"workspace" envconfig:"WORKSPACE"`
	DataDir   string `json:"dataDir" envconfig:"DATA_DIR"`
}

// ModelConfig groups LLM model and agent-loop settings.
type ModelConfig struct {
	Name                    string  `json:"name" envconfig:"MODEL"`
	MaxTokens               int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature             float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxToolIterations       int     `json:"maxToolIterations" envconfig:"MAX_TOOL_ITERATIONS"`
	PrivilegedMaxIterations int     `json:"privilegedMaxIterations" envconfig:"PRIVILEGED_MAX_ITERATIONS"`
}

// OrgConfig groups actor-communication limits.
type OrgConfig struct {
	MaxCallDepth    int           `json:"maxCallDepth" envconfig:"MAX_CALL_DEPTH"`
	MessageTimeout  time.Duration `json:"messageTimeout" envconfig:"MESSAGE_TIMEOUT"`
	MaxReworkCycles int           `json:"maxReworkCycles" envconfig:"MAX_REWORK_CYCLES"`
}

// ContextConfig groups context-window budgeting settings.
type ContextConfig struct {
	TokenBudget      int           `json:"tokenBudget" envconfig:"TOKEN_BUDGET"`
	SummaryCacheSize int           `json:"summaryCacheSize" envconfig:"SUMMARY_CACHE_SIZE"`
	SummaryCacheTTL  time.Duration `json:"summaryCacheTtl" envconfig:"SUMMARY_CACHE_TTL"`
}

// ProvidersConfig contains LLM provider configurations, in fallback
// order.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `json:"anthropic"`
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	// MaxAttempts is the per-provider retry budget for transient
	// failures.
	MaxAttempts int `json:"maxAttempts" envconfig:"MAX_ATTEMPTS"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// StoreConfig groups persistence settings.
type StoreConfig struct {
	Path          string        `json:"path" envconfig:"PATH"`
	FlushInterval time.Duration `json:"flushInterval" envconfig:"FLUSH_INTERVAL"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Workspace: "~/CorpClaw-Workspace",
			DataDir:   "~/.corpclaw",
		},
		Model: ModelConfig{
			Name:                    "anthropic/claude-sonnet-4-5",
			MaxTokens:               8192,
			Temperature:             0.7,
			MaxToolIterations:       25,
			PrivilegedMaxIterations: 100,
		},
		Org: OrgConfig{
			MaxCallDepth:    5,
			MessageTimeout:  2 * time.Minute,
			MaxReworkCycles: 3,
		},
		Context: ContextConfig{
			TokenBudget:      8000,
			SummaryCacheSize: 128,
			SummaryCacheTTL:  30 * time.Minute,
		},
		Providers: ProvidersConfig{
			MaxAttempts: 3,
		},
		Store: StoreConfig{
			Path:          "~/.corpclaw/records.db",
			FlushInterval: 500 * time.Millisecond,
		},
	}
}
