package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aiser/queryengine/ratequota"
)

// EngineConfig bundles every recognized runtime option for the query
// engine's public surface: server lifecycle, rate/quota defaults, cache
// TTLs, and the upstream LLM provider(s) to register with the gateway.
type EngineConfig struct {
	Addr            string        `yaml:"addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`

	MaxSchemaTokens     int `yaml:"max_schema_tokens"`
	DefaultTimeoutSec   int `yaml:"default_timeout_sec"`
	DefaultMaxRows      int `yaml:"default_max_rows"`
	RetryBudgetPerStage int `yaml:"retry_budget_per_stage"`

	RateLimits ratequota.Limits `yaml:"rate_limits"`

	CacheTTLSchemaHours int `yaml:"cache_ttl_schema_hours"`
	CacheTTLQueryHours  int `yaml:"cache_ttl_query_hours"`
	CacheTTLAIHours     int `yaml:"cache_ttl_ai_hours"`

	EnableStreaming       bool `yaml:"enable_streaming"`
	EnableAIResponseCache bool `yaml:"enable_ai_response_cache"`
	EnableFunctionCalling bool `yaml:"enable_function_calling"`

	RedisAddr string `yaml:"redis_addr"`

	Providers   []ProviderConfig   `yaml:"providers"`
	DataSources []DataSourceConfig `yaml:"data_sources"`
}

// ProviderConfig describes one OpenAI-compatible upstream to register with
// the LLM gateway.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Default bool   `yaml:"default"`
}

// DefaultEngineConfig returns the platform defaults named in the external
// interface contract.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Addr:                ":8080",
		MetricsAddr:         ":9090",
		ShutdownTimeout:     30 * time.Second,
		MaxSchemaTokens:     4000,
		DefaultTimeoutSec:   30,
		DefaultMaxRows:      1000,
		RetryBudgetPerStage: 2,
		RateLimits:          ratequota.DefaultLimits(),
		CacheTTLSchemaHours: 24,
		CacheTTLQueryHours:  1,
		CacheTTLAIHours:     1,
		EnableStreaming:       true,
		EnableAIResponseCache: true,
		EnableFunctionCalling: true,
	}
}

// LoadEngineConfig reads path (if set and present) over the defaults; a
// missing path is not an error, matching how the original service falls
// back to defaults for local/dev runs.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
