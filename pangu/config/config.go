package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/pangu-agent/pangu"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Harness  HarnessConfig  `mapstructure:"harness"`
	Database DatabaseConfig `mapstructure:"database"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"`
}

// LLMConfig stores language model configurations.
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"`        // "openai", "llama"
	BaseURL        string        `mapstructure:"base_url"`        // OpenAI-compatible endpoint
	APIKey         string        `mapstructure:"api_key"`         // Bearer token, optional for local servers
	Model          string        `mapstructure:"model"`           // Model name sent to the endpoint
	ModelPath      string        `mapstructure:"model_path"`      // GGUF file for the llama provider
	MaxNewTokens   int           `mapstructure:"max_new_tokens"`  // Max tokens to generate
	Temperature    float32       `mapstructure:"temperature"`     // Sampling temperature
	TopP           float32       `mapstructure:"top_p"`           // Nucleus sampling
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // HTTP client timeout
	ContextSize    int           `mapstructure:"context_size"`    // llama context window
	GPULayers      int           `mapstructure:"gpu_layers"`      // llama layers offloaded to GPU
	Threads        int           `mapstructure:"threads"`         // llama inference threads
}

// HarnessConfig stores agent loop configurations.
type HarnessConfig struct {
	// Forecast lookup cache
	CacheEnabled    bool `mapstructure:"cache_enabled"`
	CacheCapacity   int  `mapstructure:"cache_capacity"`
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"`

	// Admission of concurrent turns
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"`

	// Policies
	MaxIterations   int           `mapstructure:"max_iterations"`    // Thought/Action cycles per turn
	MaxParseRetries int           `mapstructure:"max_parse_retries"` // Unparseable model outputs tolerated per turn
	StepTimeout     time.Duration `mapstructure:"step_timeout"`      // Per THINKING step
	ToolTimeout     time.Duration `mapstructure:"tool_timeout"`      // Per tool invocation
	RetryCount      int           `mapstructure:"retry_count"`       // Provider call retries
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`     // Base delay between retries
	MaxOutputSize   int           `mapstructure:"max_output_size"`   // Final answer size cap in bytes

	// Safety and validation
	EnableGuardrails bool     `mapstructure:"enable_guardrails"`
	AllowedTools     []string `mapstructure:"allowed_tools"` // Empty means every registered tool

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`

	// Batch mode
	BatchConcurrency int `mapstructure:"batch_concurrency"`
}

// ForecastConfig describes where precomputed statistics come from.
type ForecastConfig struct {
	Source   string `mapstructure:"source"`    // "database" or "file"
	SeedFile string `mapstructure:"seed_file"` // YAML seed, required for "file"
}

// LogConfig controls the zerolog root logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.AutomaticEnv()
	// llm.api_key becomes LLM_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file on the search path; defaults and env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("database.type", internal.DefaultDatabaseType)

	// LLM defaults mirror the original text-generation pipeline
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "http://localhost:8000/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "qwen2.5-1.5b-instruct")
	v.SetDefault("llm.model_path", "")
	v.SetDefault("llm.max_new_tokens", 1024)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.top_p", 0.95)
	v.SetDefault("llm.request_timeout", "2m")
	v.SetDefault("llm.context_size", 4096)
	v.SetDefault("llm.gpu_layers", 0)
	v.SetDefault("llm.threads", 4)

	v.SetDefault("harness.cache_enabled", true)
	v.SetDefault("harness.cache_capacity", 256)
	v.SetDefault("harness.cache_ttl_seconds", 3600)
	v.SetDefault("harness.rate_limit_enabled", false)
	v.SetDefault("harness.rate_limit_capacity", 4)
	v.SetDefault("harness.rate_limit_refill_rate", "1s")
	v.SetDefault("harness.max_iterations", 6)
	v.SetDefault("harness.max_parse_retries", 2)
	v.SetDefault("harness.step_timeout", "2m")
	v.SetDefault("harness.tool_timeout", "30s")
	v.SetDefault("harness.retry_count", 2)
	v.SetDefault("harness.retry_backoff", "200ms")
	v.SetDefault("harness.max_output_size", 8000)
	v.SetDefault("harness.enable_guardrails", true)
	v.SetDefault("harness.allowed_tools", []string{})
	v.SetDefault("harness.enable_tracing", true)
	v.SetDefault("harness.batch_concurrency", 2)

	v.SetDefault("forecast.source", "database")
	v.SetDefault("forecast.seed_file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}
