package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values come from environment variables with sensible defaults.
//
// Environment Variables:
//
// HTTP:
// - HTTP_ADDR: listen address (default: :8080)
//
// Storage:
// - DB_PATH: SQLite database path (default: ./data/translator.db)
//
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 8000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.3)
// - LLM_TIMEOUT: Request timeout in seconds (default: 120)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
//
// Template Host:
// - TEMPLATE_API_URL: base URL of the template hosting API (required)
// - TEMPLATE_API_KEY: API key for the template host (required)
//
// Orchestration:
// - WORKER_CONCURRENCY: max concurrent translation workers (default: 10)
// - COMPLETION_TIMEOUT: max wait for a task to finish (default: 20m)
// - SETTLE_DELAY: delay before completion evaluation (default: 1s)
// - DISPATCH_RETRIES: retries for infrastructure failures (default: 2)
// - DISPATCH_BACKOFF: base backoff between dispatch retries (default: 5s)
//
// Maintenance:
// - STALE_SWEEP_CRON: cron expression for the stale-task sweep (default: every 5 minutes)
//
// Logging:
// - LOG_LEVEL: debug|info|warn|error (default: info)
type Config struct {
	HTTP         HTTPConfig         `json:"http"`
	DB           DBConfig           `json:"db"`
	LLM          LLMConfig          `json:"llm"`
	Templates    TemplatesConfig    `json:"templates"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Maintenance  MaintenanceConfig  `json:"maintenance"`
	LogLevel     string             `json:"log_level"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type DBConfig struct {
	Path string `json:"path"`
}

// LLMConfig holds the configuration for the LLM client.
// Supports any OpenAI-compatible provider (OpenRouter, OpenAI, etc.).
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// TemplatesConfig holds the configuration for the template hosting API.
type TemplatesConfig struct {
	APIURL string `json:"api_url"`
	APIKey string `json:"api_key"`
}

// OrchestratorConfig holds the knobs of the translation workflow engine.
type OrchestratorConfig struct {
	WorkerConcurrency int           `json:"worker_concurrency"`
	CompletionTimeout time.Duration `json:"completion_timeout"`
	SettleDelay       time.Duration `json:"settle_delay"`
	DispatchRetries   int           `json:"dispatch_retries"`
	DispatchBackoff   time.Duration `json:"dispatch_backoff"`
}

type MaintenanceConfig struct {
	StaleSweepCron string `json:"stale_sweep_cron"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		DB: DBConfig{
			Path: getEnvString("DB_PATH", "./data/translator.db"),
		},
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
			Timeout:     getEnvInt("LLM_TIMEOUT", 120),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
		},
		Templates: TemplatesConfig{
			APIURL: getEnvString("TEMPLATE_API_URL", ""),
			APIKey: getEnvString("TEMPLATE_API_KEY", ""),
		},
		Orchestrator: OrchestratorConfig{
			WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
			CompletionTimeout: getEnvDuration("COMPLETION_TIMEOUT", 20*time.Minute),
			SettleDelay:       getEnvDuration("SETTLE_DELAY", time.Second),
			DispatchRetries:   getEnvInt("DISPATCH_RETRIES", 2),
			DispatchBackoff:   getEnvDuration("DISPATCH_BACKOFF", 5*time.Second),
		},
		Maintenance: MaintenanceConfig{
			StaleSweepCron: getEnvString("STALE_SWEEP_CRON", "*/5 * * * *"),
		},
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Orchestrator.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if c.Orchestrator.CompletionTimeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be positive")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration value ("20m", "1s") from environment variables with default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
