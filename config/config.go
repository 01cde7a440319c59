// Package config provides configuration management for the application.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	LogLevel  string
	Anthropic AnthropicConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	GitHub    GitHubConfig
	ClaudeMax ClaudeMaxConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey string
}

// OpenAIConfig holds OpenAI-specific configuration.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// GeminiConfig holds Google Gemini-specific configuration.
type GeminiConfig struct {
	APIKey string
}

// GitHubConfig holds GitHub Models configuration.
type GitHubConfig struct {
	Token string
}

// ClaudeMaxConfig holds configuration for the Claude web-session provider.
type ClaudeMaxConfig struct {
	SessionKey     string
	OrganizationID string
	EncryptionKey  string
}

// RedisConfig holds the optional Redis conversation cache configuration.
type RedisConfig struct {
	URL string
}

// PostgresConfig holds the optional usage database configuration.
type PostgresConfig struct {
	URL           string
	RetentionDays int
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	// Ignore error if .env file doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Anthropic: AnthropicConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		GitHub: GitHubConfig{
			Token: os.Getenv("GITHUB_TOKEN"),
		},
		ClaudeMax: ClaudeMaxConfig{
			SessionKey:     os.Getenv("CLAUDE_SESSION_KEY"),
			OrganizationID: os.Getenv("CLAUDE_ORGANIZATION_ID"),
			EncryptionKey:  os.Getenv("CHATGATE_ENCRYPTION_KEY"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Postgres: PostgresConfig{
			URL:           os.Getenv("DATABASE_URL"),
			RetentionDays: getEnvInt("USAGE_RETENTION_DAYS", 0),
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
