// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor
// principles, with an optional JSON file overlay for deployments that
// prefer config files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables, then overridden by
// the JSON config file when CONFIG_FILE is set.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Token signing
	TokenSecret string        `env:"TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Webhook delivery
	// Allow http:// targets and private address ranges (local testing only).
	WebhookAllowInsecure bool `env:"WEBHOOK_ALLOW_INSECURE" envDefault:"false"`

	// Optional JSON config file; values present in the file win over env.
	ConfigFile string `env:"CONFIG_FILE" envDefault:""`
}

// fileConfig mirrors Config with pointer fields so that absent keys in the
// JSON file leave the env-derived value untouched.
type fileConfig struct {
	AppEnv               *string `json:"app_env"`
	AppPort              *int    `json:"app_port"`
	DatabaseURL          *string `json:"database_url"`
	RedisURL             *string `json:"redis_url"`
	TokenSecret          *string `json:"token_secret"`
	TokenTTL             *string `json:"token_ttl"`
	LogLevel             *string `json:"log_level"`
	LogFormat            *string `json:"log_format"`
	CORSAllowedOrigins   *string `json:"cors_allowed_origins"`
	WebhookAllowInsecure *bool   `json:"webhook_allow_insecure"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables, applies the optional config file
// overlay, and returns a Config. Returns an error if required variables
// are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", cfg.ConfigFile, err)
		}
	}

	if cfg.TokenSecret == "" {
		return nil, errors.New("token secret is required (set TOKEN_SECRET or token_secret in the config file)")
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}

	if fc.AppEnv != nil {
		c.AppEnv = *fc.AppEnv
	}
	if fc.AppPort != nil {
		c.AppPort = *fc.AppPort
	}
	if fc.DatabaseURL != nil {
		c.DatabaseURL = *fc.DatabaseURL
	}
	if fc.RedisURL != nil {
		c.RedisURL = *fc.RedisURL
	}
	if fc.TokenSecret != nil {
		c.TokenSecret = *fc.TokenSecret
	}
	if fc.TokenTTL != nil {
		ttl, err := time.ParseDuration(*fc.TokenTTL)
		if err != nil {
			return fmt.Errorf("parse token_ttl: %w", err)
		}
		c.TokenTTL = ttl
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.LogFormat != nil {
		c.LogFormat = *fc.LogFormat
	}
	if fc.CORSAllowedOrigins != nil {
		c.CORSAllowedOrigins = *fc.CORSAllowedOrigins
	}
	if fc.WebhookAllowInsecure != nil {
		c.WebhookAllowInsecure = *fc.WebhookAllowInsecure
	}

	return nil
}
