// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/action-dispatcher/pkg/registry"
	"github.com/morezero/action-dispatcher/pkg/semver"
)

const logPrefix = "config:LoadConfig"

// Config holds action-dispatcher configuration.
type Config struct {
	// COMMS: an empty NATS_URL disables the queue transport and events.
	COMMSURL  string `envconfig:"NATS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"action-dispatcher"`

	// Queue source
	DispatchSubject    string        `envconfig:"DISPATCH_SUBJECT" default:"api.dispatch"`
	DispatchQueueGroup string        `envconfig:"DISPATCH_QUEUE_GROUP" default:"dispatchers"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`
	EnvelopeVersion    string        `envconfig:"ENVELOPE_VERSION" default:"^1.0"`

	// Declarations
	DeclarationsFile string `envconfig:"DECLARATIONS_FILE"`
	Naming           string `envconfig:"NAMING"`

	// Database; empty keeps API keys in memory.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// Redis key cache; empty disables it.
	RedisURL    string        `envconfig:"REDIS_URL"`
	KeyCacheTTL time.Duration `envconfig:"KEY_CACHE_TTL" default:"5m"`

	// Credentials. Without JWT_SECRET tokens are looked up in declarations.
	JWTSecret     string `envconfig:"JWT_SECRET"`
	EncryptionKey string `envconfig:"ENCRYPTION_KEY"`

	// Rate limiting; zero RPS disables it.
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"20"`

	// HTTP
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the dispatcher server.
func (c *Config) ValidateForServe() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("%s - HTTP_PORT %d out of range", logPrefix, c.HTTPPort)
	}
	if c.COMMSURL != "" && strings.TrimSpace(c.DispatchSubject) == "" {
		return fmt.Errorf("%s - DISPATCH_SUBJECT is required when NATS_URL is set", logPrefix)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("%s - RATE_LIMIT_RPS must not be negative", logPrefix)
	}
	if c.RedisURL != "" && c.DatabaseURL == "" {
		return fmt.Errorf("%s - REDIS_URL caches the database key store and needs DATABASE_URL", logPrefix)
	}
	if c.Naming != "" {
		if _, err := registry.ParseNaming(c.Naming); err != nil {
			return fmt.Errorf("%s - NAMING: %w", logPrefix, err)
		}
	}
	if _, err := semver.NewCompatibility(c.EnvelopeVersion); err != nil {
		return fmt.Errorf("%s - ENVELOPE_VERSION: %w", logPrefix, err)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, seed).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
