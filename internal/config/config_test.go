package config

import (
	"os"
	"testing"
	"time"
)

var allEnv = []string{
	"NATS_URL", "SERVICE_NAME",
	"DISPATCH_SUBJECT", "DISPATCH_QUEUE_GROUP",
	"REQUEST_TIMEOUT", "ENVELOPE_VERSION", "DECLARATIONS_FILE", "NAMING",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"REDIS_URL", "KEY_CACHE_TTL", "JWT_SECRET", "ENCRYPTION_KEY",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnv {
		if v, ok := os.LookupEnv(env); ok {
			t.Cleanup(func() { os.Setenv(env, v) })
		}
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://127.0.0.1:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://127.0.0.1:4222")
	}
	if cfg.COMMSName != "action-dispatcher" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "action-dispatcher")
	}
	if cfg.DispatchSubject != "api.dispatch" || cfg.DispatchQueueGroup != "dispatchers" {
		t.Errorf("config:config_test - subject/group = %q/%q", cfg.DispatchSubject, cfg.DispatchQueueGroup)
	}
	if cfg.RequestTimeout != 25*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 25s", cfg.RequestTimeout)
	}
	if cfg.EnvelopeVersion != "^1.0" {
		t.Errorf("config:config_test - EnvelopeVersion = %q, want ^1.0", cfg.EnvelopeVersion)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" || cfg.JWTSecret != "" {
		t.Errorf("config:config_test - optional backends should default to empty")
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.KeyCacheTTL != 5*time.Minute {
		t.Errorf("config:config_test - KeyCacheTTL = %v, want 5m", cfg.KeyCacheTTL)
	}
	if cfg.RateLimitRPS != 0 || cfg.RateLimitBurst != 20 {
		t.Errorf("config:config_test - rate limit = %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should validate: %v", err)
	}
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - ValidateForDB should require DATABASE_URL")
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"NATS_URL":             "nats://custom:4222",
		"SERVICE_NAME":         "test-server",
		"DISPATCH_SUBJECT":     "custom.dispatch",
		"DISPATCH_QUEUE_GROUP": "custom-group",
		"REQUEST_TIMEOUT":      "10s",
		"DECLARATIONS_FILE":    "/tmp/declarations.yaml",
		"NAMING":               "lower-underscore",
		"DATABASE_URL":         "postgres://test@localhost/test",
		"RUN_MIGRATIONS":       "true",
		"MIGRATION_PATH":       "/tmp/migrations",
		"REDIS_URL":            "redis://localhost:6379/0",
		"KEY_CACHE_TTL":        "30s",
		"RATE_LIMIT_RPS":       "2.5",
		"RATE_LIMIT_BURST":     "5",
		"HTTP_PORT":            "9090",
		"HEALTH_CHECK_TIMEOUT": "10s",
		"LOG_LEVEL":            "debug",
	}
	for key, val := range overrides {
		t.Setenv(key, val)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://custom:4222" || cfg.COMMSName != "test-server" {
		t.Errorf("config:config_test - comms = %q/%q", cfg.COMMSURL, cfg.COMMSName)
	}
	if cfg.DispatchSubject != "custom.dispatch" || cfg.DispatchQueueGroup != "custom-group" {
		t.Errorf("config:config_test - subject/group = %q/%q", cfg.DispatchSubject, cfg.DispatchQueueGroup)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if cfg.DeclarationsFile != "/tmp/declarations.yaml" || cfg.Naming != "lower-underscore" {
		t.Errorf("config:config_test - declarations = %q naming = %q", cfg.DeclarationsFile, cfg.Naming)
	}
	if !cfg.RunMigrations || cfg.MigrationPath != "/tmp/migrations" {
		t.Errorf("config:config_test - migrations = %v %q", cfg.RunMigrations, cfg.MigrationPath)
	}
	if cfg.KeyCacheTTL != 30*time.Second {
		t.Errorf("config:config_test - KeyCacheTTL = %v, want 30s", cfg.KeyCacheTTL)
	}
	if cfg.RateLimitRPS != 2.5 || cfg.RateLimitBurst != 5 {
		t.Errorf("config:config_test - rate limit = %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("config:config_test - HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - overrides should validate: %v", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		t.Errorf("config:config_test - ValidateForDB: %v", err)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("REQUEST_TIMEOUT", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("config:config_test - expected error for bad duration")
	}
}

func TestValidateForServe(t *testing.T) {
	base := func() Config {
		return Config{
			COMMSURL:           "nats://127.0.0.1:4222",
			DispatchSubject:    "api.dispatch",
			RequestTimeout:     time.Second,
			HealthCheckTimeout: time.Second,
			HTTPPort:           8080,
			EnvelopeVersion:    "^1.0",
		}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no comms, no subject", func(c *Config) { c.COMMSURL = ""; c.DispatchSubject = "" }, false},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }, true},
		{"bad port", func(c *Config) { c.HTTPPort = 70000 }, true},
		{"empty subject", func(c *Config) { c.DispatchSubject = " " }, true},
		{"negative rps", func(c *Config) { c.RateLimitRPS = -1 }, true},
		{"redis without db", func(c *Config) { c.RedisURL = "redis://x" }, true},
		{"bad naming", func(c *Config) { c.Naming = "kebab-ish" }, true},
		{"bad envelope range", func(c *Config) { c.EnvelopeVersion = "not a range" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.ValidateForServe()
			if (err != nil) != tt.wantErr {
				t.Errorf("config:config_test - ValidateForServe() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_LogLevels(t *testing.T) {
	clearEnv(t)
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Setenv("LOG_LEVEL", level)
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("config:config_test - unexpected error for level %q: %v", level, err)
		}
		if cfg.LogLevel != level {
			t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, level)
		}
	}
}
