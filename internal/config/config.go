package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for accountkeeper.
type Config struct {
	// Google OAuth2 client credentials. Required to serve.
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	// OAuthRedirectURL overrides the out-of-band redirect target. Leave
	// empty for the paste-the-code flow.
	OAuthRedirectURL string `env:"OAUTH_REDIRECT_URL" envDefault:""`

	// StatePath is the bbolt database holding accounts and credentials.
	// Empty means ~/.accountkeeper/state.db.
	StatePath string `env:"ACCOUNTKEEPER_STATE_PATH" envDefault:""`

	// VerifyAuthorizedEmail makes completed authorizations fail when the
	// consenting Google identity differs from the account being
	// authorized. Costs one userinfo call per completed authorization.
	VerifyAuthorizedEmail bool `env:"VERIFY_AUTHORIZED_EMAIL" envDefault:"true"`

	// PendingAuthTTL bounds how long an unconsumed consent URL's
	// requested scopes are remembered.
	PendingAuthTTL time.Duration `env:"PENDING_AUTH_TTL" envDefault:"10m"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Environment controls log format: production emits JSON.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Metrics endpoint settings. Disabled by default; the primary
	// transport is stdio and the metrics listener is a sidecar.
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"false"`
	MetricsAddr    string `env:"METRICS_ADDR" envDefault:":9090"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. Group or world readable files risk
// exposing the client secret to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables. It first attempts
// to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}

	if c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	if c.PendingAuthTTL <= 0 {
		return fmt.Errorf("PENDING_AUTH_TTL must be positive; got %s", c.PendingAuthTTL)
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
