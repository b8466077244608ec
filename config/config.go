package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Account directory and privilege configuration
//   - session.go: Credential persistence and session store tuning
//   - database.go: Postgres, SQLite and Redis connections
//   - http.go: HTTP server configuration
//   - observability.go: Metrics configuration
type AppConfig struct {
	// IsDev controls development mode behavior (template hot reloading, seed accounts).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Account directory configuration
	Auth AuthConfig

	// Session and credential configuration
	Session SessionConfig `envPrefix:"SESSION_"`

	// Database configuration
	Postgres DBConfig     `envPrefix:"DB_"`
	SQLite   SQLiteConfig `envPrefix:"SQLITE_"`
	Redis    RedisConfig  `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Auth.Sanitize()
	c.Session.Sanitize()
	c.HTTP.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *AppConfig) NeedsRedis() bool {
	return c.Session.CredentialStore == CredentialStoreRedis || c.Session.ChangeFeed == ChangeFeedRedis
}

// NeedsPostgres reports whether the account directory lives in Postgres.
func (c *AppConfig) NeedsPostgres() bool {
	return c.Auth.Directory == DirectoryPostgres
}
