package config

import (
	"fmt"
	"strings"
	"time"
)

// CredentialStoreKind selects where the signed-in credential is persisted.
type CredentialStoreKind string

const (
	// CredentialStoreMemory keeps the credential in process; a restart signs everyone out.
	CredentialStoreMemory CredentialStoreKind = "memory"
	// CredentialStoreRedis shares the credential across processes and restarts.
	CredentialStoreRedis CredentialStoreKind = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for CredentialStoreKind.
func (c *CredentialStoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch CredentialStoreKind(v) {
	case CredentialStoreMemory, CredentialStoreRedis:
		*c = CredentialStoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid CredentialStoreKind: %q (valid options: memory, redis)", v)
	}
}

// ChangeFeedKind selects how sign-in changes reach other processes.
type ChangeFeedKind string

const (
	// ChangeFeedNone disables cross-process fan-out.
	ChangeFeedNone ChangeFeedKind = "none"
	// ChangeFeedMemory fans out between providers in the same process.
	ChangeFeedMemory ChangeFeedKind = "memory"
	// ChangeFeedRedis fans out over a Redis pub/sub channel.
	ChangeFeedRedis ChangeFeedKind = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for ChangeFeedKind.
func (c *ChangeFeedKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch ChangeFeedKind(v) {
	case ChangeFeedNone, ChangeFeedMemory, ChangeFeedRedis:
		*c = ChangeFeedKind(v)
		return nil
	default:
		return fmt.Errorf("invalid ChangeFeedKind: %q (valid options: none, memory, redis)", v)
	}
}

const (
	defaultClientID         = "storefront-admin"
	defaultCredentialTTL    = 8 * time.Hour
	defaultOperationTimeout = 15 * time.Second
	defaultFeedChannel      = "storefront:session:changes"
	defaultVisitorCookie    = "storefront_visitor"
	defaultVisitorIdleTTL   = 30 * time.Minute
	defaultMaxVisitors      = 10000
)

// SessionConfig contains credential persistence and session store settings.
type SessionConfig struct {
	// ClientID keys the persisted credential. Processes sharing a ClientID share a session.
	ClientID string `env:"CLIENT_ID" envDefault:"storefront-admin"`

	// SigningKey signs persisted credentials. Empty generates a per-process key,
	// which means credentials do not survive a restart.
	SigningKey string `env:"SIGNING_KEY"`

	// EncryptionKey seals credentials written to Redis. Hex (32 bytes) or any passphrase.
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// TTL is the lifetime of a persisted credential.
	TTL time.Duration `env:"TTL" envDefault:"8h"`

	// OperationTimeout bounds each provider call made by sign-in, sign-out and account creation.
	// Zero disables the bound.
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"15s"`

	CredentialStore CredentialStoreKind `env:"CREDENTIAL_STORE" envDefault:"memory"`
	ChangeFeed      ChangeFeedKind      `env:"CHANGE_FEED"      envDefault:"none"`
	FeedChannel     string              `env:"FEED_CHANNEL"     envDefault:"storefront:session:changes"`

	// VisitorCookie names the signed cookie that gives each browser its own session.
	VisitorCookie string `env:"VISITOR_COOKIE" envDefault:"storefront_visitor"`
	// VisitorIdleTTL releases a browser's in-process session after this long without requests.
	// Its persisted credential is kept, so the browser is restored on its next request.
	VisitorIdleTTL time.Duration `env:"VISITOR_IDLE_TTL" envDefault:"30m"`
	// MaxVisitors caps the number of browser sessions held in process at once.
	MaxVisitors int `env:"MAX_VISITORS" envDefault:"10000"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.ClientID = strings.TrimSpace(s.ClientID); s.ClientID == "" {
		s.ClientID = defaultClientID
	}
	if s.TTL <= 0 {
		s.TTL = defaultCredentialTTL
	}
	if s.OperationTimeout < 0 {
		s.OperationTimeout = defaultOperationTimeout
	}
	if s.FeedChannel = strings.TrimSpace(s.FeedChannel); s.FeedChannel == "" {
		s.FeedChannel = defaultFeedChannel
	}
	if s.CredentialStore == "" {
		s.CredentialStore = CredentialStoreMemory
	}
	if s.ChangeFeed == "" {
		s.ChangeFeed = ChangeFeedNone
	}
	if s.VisitorCookie = strings.TrimSpace(s.VisitorCookie); s.VisitorCookie == "" {
		s.VisitorCookie = defaultVisitorCookie
	}
	if s.VisitorIdleTTL <= 0 {
		s.VisitorIdleTTL = defaultVisitorIdleTTL
	}
	if s.MaxVisitors <= 0 {
		s.MaxVisitors = defaultMaxVisitors
	}
}
