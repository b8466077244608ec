package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestAppConfig_Defaults(t *testing.T) {
	t.Setenv("NODE_ENV", "")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.IsDev {
		t.Fatalf("expected production mode by default")
	}
	if cfg.Auth.Directory != DirectoryMemory {
		t.Fatalf("expected memory directory, got %q", cfg.Auth.Directory)
	}
	if cfg.Session.ClientID != "storefront-admin" {
		t.Fatalf("unexpected client id %q", cfg.Session.ClientID)
	}
	if cfg.Session.TTL != 8*time.Hour {
		t.Fatalf("unexpected ttl %v", cfg.Session.TTL)
	}
	if cfg.Session.OperationTimeout != 15*time.Second {
		t.Fatalf("unexpected operation timeout %v", cfg.Session.OperationTimeout)
	}
	if cfg.Session.CredentialStore != CredentialStoreMemory || cfg.Session.ChangeFeed != ChangeFeedNone {
		t.Fatalf("unexpected persistence defaults: %q / %q", cfg.Session.CredentialStore, cfg.Session.ChangeFeed)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.LandingPath != "/" {
		t.Fatalf("unexpected http defaults: %#v", cfg.HTTP)
	}
	if !cfg.Observability.Metrics.IsEnabled() {
		t.Fatalf("expected metrics enabled by default")
	}
	if cfg.NeedsRedis() || cfg.NeedsPostgres() {
		t.Fatalf("default config should not need external infrastructure")
	}
}

func TestAppConfig_ParseAuthEnv(t *testing.T) {
	t.Setenv("AUTH_DIRECTORY", "OIDC")
	t.Setenv("AUTH_SEED_FILE", " seed.yaml ")
	t.Setenv("OIDC_CLIENT_ID", "app-client")
	t.Setenv("OIDC_CLIENT_SECRET", "super-secret")
	t.Setenv("OIDC_DISCOVERY_URL", "https://login.example.com/.well-known/openid-configuration")
	t.Setenv("OIDC_SCOPE", "openid profile email")
	t.Setenv("AUTH_PRIVILEGE_ADMIN_GROUPS", "admins; ;store-owners")
	t.Setenv("AUTH_PRIVILEGE_GROUPS_CLAIM", "roles")
	t.Setenv("AUTH_PRIVILEGE_EXPRESSION", "")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	expected := AuthConfig{
		Directory: DirectoryOIDC,
		SeedFile:  "seed.yaml",
		OIDC: OIDCConfig{
			ClientID:     "app-client",
			ClientSecret: "super-secret",
			Scope:        "openid profile email",
			DiscoveryURL: "https://login.example.com/.well-known/openid-configuration",
		},
		Privilege: PrivilegeConfig{
			AdminGroups: []string{"admins", "store-owners"},
			GroupsClaim: "roles",
		},
	}

	if !reflect.DeepEqual(cfg.Auth, expected) {
		t.Fatalf("unexpected auth configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Auth)
	}
	if !cfg.Auth.OIDC.Complete() {
		t.Fatalf("expected complete OIDC configuration")
	}
}

func TestAppConfig_ParseSessionEnv(t *testing.T) {
	t.Setenv("SESSION_CLIENT_ID", "storefront-eu")
	t.Setenv("SESSION_SIGNING_KEY", "signing")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("SESSION_OPERATION_TIMEOUT", "0s")
	t.Setenv("SESSION_CREDENTIAL_STORE", "redis")
	t.Setenv("SESSION_CHANGE_FEED", "redis")
	t.Setenv("SESSION_FEED_CHANNEL", "eu:changes")
	t.Setenv("SESSION_VISITOR_COOKIE", "eu_visitor")
	t.Setenv("SESSION_VISITOR_IDLE_TTL", "5m")
	t.Setenv("SESSION_MAX_VISITORS", "50")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Session.ClientID != "storefront-eu" || cfg.Session.SigningKey != "signing" {
		t.Fatalf("unexpected session identity: %#v", cfg.Session)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Fatalf("unexpected ttl %v", cfg.Session.TTL)
	}
	if cfg.Session.OperationTimeout != 0 {
		t.Fatalf("a zero timeout disables the bound, got %v", cfg.Session.OperationTimeout)
	}
	if cfg.Session.FeedChannel != "eu:changes" {
		t.Fatalf("unexpected feed channel %q", cfg.Session.FeedChannel)
	}
	if cfg.Session.VisitorCookie != "eu_visitor" || cfg.Session.VisitorIdleTTL != 5*time.Minute || cfg.Session.MaxVisitors != 50 {
		t.Fatalf("unexpected visitor settings: %#v", cfg.Session)
	}
	if !cfg.NeedsRedis() {
		t.Fatalf("expected redis to be required")
	}
}

func TestAppConfig_InvalidEnums(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "directory", key: "AUTH_DIRECTORY", val: "ldap"},
		{name: "credential store", key: "SESSION_CREDENTIAL_STORE", val: "file"},
		{name: "change feed", key: "SESSION_CHANGE_FEED", val: "kafka"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			var cfg AppConfig
			if err := env.Parse(&cfg); err == nil {
				t.Fatalf("expected parse error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestSessionConfig_Sanitize(t *testing.T) {
	cfg := SessionConfig{
		ClientID:         "  ",
		TTL:              -time.Minute,
		OperationTimeout: -time.Second,
	}

	cfg.Sanitize()

	expected := SessionConfig{
		ClientID:         "storefront-admin",
		TTL:              8 * time.Hour,
		OperationTimeout: 15 * time.Second,
		CredentialStore:  CredentialStoreMemory,
		ChangeFeed:       ChangeFeedNone,
		FeedChannel:      "storefront:session:changes",
		VisitorCookie:    "storefront_visitor",
		VisitorIdleTTL:   30 * time.Minute,
		MaxVisitors:      10000,
	}
	if !reflect.DeepEqual(cfg, expected) {
		t.Fatalf("unexpected session configuration:\nexpected: %#v\ngot:      %#v", expected, cfg)
	}
}

func TestHTTPConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name     string
		in       HTTPConfig
		expected HTTPConfig
	}{
		{
			name:     "relative landing path",
			in:       HTTPConfig{LandingPath: "home", WaitTimeout: time.Second},
			expected: HTTPConfig{LandingPath: "/", WaitTimeout: time.Second},
		},
		{
			name:     "site domain lower-cased",
			in:       HTTPConfig{LandingPath: "/shop", SiteDomain: " Example.COM "},
			expected: HTTPConfig{LandingPath: "/shop", SiteDomain: "example.com", WaitTimeout: 10 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			cfg.Sanitize()
			if !reflect.DeepEqual(cfg, tt.expected) {
				t.Fatalf("expected %#v, got %#v", tt.expected, cfg)
			}
		})
	}
}

func TestAppConfig_DetectDevMode(t *testing.T) {
	tests := []struct {
		name    string
		nodeEnv string
		want    bool
	}{
		{name: "development", nodeEnv: "development", want: true},
		{name: "dev upper", nodeEnv: "DEV", want: true},
		{name: "production", nodeEnv: "production", want: false},
		{name: "unset", nodeEnv: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NODE_ENV", tt.nodeEnv)
			cfg := AppConfig{}
			cfg.Sanitize()
			if cfg.IsDev != tt.want {
				t.Fatalf("IsDev = %v, want %v", cfg.IsDev, tt.want)
			}
		})
	}
}

func TestAppConfig_NeedsPostgres(t *testing.T) {
	cfg := AppConfig{Auth: AuthConfig{Directory: DirectoryPostgres}}
	if !cfg.NeedsPostgres() {
		t.Fatalf("expected postgres to be required")
	}
}
