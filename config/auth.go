package config

import (
	"fmt"
	"strings"
)

// DirectoryKind selects where accounts live.
type DirectoryKind string

const (
	// DirectoryMemory keeps accounts in process, optionally seeded from a YAML file.
	DirectoryMemory DirectoryKind = "memory"
	// DirectorySQLite keeps accounts in a single SQLite file.
	DirectorySQLite DirectoryKind = "sqlite"
	// DirectoryPostgres keeps accounts in the shared Postgres database.
	DirectoryPostgres DirectoryKind = "postgres"
	// DirectoryOIDC delegates accounts to an external OpenID Connect provider.
	DirectoryOIDC DirectoryKind = "oidc"
)

// UnmarshalText implements encoding.TextUnmarshaler for DirectoryKind.
func (d *DirectoryKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch DirectoryKind(v) {
	case DirectoryMemory, DirectorySQLite, DirectoryPostgres, DirectoryOIDC:
		*d = DirectoryKind(v)
		return nil
	default:
		return fmt.Errorf("invalid DirectoryKind: %q (valid options: memory, sqlite, postgres, oidc)", v)
	}
}

// OIDCConfig contains the OpenID Connect directory settings.
// The directory uses the resource-owner password grant, so no redirect URL is needed.
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// Complete reports whether every required OIDC setting is present.
func (o OIDCConfig) Complete() bool {
	return o.ClientID != "" && o.ClientSecret != "" && o.DiscoveryURL != ""
}

// PrivilegeConfig decides which OIDC principals are admins.
// Expression, when set, wins over AdminGroups.
type PrivilegeConfig struct {
	AdminGroups []string `env:"ADMIN_GROUPS" envDefault:"admins" envSeparator:";"`
	GroupsClaim string   `env:"GROUPS_CLAIM" envDefault:"groups"`
	Expression  string   `env:"EXPRESSION"`
}

// AuthConfig groups all account-directory configuration.
type AuthConfig struct {
	// Directory determines which account directory backs sign-in.
	Directory DirectoryKind `env:"AUTH_DIRECTORY" envDefault:"memory"`

	// SeedFile is a YAML file of accounts loaded into the memory directory.
	SeedFile string `env:"AUTH_SEED_FILE"`

	// OIDC configuration (used when Directory=oidc).
	OIDC OIDCConfig `envPrefix:"OIDC_"`

	// Privilege configuration (used when Directory=oidc).
	Privilege PrivilegeConfig `envPrefix:"AUTH_PRIVILEGE_"`
}

// Sanitize trims free-form values and drops empty group names.
func (a *AuthConfig) Sanitize() {
	a.SeedFile = strings.TrimSpace(a.SeedFile)
	a.OIDC.DiscoveryURL = strings.TrimSpace(a.OIDC.DiscoveryURL)
	a.Privilege.Expression = strings.TrimSpace(a.Privilege.Expression)

	groups := a.Privilege.AdminGroups[:0]
	for _, g := range a.Privilege.AdminGroups {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	a.Privilege.AdminGroups = groups
}
