package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/storefront-admin/config"
	"github.com/target/storefront-admin/internal/adapters/authroles"
	"github.com/target/storefront-admin/internal/adapters/devauth"
	"github.com/target/storefront-admin/internal/adapters/oidc"
	"github.com/target/storefront-admin/internal/data"
	"github.com/target/storefront-admin/internal/data/sqlite"
	"github.com/target/storefront-admin/internal/ports"
)

// ErrDatabaseRequired is returned when the postgres directory is selected without a connection.
var ErrDatabaseRequired = errors.New("postgres directory requires a database connection")

// DirectoryConfig contains dependencies for BuildDirectory.
type DirectoryConfig struct {
	Auth   config.AuthConfig
	SQLite config.SQLiteConfig
	DB     *sql.DB // Required for the postgres directory
	Logger *slog.Logger
}

// BuildDirectory creates the account directory selected by AUTH_DIRECTORY.
// The returned close function releases resources the directory owns; it is never nil.
//
//nolint:ireturn // the directory implementation is chosen at runtime.
func BuildDirectory(ctx context.Context, cfg DirectoryConfig) (ports.Directory, func() error, error) {
	noop := func() error { return nil }
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Auth.Directory {
	case config.DirectoryMemory, "":
		seed, err := devauth.LoadSeed(cfg.Auth.SeedFile)
		if err != nil {
			return nil, noop, err
		}
		dir, err := devauth.NewDirectory(seed)
		if err != nil {
			return nil, noop, err
		}
		logger.InfoContext(ctx, "using in-memory account directory", "seed_accounts", len(seed.Accounts))
		return dir, noop, nil

	case config.DirectorySQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.DSN)
		if err != nil {
			return nil, noop, err
		}
		logger.InfoContext(ctx, "using sqlite account directory")
		return store, store.Close, nil

	case config.DirectoryPostgres:
		if cfg.DB == nil {
			return nil, noop, ErrDatabaseRequired
		}
		logger.InfoContext(ctx, "using postgres account directory")
		return data.NewAccountRepo(cfg.DB), noop, nil

	case config.DirectoryOIDC:
		return buildOIDCDirectory(ctx, cfg, logger)

	default:
		return nil, noop, fmt.Errorf("unsupported account directory %q", cfg.Auth.Directory)
	}
}

//nolint:ireturn // mirrors BuildDirectory.
func buildOIDCDirectory(ctx context.Context, cfg DirectoryConfig, logger *slog.Logger) (ports.Directory, func() error, error) {
	noop := func() error { return nil }
	settings := cfg.Auth.OIDC
	if !settings.Complete() {
		logger.WarnContext(ctx, "AUTH_DIRECTORY=oidc selected but required config missing",
			"discovery_url_empty", settings.DiscoveryURL == "",
			"client_id_empty", settings.ClientID == "",
			"client_secret_empty", settings.ClientSecret == "",
		)
		return nil, noop, errors.New("incomplete OIDC configuration")
	}

	matcher, err := BuildPrivilegeMatcher(cfg.Auth.Privilege)
	if err != nil {
		return nil, noop, err
	}

	dir, err := oidc.NewDirectory(ctx, oidc.DirectoryConfig{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		Scope:        settings.Scope,
		DiscoveryURL: settings.DiscoveryURL,
		Matcher:      matcher,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("create OIDC directory: %w", err)
	}
	logger.InfoContext(ctx, "using OIDC account directory", "discovery_url", settings.DiscoveryURL)
	return dir, noop, nil
}

// BuildPrivilegeMatcher returns an expression matcher when an expression is configured,
// otherwise a group matcher.
//
//nolint:ireturn // callers only need the predicate.
func BuildPrivilegeMatcher(cfg config.PrivilegeConfig) (ports.PrivilegeMatcher, error) {
	if cfg.Expression != "" {
		m, err := authroles.NewExpressionMatcher(cfg.Expression)
		if err != nil {
			return nil, fmt.Errorf("admin expression: %w", err)
		}
		return m, nil
	}
	return authroles.GroupMatcher{Claim: cfg.GroupsClaim, AdminGroups: cfg.AdminGroups}, nil
}
