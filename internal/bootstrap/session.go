package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/target/storefront-admin/config"
	"github.com/target/storefront-admin/internal/adapters/identity"
	"github.com/target/storefront-admin/internal/adapters/memory"
	redisadapter "github.com/target/storefront-admin/internal/adapters/redis"
	"github.com/target/storefront-admin/internal/observability/metrics"
	"github.com/target/storefront-admin/internal/ports"
	"github.com/target/storefront-admin/internal/service"
)

// ErrRedisRequired is returned when a redis-backed component is selected without a client.
var ErrRedisRequired = errors.New("redis client is required")

// BuildCredentialStore creates the credential store selected by SESSION_CREDENTIAL_STORE.
//
//nolint:ireturn // the store implementation is chosen at runtime.
func BuildCredentialStore(cfg config.SessionConfig, client redis.UniversalClient, logger *slog.Logger) (ports.CredentialStore, error) {
	switch cfg.CredentialStore {
	case config.CredentialStoreMemory, "":
		return memory.NewCredentialStore(), nil
	case config.CredentialStoreRedis:
		if client == nil {
			return nil, fmt.Errorf("credential store: %w", ErrRedisRequired)
		}
		return redisadapter.NewCredentialStore(redisadapter.CredentialStoreOptions{
			Client:    client,
			Encryptor: CreateEncryptor(cfg.EncryptionKey, logger),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported credential store %q", cfg.CredentialStore)
	}
}

// BuildChangeFeed creates the change feed selected by SESSION_CHANGE_FEED.
// A nil feed with a nil error means cross-process fan-out is disabled.
//
//nolint:ireturn // the feed implementation is chosen at runtime.
func BuildChangeFeed(cfg config.SessionConfig, client redis.UniversalClient, hub *memory.ChangeHub, logger *slog.Logger) (ports.ChangeFeed, error) {
	switch cfg.ChangeFeed {
	case config.ChangeFeedNone, "":
		return nil, nil
	case config.ChangeFeedMemory:
		if hub == nil {
			hub = memory.NewChangeHub()
		}
		return hub, nil
	case config.ChangeFeedRedis:
		if client == nil {
			return nil, fmt.Errorf("change feed: %w", ErrRedisRequired)
		}
		return redisadapter.NewChangeFeed(client, cfg.FeedChannel, logger), nil
	default:
		return nil, fmt.Errorf("unsupported change feed %q", cfg.ChangeFeed)
	}
}

// IdentityProviderConfig contains dependencies for BuildIdentityProvider.
type IdentityProviderConfig struct {
	Session   config.SessionConfig
	Directory ports.Directory       // Required
	Redis     redis.UniversalClient // Required when a redis store or feed is selected
	Hub       *memory.ChangeHub     // Optional: shared hub for the memory change feed
	Logger    *slog.Logger
}

// BuildIdentityProvider wires the directory, credential store, change feed and signer into a provider.
func BuildIdentityProvider(cfg IdentityProviderConfig) (*identity.Provider, error) {
	deps, err := buildIdentityDeps(cfg)
	if err != nil {
		return nil, err
	}
	return deps.provider(cfg.Session.ClientID)
}

// identityDeps are shared by the operator provider and every visitor provider.
type identityDeps struct {
	session config.SessionConfig
	dir     ports.Directory
	creds   ports.CredentialStore
	feed    ports.ChangeFeed
	signer  *identity.TokenSigner
	logger  *slog.Logger
}

func buildIdentityDeps(cfg IdentityProviderConfig) (identityDeps, error) {
	creds, err := BuildCredentialStore(cfg.Session, cfg.Redis, cfg.Logger)
	if err != nil {
		return identityDeps{}, err
	}
	feed, err := BuildChangeFeed(cfg.Session, cfg.Redis, cfg.Hub, cfg.Logger)
	if err != nil {
		return identityDeps{}, err
	}
	signer, err := BuildTokenSigner(cfg.Session.SigningKey, cfg.Logger)
	if err != nil {
		return identityDeps{}, err
	}
	return identityDeps{
		session: cfg.Session,
		dir:     cfg.Directory,
		creds:   creds,
		feed:    feed,
		signer:  signer,
		logger:  cfg.Logger,
	}, nil
}

func (d identityDeps) provider(clientID string) (*identity.Provider, error) {
	return identity.NewProvider(identity.ProviderOptions{
		Directory:   d.dir,
		Credentials: d.creds,
		Feed:        d.feed,
		Signer:      d.signer,
		ClientID:    clientID,
		TTL:         d.session.TTL,
		Logger:      d.logger,
	})
}

// SessionRuntime holds the session subsystem and the infrastructure it owns.
// Store and Provider serve the operator console; Visitors gives every browser its own store.
type SessionRuntime struct {
	Directory ports.Directory
	Provider  *identity.Provider
	Store     *service.SessionStore
	Visitors  *VisitorSessions
	Signer    *identity.TokenSigner // signs credentials and visitor cookies
	Metrics   *metrics.Session     // nil when metrics are disabled
	Registry  *prometheus.Registry // nil when metrics are disabled

	logger  *slog.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// BuildSessionRuntime connects the configured infrastructure and returns an initialized session store.
// On error every resource opened so far is released.
func BuildSessionRuntime(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*SessionRuntime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	rt := &SessionRuntime{logger: logger}

	if err := rt.build(ctx, cfg); err != nil {
		if closeErr := rt.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return nil, err
	}
	return rt, nil
}

func (rt *SessionRuntime) build(ctx context.Context, cfg *config.AppConfig) error {
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: rt.logger}

	var db *sql.DB
	if cfg.NeedsPostgres() {
		conn, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		db = conn
		rt.addCloser("database", db.Close)

		if cfg.Postgres.RunMigrationsOnStart {
			if _, err := RunMigrations(ctx, db, rt.logger); err != nil {
				return err
			}
		} else {
			rt.logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
	}

	var client redis.UniversalClient
	if cfg.NeedsRedis() {
		conn, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		client = conn
		rt.addCloser("redis", client.Close)
	}

	dir, closeDir, err := BuildDirectory(ctx, DirectoryConfig{
		Auth:   cfg.Auth,
		SQLite: cfg.SQLite,
		DB:     db,
		Logger: rt.logger,
	})
	if err != nil {
		return fmt.Errorf("build directory: %w", err)
	}
	rt.Directory = dir
	rt.addCloser("directory", closeDir)

	deps, err := buildIdentityDeps(IdentityProviderConfig{
		Session:   cfg.Session,
		Directory: dir,
		Redis:     client,
		Logger:    rt.logger,
	})
	if err != nil {
		return fmt.Errorf("build identity provider: %w", err)
	}
	provider, err := deps.provider(cfg.Session.ClientID)
	if err != nil {
		return fmt.Errorf("build identity provider: %w", err)
	}
	rt.Provider = provider
	rt.Signer = deps.signer

	telemetry := service.SessionTelemetry{Logger: rt.logger}
	if cfg.Observability.Metrics.IsEnabled() {
		rt.Registry, rt.Metrics = metrics.NewRegistry()
		telemetry.Metrics = rt.Metrics
	}

	storeCfg := service.SessionStoreConfig{OperationTimeout: cfg.Session.OperationTimeout}
	rt.Store = service.NewSessionStore(service.SessionStoreOptions{
		Provider:  provider,
		Config:    storeCfg,
		Telemetry: telemetry,
	})
	rt.Store.Init()

	rt.Visitors = NewVisitorSessions(VisitorSessionsConfig{
		NewProvider: deps.provider,
		Feed:        deps.feed,
		ClientID:    cfg.Session.ClientID,
		Store:       storeCfg,
		Telemetry:   telemetry,
		IdleTTL:     cfg.Session.VisitorIdleTTL,
		MaxVisitors: cfg.Session.MaxVisitors,
		Logger:      rt.logger,
	})
	return nil
}

func (rt *SessionRuntime) addCloser(name string, fn func() error) {
	rt.closers = append(rt.closers, namedCloser{name: name, close: fn})
}

// Close releases every visitor, disposes the store, stops the provider and releases infrastructure in reverse order.
func (rt *SessionRuntime) Close() error {
	if rt.Visitors != nil {
		rt.Visitors.Close()
	}
	if rt.Store != nil {
		rt.Store.Dispose()
	}
	if rt.Provider != nil {
		rt.Provider.Close()
	}

	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(); err != nil {
			rt.logger.Error("close "+c.name+" failed", "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
