package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/storefront-admin/config"
	"github.com/target/storefront-admin/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateConfig(&cfg); err != nil {
		return err
	}

	runtime, err := bootstrap.BuildSessionRuntime(ctx, &cfg, logger)
	if err != nil {
		return err
	}

	server := bootstrap.NewHTTPServer(&bootstrap.HTTPServerConfig{
		Config:  &cfg,
		Runtime: runtime,
		Logger:  logger,
	})

	return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
		Runtime: runtime,
		Server:  server,
		Logger:  logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting storefront admin service",
		"directory", cfg.Auth.Directory,
		"credential_store", cfg.Session.CredentialStore,
		"change_feed", cfg.Session.ChangeFeed,
		"client_id", cfg.Session.ClientID,
		"metrics_enabled", cfg.Observability.Metrics.IsEnabled(),
		"dev", cfg.IsDev)
}
