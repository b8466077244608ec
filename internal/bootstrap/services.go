package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownWaitTimeout = 10 * time.Second

// ServiceOrchestrationConfig contains the long-running pieces of the admin service.
type ServiceOrchestrationConfig struct {
	Runtime *SessionRuntime // Required
	Server  *http.Server    // Optional: nil runs the session runtime headless
	Logger  *slog.Logger
}

// RunServicesWithShutdown runs the identity provider, the visitor sessions and the HTTP server until ctx is done,
// SIGINT or SIGTERM arrives, or either fails. It always releases the runtime before returning.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Runtime == nil {
		return errors.New("service orchestration config requires a session runtime")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(sigCtx)
	group.Go(func() error {
		return cfg.Runtime.Provider.Run(gctx)
	})
	if cfg.Runtime.Visitors != nil {
		group.Go(func() error {
			return cfg.Runtime.Visitors.Run(gctx)
		})
	}
	if cfg.Server != nil {
		group.Go(func() error {
			return serveHTTP(cfg.Server, logger)
		})
		group.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down services...")
			return ShutdownHTTPServer(ShutdownConfig{
				Context: context.WithoutCancel(gctx),
				Server:  cfg.Server,
				Runtime: cfg.Runtime,
				Logger:  logger,
			})
		})
	}

	err := group.Wait()
	if closeErr := cfg.Runtime.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}
