package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/storefront-admin/config"
	httpx "github.com/target/storefront-admin/internal/http"
	"github.com/target/storefront-admin/internal/observability/metrics"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config  *config.AppConfig
	Runtime *SessionRuntime
	Logger  *slog.Logger
}

// NewHTTPServer builds the HTTP server for the session runtime without starting it.
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil || cfg.Runtime == nil || cfg.Runtime.Visitors == nil || cfg.Runtime.Signer == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Sessions: cfg.Runtime.Visitors,
		Visitors: cfg.Runtime.Signer,
		Cookie: httpx.VisitorCookieConfig{
			Name:   appCfg.Session.VisitorCookie,
			MaxAge: appCfg.Session.TTL,
		},
		Admins: cfg.Runtime.Provider,
		CORS: httpx.CORSConfig{
			Origins:    appCfg.HTTP.CORSOrigins,
			SiteDomain: appCfg.HTTP.SiteDomain,
		},
		LandingPath: appCfg.HTTP.LandingPath,
		WaitTimeout: appCfg.HTTP.WaitTimeout,
		IsDev:       appCfg.IsDev,
		Logger:      logger,
	}
	if cfg.Runtime.Metrics != nil {
		services.Gate = cfg.Runtime.Metrics
		services.Metrics = metrics.HandlerFor(cfg.Runtime.Registry)
	}

	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: services,
	})

	return newServer(handler, appCfg.HTTP.Addr)
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
}

// Order: Recover -> Logging -> Router (BrowserDetection -> CORS -> Mux).
func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	h := httpx.NewRouter(cfg.Services)
	h = httpx.Logging(cfg.Logger)(h)
	h = httpx.Recover(cfg.Logger)(h)
	return h
}

func newServer(handler http.Handler, addr string) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Long-polling session reads hold the response open for up to HTTP_SESSION_WAIT_TIMEOUT.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// serveHTTP blocks until the server stops. A graceful shutdown is not an error.
func serveHTTP(server *http.Server, logger *slog.Logger) error {
	logger.Info("starting HTTP server", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server failed", "error", err)
		return err
	}
	return nil
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Runtime *SessionRuntime
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	// Release long-polling session readers before draining connections.
	if cfg.Runtime != nil && cfg.Runtime.Visitors != nil {
		cfg.Runtime.Visitors.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(cfg.Context, shutdownWaitTimeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
