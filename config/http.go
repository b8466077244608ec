package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// LandingPath is where unauthenticated browsers are sent by the session gate.
	LandingPath string `env:"HTTP_LANDING_PATH" envDefault:"/"`

	// CORSOrigins lists storefront origins allowed to call the session API.
	CORSOrigins []string `env:"HTTP_CORS_ORIGINS" envSeparator:","`

	// SiteDomain admits every https origin under the same registrable domain.
	// Leave empty to rely on CORSOrigins only.
	SiteDomain string `env:"APP_SITE_DOMAIN" envDefault:""`

	// WaitTimeout bounds GET /api/session?wait=1.
	WaitTimeout time.Duration `env:"HTTP_SESSION_WAIT_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.LandingPath = strings.TrimSpace(h.LandingPath); !strings.HasPrefix(h.LandingPath, "/") {
		h.LandingPath = "/"
	}
	h.SiteDomain = strings.ToLower(strings.TrimSpace(h.SiteDomain))
	if h.WaitTimeout <= 0 {
		h.WaitTimeout = 10 * time.Second
	}
}
