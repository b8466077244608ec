package httpx

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/cors"
	"golang.org/x/net/publicsuffix"
)

// CORSConfig selects which storefront origins may call the session API with credentials.
type CORSConfig struct {
	// Origins are exact origins, e.g. "https://shop.example.com".
	Origins []string
	// SiteDomain admits any https origin under the same registrable domain (eTLD+1).
	SiteDomain string
}

// OriginMatcher decides whether a browser origin may use the session API.
type OriginMatcher struct {
	exact map[string]struct{}
	site  string
}

// NewOriginMatcher builds a matcher from cfg. An empty config admits nothing.
func NewOriginMatcher(cfg CORSConfig) *OriginMatcher {
	m := &OriginMatcher{exact: make(map[string]struct{}, len(cfg.Origins))}
	for _, o := range cfg.Origins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o != "" {
			m.exact[o] = struct{}{}
		}
	}
	if cfg.SiteDomain != "" {
		m.site = extractETLDPlusOne(cfg.SiteDomain)
	}
	return m
}

// Allow reports whether origin is admitted.
func (m *OriginMatcher) Allow(origin string) bool {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return false
	}
	if _, ok := m.exact[origin]; ok {
		return true
	}
	if m.site == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "https" || u.Hostname() == "" {
		return false
	}
	return extractETLDPlusOne(u.Hostname()) == m.site
}

func extractETLDPlusOne(domain string) string {
	domain = strings.TrimSpace(strings.ToLower(domain))
	if domain == "" {
		return ""
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return ""
	}
	return etld1
}

// newCORS allows credentialed JSON calls from the admitted storefront origins only.
func newCORS(cfg CORSConfig) *cors.Cors {
	m := NewOriginMatcher(cfg)
	return cors.New(cors.Options{
		AllowOriginFunc: m.Allow,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           600,
	})
}
