package httpx

import "time"

// Route paths shared by handlers, middleware and templates.
const (
	PathLanding = "/"
	PathLogin   = "/login"
	PathLogout  = "/logout"
	PathAdmin   = "/admin"
)

// Page identifiers used in templates and navigation.
const (
	PageLanding = "landing"
	PageLogin   = "login"
	PageAdmin   = "admin"
)

// Template paths used for loading templates in tests and production.
const (
	TemplatePathFromRoot = "web/templates"       // From project root
	TemplatePathFromTest = "../../web/templates" // From internal/http test files
)

const (
	// DefaultWaitTimeout bounds a long-poll on GET /api/session?wait=1.
	DefaultWaitTimeout = 10 * time.Second

	// pendingRetryAfter is advertised to clients while the session is still resolving.
	pendingRetryAfter = "1"
)

// LoginMode selects which action a credential surface performs.
// Using a dedicated type improves compile-time checks and prevents typos.
type LoginMode string

const (
	// LoginModeSignIn signs in to an existing account.
	LoginModeSignIn LoginMode = "sign_in"
	// LoginModeBootstrap creates the first administrator and signs in as it.
	LoginModeBootstrap LoginMode = "bootstrap"
)

// ParseLoginMode maps a form or JSON value to a LoginMode. Empty means sign-in.
func ParseLoginMode(raw string) (LoginMode, bool) {
	switch LoginMode(raw) {
	case "", LoginModeSignIn:
		return LoginModeSignIn, true
	case LoginModeBootstrap:
		return LoginModeBootstrap, true
	default:
		return "", false
	}
}

// Toggle returns the other mode.
func (m LoginMode) Toggle() LoginMode {
	if m == LoginModeBootstrap {
		return LoginModeSignIn
	}
	return LoginModeBootstrap
}

//nolint:gochecknoglobals // static read-only lookup for templates; avoids per-call allocations
var contentTemplates = map[string]string{
	PageLanding: "landing-content",
	PageLogin:   "login-content",
	PageAdmin:   "admin-content",
}

// ContentTemplateFor returns the content template for the given page.
// Falls back to landing-content for unknown pages.
func ContentTemplateFor(page string) string {
	if name, ok := contentTemplates[page]; ok {
		return name
	}
	return "landing-content"
}
