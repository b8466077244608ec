package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps long-poll responses streaming through the logging wrapper.
func (w *respWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// GateMetrics records authorization gate outcomes.
type GateMetrics interface {
	ObserveGateDecision(decision string)
}

// SessionGateOptions groups dependencies for RequireSession.
type SessionGateOptions struct {
	Sessions    SessionReader // Optional: used when VisitorSessions bound no store to the request
	Metrics     GateMetrics   // Optional
	LandingPath string        // Optional, defaults to PathLanding
}

// SessionReader is the read side of the session store consulted by the gate.
type SessionReader interface {
	Snapshot() domainauth.Session
}

// RequireSession gates a handler on the snapshot of the visitor's session store.
// A request with no store at all is denied.
//   - Pending: a neutral wait response (503 with Retry-After), never the protected content.
//   - Denied: browsers are redirected to the landing page; API callers get 401 JSON.
//   - Allowed: the snapshot is stored in the request context and next runs.
//
// Privilege is not checked here; chain RequireAdmin for admin-only routes.
func RequireSession(opts SessionGateOptions) func(http.Handler) http.Handler {
	landing := opts.LandingPath
	if landing == "" {
		landing = PathLanding
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := gateSnapshot(r, opts.Sessions)
			decision := domainauth.Decide(snap)
			if opts.Metrics != nil {
				opts.Metrics.ObserveGateDecision(decision.String())
			}

			switch decision {
			case domainauth.DecisionPending:
				writePending(w, r)
			case domainauth.DecisionDenied:
				if IsBrowserRequest(r) {
					redirectToLanding(w, r, landing)
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
			default:
				ctx := SetSessionInContext(r.Context(), snap)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

func gateSnapshot(r *http.Request, fallback SessionReader) domainauth.Session {
	if sessions, ok := GetSessionServiceFromContext(r.Context()); ok {
		return sessions.Snapshot()
	}
	if fallback != nil {
		return fallback.Snapshot()
	}
	return domainauth.AnonymousSession()
}

// RequireAdmin must run after RequireSession. It rejects principals without admin capability.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSessionFromContext(r.Context())
			if ok && session.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			if IsBrowserRequest(r) {
				showAccessDenied(w, r)
				return
			}
			WriteError(w, ErrorParams{
				Code:    http.StatusForbidden,
				ErrCode: "insufficient_permissions",
				Err:     errors.New("insufficient permissions"),
			})
		})
	}
}

const pendingPage = `<!doctype html>
<html lang="en"><head><meta charset="utf-8"><meta http-equiv="refresh" content="1">
<title>Checking your session</title></head>
<body><p role="status">Checking your session…</p></body></html>
`

// writePending renders the neutral waiting state. It never redirects.
func writePending(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", pendingRetryAfter)
	w.Header().Set("Cache-Control", "no-store")
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "pending"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, pendingPage); err != nil {
		return
	}
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that detects browser requests vs API requests.
// It sets a context value that can be used by downstream handlers to determine
// whether to return HTML or JSON responses.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			isBrowser := isBrowserRequest(r)
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowser)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if val := r.Context().Value(browserRequestKey{}); val != nil {
		if isBrowser, ok := val.(bool); ok {
			return isBrowser
		}
	}
	// Fallback to direct detection if middleware wasn't used
	return isBrowserRequest(r)
}

// isBrowserRequest determines if a request is from a browser based on:
// 1. Path prefix - API routes start with /api/
// 2. X-Requested-With - scripted (AJAX) calls expect JSON
// 3. Accept header - browsers typically accept text/html.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}

	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return false
	}

	accept := r.Header.Get("Accept")
	if accept == "" {
		// No Accept header, assume browser for non-API routes
		return true
	}

	return strings.Contains(accept, "text/html")
}

// redirectToLanding sends a denied browser to the public landing page, carrying the
// requested path so the sign-in link can return there.
func redirectToLanding(w http.ResponseWriter, r *http.Request, landing string) {
	target := landing
	if back := safeRedirectPath(r.URL.RequestURI()); back != "/" && back != landing {
		target += "?redirect_uri=" + url.QueryEscape(back)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// safeRedirectPath accepts only relative, same-origin paths. Anything else becomes "/".
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return candidate
}

// redirectTarget returns candidate when it is a safe path, else fallback.
func redirectTarget(candidate, fallback string) string {
	if candidate == "" {
		return fallback
	}
	if p := safeRedirectPath(candidate); p != "/" || candidate == "/" {
		return p
	}
	return fallback
}

// showAccessDenied shows an access denied page for browser requests.
func showAccessDenied(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "Access Denied: administrator privilege is required", http.StatusForbidden)
}
