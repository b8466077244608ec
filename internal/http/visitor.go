package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultVisitorCookie names the cookie that ties a browser to its session store.
const DefaultVisitorCookie = "storefront_visitor"

// VisitorCodec signs and verifies visitor cookie values.
type VisitorCodec interface {
	IssueVisitor(visitorID string) (string, error)
	VerifyVisitor(token string) (string, error)
}

// SessionLocator returns the session store owned by one browser visitor.
type SessionLocator interface {
	ForVisitor(ctx context.Context, visitorID string) (SessionService, error)
}

// VisitorCookieConfig controls the visitor cookie attributes.
type VisitorCookieConfig struct {
	Name   string        // defaults to DefaultVisitorCookie
	Domain string        // empty keeps the cookie host-only
	MaxAge time.Duration // zero issues a browser-session cookie
}

// VisitorOptions groups dependencies for VisitorSessions.
type VisitorOptions struct {
	Sessions SessionLocator // Required
	Codec    VisitorCodec   // Required
	Cookie   VisitorCookieConfig
	Logger   *slog.Logger
}

// VisitorSessions binds each request to the session store of the browser that sent it.
// A missing, tampered or foreign visitor cookie starts a new visitor with a fresh cookie,
// so one browser can never read or act on another browser's session.
func VisitorSessions(opts VisitorOptions) func(http.Handler) http.Handler {
	if opts.Sessions == nil || opts.Codec == nil {
		panic("VisitorSessions requires Sessions and Codec")
	}
	if opts.Cookie.Name == "" {
		opts.Cookie.Name = DefaultVisitorCookie
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitorID := visitorFromCookie(r, opts.Cookie.Name, opts.Codec)
			if visitorID == "" {
				visitorID = uuid.NewString()
				token, err := opts.Codec.IssueVisitor(visitorID)
				if err != nil {
					logger.ErrorContext(r.Context(), "issue visitor cookie failed", "error", err)
					WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "visitor_unavailable", Err: err})
					return
				}
				setVisitorCookie(w, r, opts.Cookie, token)
			}

			sessions, err := opts.Sessions.ForVisitor(r.Context(), visitorID)
			if err != nil {
				logger.WarnContext(r.Context(), "visitor session unavailable", "error", err)
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "sessions_unavailable",
					Err:     errors.New("session service is busy; try again shortly"),
				})
				return
			}
			ctx := SetSessionServiceInContext(r.Context(), sessions)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// visitorFromCookie returns the verified visitor id, or "" when the cookie is absent or invalid.
func visitorFromCookie(r *http.Request, name string, codec VisitorCodec) string {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return ""
	}
	id, err := codec.VerifyVisitor(c.Value)
	if err != nil {
		return ""
	}
	return id
}

func setVisitorCookie(w http.ResponseWriter, r *http.Request, cfg VisitorCookieConfig, token string) {
	isSecure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    token,
		Path:     "/",
		Domain:   cfg.Domain,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(cfg.MaxAge / time.Second),
	})
}
