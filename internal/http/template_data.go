package httpx

import domainauth "github.com/target/storefront-admin/internal/domain/auth"

// PageData is the value passed to the layout template.
type PageData struct {
	Page    string
	Title   string
	Session domainauth.Session
	Login   LoginForm
}

// LoginForm is the transient input state of the full-page credential surface.
// It lives only for one request/response and is never stored in the session.
type LoginForm struct {
	Mode        LoginMode
	Identifier  string
	Secret      string
	ShowSecret  bool
	RedirectURI string
	// Error is the session store's display message for the last failed attempt.
	Error string
	// NoAdmin is set when the directory reports that no administrator exists yet.
	NoAdmin bool
}

// Bootstrap reports whether the form is in first-administrator mode.
func (f LoginForm) Bootstrap() bool { return f.Mode == LoginModeBootstrap }

// SecretInputType is the input type for the secret field.
func (f LoginForm) SecretInputType() string {
	if f.ShowSecret {
		return "text"
	}
	return "password"
}

// ToggleMode returns the opposite mode for the mode switch link.
func (f LoginForm) ToggleMode() LoginMode { return f.Mode.Toggle() }

func pageTitle(page string) string {
	switch page {
	case PageLogin:
		return "Sign in"
	case PageAdmin:
		return "Admin"
	default:
		return "Storefront"
	}
}
