package httpx

import (
	"log/slog"
	"net/http"

	apperrors "github.com/target/storefront-admin/internal/errors"
)

// PageHandlers serves the HTML pages: landing, full-page sign-in and the admin dashboard.
// Like SessionHandlers, it prefers the visitor's store bound to the request.
type PageHandlers struct {
	T        *TemplateRenderer
	Sessions SessionService
	Admins   AdminChecker // gates bootstrap mode and drives the first-administrator hint
	Logger   *slog.Logger
}

func (h *PageHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *PageHandlers) render(w http.ResponseWriter, status int, data PageData) {
	if data.Title == "" {
		data.Title = pageTitle(data.Page)
	}
	if err := h.T.RenderPage(w, status, data); err != nil {
		h.logger().Error("page render failed", "page", data.Page, "error", err)
	}
}

// Landing renders the public landing page.
// GET /.
func (h *PageHandlers) Landing(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, PageData{
		Page:    PageLanding,
		Session: sessionsFor(r, h.Sessions).Snapshot(),
		Login:   LoginForm{RedirectURI: redirectTarget(r.URL.Query().Get("redirect_uri"), PathAdmin)},
	})
}

// LoginPage renders the sign-in form.
// GET /login?mode=sign_in|bootstrap&redirect_uri=<path>.
func (h *PageHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, ok := ParseLoginMode(q.Get("mode"))
	if !ok {
		mode = LoginModeSignIn
	}
	form := LoginForm{
		Mode:        mode,
		RedirectURI: redirectTarget(q.Get("redirect_uri"), PathAdmin),
		NoAdmin:     h.noAdmin(r),
	}
	h.render(w, http.StatusOK, PageData{Page: PageLogin, Session: sessionsFor(r, h.Sessions).Snapshot(), Login: form})
}

// Form actions that re-render without calling the session store.
const (
	actionToggleSecret = "toggle_secret"
	actionSwitchMode   = "switch_mode"
)

// LoginSubmit handles the sign-in form.
// POST /login.
func (h *PageHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	mode, ok := ParseLoginMode(r.PostFormValue("mode"))
	if !ok {
		mode = LoginModeSignIn
	}
	form := LoginForm{
		Mode:        mode,
		Identifier:  r.PostFormValue("identifier"),
		Secret:      r.PostFormValue("secret"),
		ShowSecret:  r.PostFormValue("show_secret") == "1",
		RedirectURI: redirectTarget(r.PostFormValue("redirect_uri"), PathAdmin),
	}

	switch r.PostFormValue("action") {
	case actionToggleSecret:
		form.ShowSecret = !form.ShowSecret
		h.renderLogin(w, r, http.StatusOK, form)
		return
	case actionSwitchMode:
		form.Mode = form.Mode.Toggle()
		form.Secret = ""
		h.renderLogin(w, r, http.StatusOK, form)
		return
	}

	sessions := sessionsFor(r, h.Sessions)
	err := runLoginAction(r.Context(), sessions, h.Admins, loginInput{
		Mode:       form.Mode,
		Identifier: form.Identifier,
		Secret:     form.Secret,
	})
	if err != nil {
		h.logger().InfoContext(r.Context(), "login failed",
			slog.String("mode", string(form.Mode)),
			slog.String("code", string(apperrors.GetCode(err))),
		)
		form.Secret = ""
		form.Error = actionMessage(sessions, err)
		h.renderLogin(w, r, StatusForError(err), form)
		return
	}

	http.Redirect(w, r, form.RedirectURI, http.StatusSeeOther)
}

func (h *PageHandlers) renderLogin(w http.ResponseWriter, r *http.Request, status int, form LoginForm) {
	form.NoAdmin = h.noAdmin(r)
	h.render(w, status, PageData{Page: PageLogin, Session: sessionsFor(r, h.Sessions).Snapshot(), Login: form})
}

// noAdmin reports a missing administrator. Lookup failures hide the hint.
func (h *PageHandlers) noAdmin(r *http.Request) bool {
	if h.Admins == nil {
		return false
	}
	exists, err := h.Admins.AdminExists(r.Context())
	if err != nil {
		h.logger().DebugContext(r.Context(), "admin lookup failed", "error", err)
		return false
	}
	return !exists
}

// Logout signs out and returns to the landing page.
// POST /logout.
func (h *PageHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	sessionsFor(r, h.Sessions).SignOut(r.Context())
	http.Redirect(w, r, PathLanding, http.StatusSeeOther)
}

// AdminDashboard renders the admin panel. It expects RequireSession and RequireAdmin in front.
// GET /admin.
func (h *PageHandlers) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	session, ok := GetSessionFromContext(r.Context())
	if !ok {
		session = sessionsFor(r, h.Sessions).Snapshot()
	}
	h.render(w, http.StatusOK, PageData{Page: PageAdmin, Session: session})
}
