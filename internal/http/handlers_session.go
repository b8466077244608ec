package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
	"github.com/target/storefront-admin/internal/service"
)

// SessionService is the session store surface used by the HTTP layer.
type SessionService interface {
	SessionReader
	WaitResolved(ctx context.Context) (domainauth.Session, error)
	SignIn(ctx context.Context, identifier, secret string) (domainauth.Identity, error)
	SignOut(ctx context.Context)
	CreatePrivilegedAccount(ctx context.Context, identifier, secret string) (domainauth.Identity, error)
}

// AdminChecker answers whether any administrator account exists.
type AdminChecker interface {
	AdminExists(ctx context.Context) (bool, error)
}

// SessionHandlers serves the JSON session API used by the modal credential surface.
// Each request acts on the visitor's store bound by VisitorSessions; Sessions is used
// only when no store is bound.
type SessionHandlers struct {
	Sessions    SessionService
	Admins      AdminChecker  // bootstrap mode and /api/session/bootstrap are closed without it
	AfterLogin  string        // redirect target after a successful modal action, defaults to PathAdmin
	WaitTimeout time.Duration // long-poll bound for ?wait=1, defaults to DefaultWaitTimeout
	Logger      *slog.Logger
}

func (h *SessionHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// SessionView is the JSON rendition of a session snapshot.
type SessionView struct {
	CurrentUser *domainauth.Identity  `json:"current_user"`
	IsAdmin     bool                  `json:"is_admin"`
	Capability  domainauth.Capability `json:"capability"`
	Loading     bool                  `json:"loading"`
	Error       string                `json:"error,omitempty"`
	Decision    string                `json:"decision"`
}

// NewSessionView converts a snapshot for JSON output.
func NewSessionView(s domainauth.Session) SessionView {
	s = s.Normalize()
	return SessionView{
		CurrentUser: s.CurrentUser,
		IsAdmin:     s.IsAdmin(),
		Capability:  s.Capability,
		Loading:     s.Loading,
		Error:       s.Error,
		Decision:    domainauth.Decide(s).String(),
	}
}

// Get returns the current snapshot.
// GET /api/session[?wait=1] - with wait, blocks until the session resolves or the wait bound elapses.
func (h *SessionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	sessions := sessionsFor(r, h.Sessions)
	if r.URL.Query().Get("wait") == "" {
		WriteJSON(w, http.StatusOK, NewSessionView(sessions.Snapshot()))
		return
	}

	timeout := h.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	snap, err := sessions.WaitResolved(ctx)
	switch {
	case errors.Is(err, service.ErrStoreDisposed):
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "shutting_down", Err: err})
		return
	case err != nil && r.Context().Err() != nil:
		// Client went away; nothing useful to write.
		return
	}
	// A wait that times out still reports the current, loading snapshot.
	WriteJSON(w, http.StatusOK, NewSessionView(snap))
}

// ModalRequest is the body of POST /api/session/modal.
type ModalRequest struct {
	Mode        string `json:"mode"`
	Identifier  string `json:"identifier"`
	Secret      string `json:"secret"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// ModalResponse is returned after a successful modal action.
type ModalResponse struct {
	Status     string      `json:"status"`
	RedirectTo string      `json:"redirect_to"`
	Session    SessionView `json:"session"`
}

// Modal runs a sign-in or first-administrator bootstrap on behalf of the modal surface.
// POST /api/session/modal.
func (h *SessionHandlers) Modal(w http.ResponseWriter, r *http.Request) {
	var req ModalRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	mode, ok := ParseLoginMode(req.Mode)
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_mode",
			Err:     errors.New(`mode must be "sign_in" or "bootstrap"`),
		})
		return
	}

	sessions := sessionsFor(r, h.Sessions)
	if err := runLoginAction(r.Context(), sessions, h.Admins, loginInput{
		Mode:       mode,
		Identifier: req.Identifier,
		Secret:     req.Secret,
	}); err != nil {
		h.logger().InfoContext(r.Context(), "modal action failed",
			slog.String("mode", string(mode)),
			slog.String("code", string(apperrors.GetCode(err))),
		)
		writeActionError(w, err, actionMessage(sessions, err))
		return
	}

	fallback := h.AfterLogin
	if fallback == "" {
		fallback = PathAdmin
	}
	WriteJSON(w, http.StatusOK, ModalResponse{
		Status:     "ok",
		RedirectTo: redirectTarget(req.RedirectURI, fallback),
		Session:    NewSessionView(sessions.Snapshot()),
	})
}

// SignOut ends the session. It always succeeds.
// POST /api/session/sign-out.
func (h *SessionHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	sessions := sessionsFor(r, h.Sessions)
	sessions.SignOut(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"session": NewSessionView(sessions.Snapshot()),
	})
}

// BootstrapStatus is the body of GET /api/session/bootstrap.
type BootstrapStatus struct {
	AdminExists bool      `json:"admin_exists"`
	Mode        LoginMode `json:"suggested_mode"`
}

// Bootstrap reports whether an administrator exists so a surface can pick its default mode.
// GET /api/session/bootstrap.
func (h *SessionHandlers) Bootstrap(w http.ResponseWriter, r *http.Request) {
	if h.Admins == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotImplemented,
			ErrCode: "not_supported",
			Err:     errors.New("administrator lookup is not configured"),
		})
		return
	}

	exists, err := h.Admins.AdminExists(r.Context())
	if err != nil {
		appErr := apperrors.Classify("admin lookup", err)
		if appErr.Code == apperrors.ErrCodeUnknown {
			appErr = apperrors.ProviderUnavailable(err)
		}
		h.logger().WarnContext(r.Context(), "admin lookup failed", "error", err)
		writeActionError(w, appErr, appErr.Message)
		return
	}

	status := BootstrapStatus{AdminExists: exists, Mode: LoginModeSignIn}
	if !exists {
		status.Mode = LoginModeBootstrap
	}
	WriteJSON(w, http.StatusOK, status)
}

// loginInput is the transient credential input shared by every surface.
type loginInput struct {
	Mode       LoginMode
	Identifier string
	Secret     string
}

// runLoginAction dispatches to the session store action selected by the mode.
// Bootstrap mode only runs while no administrator exists.
func runLoginAction(ctx context.Context, sessions SessionService, admins AdminChecker, in loginInput) error {
	if in.Mode != LoginModeBootstrap {
		_, err := sessions.SignIn(ctx, in.Identifier, in.Secret)
		return err
	}
	if err := requireBootstrapOpen(ctx, admins); err != nil {
		return err
	}
	_, err := sessions.CreatePrivilegedAccount(ctx, in.Identifier, in.Secret)
	return err
}

// opBootstrapCheck tags failures raised before the session store is called.
const opBootstrapCheck = "bootstrap check"

// requireBootstrapOpen fails closed: without an admin lookup, or when it fails,
// anonymous callers cannot create administrators.
func requireBootstrapOpen(ctx context.Context, admins AdminChecker) error {
	var appErr *apperrors.AppError
	if admins == nil {
		appErr = apperrors.BootstrapClosed(errors.New("administrator lookup is not configured"))
	} else if exists, err := admins.AdminExists(ctx); err != nil {
		appErr = apperrors.ProviderUnavailable(fmt.Errorf("admin lookup: %w", err))
	} else if exists {
		appErr = apperrors.BootstrapClosed(nil)
	}
	if appErr == nil {
		return nil
	}
	appErr.Op = opBootstrapCheck
	return appErr
}

// actionMessage is the display text for a failed action. Failures the store never saw
// carry their own message; everything else uses the text the store recorded.
func actionMessage(sessions SessionService, err error) string {
	if apperrors.GetOp(err) == opBootstrapCheck {
		return apperrors.DisplayMessage(apperrors.GetCode(err))
	}
	return sessions.Snapshot().Error
}
