package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	apperrors "github.com/target/storefront-admin/internal/errors"
)

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func postJSON(h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSessionHandlers_Get(t *testing.T) {
	store, _ := newTestSessions(t)
	h := &SessionHandlers{Sessions: store}

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[SessionView](t, rec)
	assert.Nil(t, view.CurrentUser)
	assert.False(t, view.IsAdmin)
	assert.False(t, view.Loading)
	assert.Equal(t, domainauth.CapabilityAnonymous, view.Capability)
	assert.Equal(t, "denied", view.Decision)
}

func TestSessionHandlers_GetWaitResolves(t *testing.T) {
	store, fake := newPendingSessions(t)
	h := &SessionHandlers{Sessions: store, WaitTimeout: 2 * time.Second}
	owner := fake.AddAccount("owner@x.com", "secret1", true)

	go func() {
		time.Sleep(20 * time.Millisecond)
		fake.Emit(&owner)
	}()

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/session?wait=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[SessionView](t, rec)
	assert.False(t, view.Loading)
	require.NotNil(t, view.CurrentUser)
	assert.Equal(t, "owner@x.com", view.CurrentUser.Email)
	assert.True(t, view.IsAdmin)
	assert.Equal(t, "allowed", view.Decision)
}

func TestSessionHandlers_GetWaitTimesOutWithLoadingSnapshot(t *testing.T) {
	store, _ := newPendingSessions(t)
	h := &SessionHandlers{Sessions: store, WaitTimeout: 30 * time.Millisecond}

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/session?wait=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[SessionView](t, rec)
	assert.True(t, view.Loading)
	assert.Equal(t, "pending", view.Decision)
}

func TestSessionHandlers_GetWaitAfterDispose(t *testing.T) {
	store, _ := newPendingSessions(t)
	h := &SessionHandlers{Sessions: store}
	store.Dispose()

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/session?wait=1", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shutting_down")
}

func TestSessionHandlers_ModalSignIn(t *testing.T) {
	store, fake := newTestSessions(t)
	fake.AddAccount("owner@x.com", "secret1", true)
	h := &SessionHandlers{Sessions: store}

	rec := postJSON(h.Modal, "/api/session/modal",
		`{"mode":"sign_in","identifier":"owner@x.com","secret":"secret1","redirect_uri":"/admin/orders"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ModalResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "/admin/orders", resp.RedirectTo)
	require.NotNil(t, resp.Session.CurrentUser)
	assert.True(t, resp.Session.IsAdmin)
	assert.True(t, store.Snapshot().IsAdmin())
}

func TestSessionHandlers_ModalFailureUsesStoreMessage(t *testing.T) {
	store, fake := newTestSessions(t)
	fake.AddAccount("owner@x.com", "secret1", true)
	h := &SessionHandlers{Sessions: store}

	rec := postJSON(h.Modal, "/api/session/modal", `{"identifier":"owner@x.com","secret":"wrong"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, string(apperrors.ErrCodeInvalidCredentials), body.Error)
	assert.NotEmpty(t, body.Message)
	assert.Equal(t, store.Snapshot().Error, body.Message)
	assert.Nil(t, store.Snapshot().CurrentUser)
}

func TestSessionHandlers_ModalBootstrap(t *testing.T) {
	store, fake := newTestSessions(t)
	h := &SessionHandlers{Sessions: store, Admins: fake, AfterLogin: "/admin/setup"}

	rec := postJSON(h.Modal, "/api/session/modal",
		`{"mode":"bootstrap","identifier":"new@x.com","secret":"secret1","redirect_uri":"https://evil.example"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ModalResponse](t, rec)
	assert.Equal(t, "/admin/setup", resp.RedirectTo)
	require.NotNil(t, resp.Session.CurrentUser)
	assert.Equal(t, "new@x.com", resp.Session.CurrentUser.Email)
	assert.True(t, resp.Session.IsAdmin)
	assert.Equal(t, 1, fake.Calls("CreatePrivilegedAccount"))
	assert.Equal(t, 1, fake.Calls("SignIn"))
}

func TestSessionHandlers_ModalBootstrapFailures(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   apperrors.ErrorCode
	}{
		{name: "duplicate", body: `{"mode":"bootstrap","identifier":"taken@x.com","secret":"secret1"}`, wantStatus: http.StatusConflict, wantCode: apperrors.ErrCodeAlreadyExists},
		{name: "weak secret", body: `{"mode":"bootstrap","identifier":"new@x.com","secret":"abc"}`, wantStatus: http.StatusUnprocessableEntity, wantCode: apperrors.ErrCodeWeakSecret},
		{name: "bad identifier", body: `{"mode":"bootstrap","identifier":"nope","secret":"secret1"}`, wantStatus: http.StatusUnprocessableEntity, wantCode: apperrors.ErrCodeInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, fake := newTestSessions(t)
			fake.AddAccount("taken@x.com", "secret1", false)
			h := &SessionHandlers{Sessions: store, Admins: fake}

			rec := postJSON(h.Modal, "/api/session/modal", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody[errorBody](t, rec)
			assert.Equal(t, string(tt.wantCode), body.Error)
			assert.Equal(t, store.Snapshot().Error, body.Message)
			assert.Zero(t, fake.Calls("SignIn"), "sign-in must not follow a failed creation")
		})
	}
}

func TestSessionHandlers_ModalBadRequests(t *testing.T) {
	store, fake := newTestSessions(t)
	h := &SessionHandlers{Sessions: store}

	rec := postJSON(h.Modal, "/api/session/modal", `{"mode":"register","identifier":"a@x.com","secret":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_mode")

	rec = postJSON(h.Modal, "/api/session/modal", `{"identifier":"a@x.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_json")

	assert.Zero(t, fake.Calls("SignIn"))
}

func TestSessionHandlers_SignOut(t *testing.T) {
	store, fake := newTestSessions(t)
	fake.AddAccount("owner@x.com", "secret1", true)
	fake.SignOutFunc = func(context.Context) error { return errors.New("remote down") }
	h := &SessionHandlers{Sessions: store}
	_, err := store.SignIn(context.Background(), "owner@x.com", "secret1")
	require.NoError(t, err)

	for range 2 {
		rec := httptest.NewRecorder()
		h.SignOut(rec, httptest.NewRequest(http.MethodPost, "/api/session/sign-out", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"current_user":null`)
		assert.Nil(t, store.Snapshot().CurrentUser)
		assert.False(t, store.Snapshot().IsAdmin())
		assert.Empty(t, store.Snapshot().Error)
	}
}

func TestSessionHandlers_ModalBootstrapClosed(t *testing.T) {
	tests := []struct {
		name       string
		admins     func(fake AdminChecker) AdminChecker
		wantStatus int
		wantCode   apperrors.ErrorCode
	}{
		{name: "admin exists", admins: func(fake AdminChecker) AdminChecker { return fake }, wantStatus: http.StatusForbidden, wantCode: apperrors.ErrCodeBootstrapClosed},
		{name: "no admin lookup", admins: func(AdminChecker) AdminChecker { return nil }, wantStatus: http.StatusForbidden, wantCode: apperrors.ErrCodeBootstrapClosed},
		{name: "lookup fails", admins: func(AdminChecker) AdminChecker { return stubAdmins{err: errors.New("db down")} }, wantStatus: http.StatusServiceUnavailable, wantCode: apperrors.ErrCodeProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, fake := newTestSessions(t)
			fake.AddAccount("owner@x.com", "secret1", true)
			h := &SessionHandlers{Sessions: store, Admins: tt.admins(fake)}

			rec := postJSON(h.Modal, "/api/session/modal", `{"mode":"bootstrap","identifier":"intruder@x.com","secret":"secret1"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody[errorBody](t, rec)
			assert.Equal(t, string(tt.wantCode), body.Error)
			assert.Equal(t, apperrors.DisplayMessage(tt.wantCode), body.Message)
			assert.Zero(t, fake.Calls("CreatePrivilegedAccount"))
			assert.Zero(t, fake.Calls("SignIn"))
			assert.Nil(t, store.Snapshot().CurrentUser)
		})
	}
}

type stubAdmins struct {
	exists bool
	err    error
}

func (s stubAdmins) AdminExists(context.Context) (bool, error) { return s.exists, s.err }

func TestSessionHandlers_Bootstrap(t *testing.T) {
	store, _ := newTestSessions(t)

	tests := []struct {
		name       string
		admins     AdminChecker
		wantStatus int
		want       *BootstrapStatus
	}{
		{name: "no admin yet", admins: stubAdmins{}, wantStatus: http.StatusOK, want: &BootstrapStatus{AdminExists: false, Mode: LoginModeBootstrap}},
		{name: "admin exists", admins: stubAdmins{exists: true}, wantStatus: http.StatusOK, want: &BootstrapStatus{AdminExists: true, Mode: LoginModeSignIn}},
		{name: "lookup fails", admins: stubAdmins{err: errors.New("db down")}, wantStatus: http.StatusServiceUnavailable},
		{name: "not configured", admins: nil, wantStatus: http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &SessionHandlers{Sessions: store, Admins: tt.admins}
			rec := httptest.NewRecorder()
			h.Bootstrap(rec, httptest.NewRequest(http.MethodGet, "/api/session/bootstrap", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.want != nil {
				assert.Equal(t, *tt.want, decodeBody[BootstrapStatus](t, rec))
			}
		})
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.InvalidCredentials(nil), http.StatusUnauthorized},
		{apperrors.ProviderUnavailable(nil), http.StatusServiceUnavailable},
		{apperrors.AlreadyExists(nil), http.StatusConflict},
		{apperrors.BootstrapClosed(nil), http.StatusForbidden},
		{apperrors.WeakSecret(nil), http.StatusUnprocessableEntity},
		{apperrors.InvalidIdentifier(nil), http.StatusUnprocessableEntity},
		{apperrors.NotFound("missing"), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForError(tt.err), "error %v", tt.err)
	}
}
