package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storefront "github.com/target/storefront-admin"
	domainauth "github.com/target/storefront-admin/internal/domain/auth"
)

func TestNewTemplateRenderer_RequiresFS(t *testing.T) {
	_, err := NewTemplateRenderer(TemplateRendererConfig{})
	assert.Error(t, err)
}

func TestNewTemplateRenderer_ParseError(t *testing.T) {
	_, err := NewTemplateRenderer(TemplateRendererConfig{
		TemplateFS: fstest.MapFS{"layout.tmpl": {Data: []byte(`{{define "layout"}}{{.Broken`)}},
	})
	assert.Error(t, err)
}

func TestTemplateRenderer_RenderPage(t *testing.T) {
	tr := RequireTemplateRenderer(t)
	user := domainauth.Identity{ID: "u1", Email: "member@x.com"}

	rec := httptest.NewRecorder()
	err := tr.RenderPage(rec, http.StatusAccepted, PageData{
		Page:    PageLanding,
		Title:   "Storefront",
		Session: domainauth.AuthenticatedSession(user, false),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, ContainsAll(body, []string{`data-page="landing"`, "Signed in as member@x.com", "Sign out"}))
	assert.NotContains(t, body, `href="/admin"`, "members get no admin link")
}

func TestEmbeddedTemplatesParse(t *testing.T) {
	_, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templateFS(false)})
	require.NoError(t, err)

	_, err = storefront.TemplateFS.ReadFile(TemplatePathFromRoot + "/layout.tmpl")
	assert.NoError(t, err)
}

func TestContentTemplateFor(t *testing.T) {
	assert.Equal(t, "login-content", ContentTemplateFor(PageLogin))
	assert.Equal(t, "landing-content", ContentTemplateFor("missing"))
}
