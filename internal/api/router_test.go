package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pysugar/photopick/internal/api/handlers"
	"github.com/pysugar/photopick/internal/auth/admin"
	"github.com/pysugar/photopick/internal/logging"
	"github.com/pysugar/photopick/internal/metrics"
	"github.com/pysugar/photopick/internal/upstream"
)

func newTestRouter(t *testing.T) (http.Handler, *admin.Authenticator) {
	t.Helper()
	auth := admin.New("admin", "pw", "0123456789abcdef0123456789abcdef", time.Hour)
	api := handlers.New(handlers.Config{DefaultProvider: "googledrive"}, upstream.NewRegistry(),
		nil, nil, nil, auth, nil, nil)
	return NewRouter(Deps{API: api, Admin: auth, Metrics: metrics.New()}), auth
}

func TestOperationalEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(logging.RequestIDHeader))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "photopick_http_request_duration_seconds")
}

func TestAdminRoutesRequireSession(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, path := range []string{"/admin/submissions", "/admin/download?photoIds=a", "/admin/tokens", "/auth/googledrive/login"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminLoginCookieOpensAdminRoutes(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"username":"admin","password":"pw"}`))
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	// Passing the guard lands on the handler, which rejects the missing query.
	req = httptest.NewRequest(http.MethodGet, "/admin/download", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
