package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dimitrije/reclama-api/internal/identity"
	"github.com/dimitrije/reclama-api/internal/middleware"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/testutil"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type guardFixture struct {
	auth  *testutil.FakeAuth
	roles *testutil.FakeRoles
	app   http.Handler
	admin *models.User
	user  *models.User
}

func setupGuards(t *testing.T) *guardFixture {
	t.Helper()
	f := &guardFixture{
		auth:  testutil.NewFakeAuth(),
		admin: testutil.NewUser("admin@example.com"),
		user:  testutil.NewUser("cidadao@example.com"),
	}
	f.roles = testutil.NewFakeRoles(f.admin.ID)
	f.auth.AddUser("admin-token", "segredo123", f.admin)
	f.auth.AddUser("user-token", "segredo123", f.user)
	gate := testutil.NewGate(t, f.auth, f.roles, testutil.FakeProfiles{})
	guards := New(gate, Options{})

	ok := func(c *drift.Context) { _ = c.JSON(http.StatusOK, map[string]string{"status": "ok"}) }

	app := drift.New()
	app.Use(middleware.Identity(gate, false))

	authPages := app.Group("")
	authPages.Use(guards.AuthenticatedPage())
	authPages.Get("/my-reports", ok)

	adminPages := app.Group("")
	adminPages.Use(guards.AdminPage())
	adminPages.Get("/admin", ok)

	api := app.Group("/api/v1")
	authAPI := api.Group("")
	authAPI.Use(guards.AuthenticatedAPI())
	authAPI.Get("/users/me/reports", ok)

	adminAPI := api.Group("/admin")
	adminAPI.Use(guards.AdminAPI())
	adminAPI.Get("/reports", ok)

	f.app = app
	return f
}

func (f *guardFixture) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.app.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticatedPage_AnonymousRedirectsToLogin(t *testing.T) {
	f := setupGuards(t)

	rec := f.get("/my-reports?status=pending", "")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fmy-reports%3Fstatus%3Dpending", rec.Header().Get("Location"))
}

func TestAuthenticatedPage_SignedInAllowed(t *testing.T) {
	f := setupGuards(t)

	rec := f.get("/my-reports", "user-token")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticatedPage_Idempotent(t *testing.T) {
	f := setupGuards(t)

	first := f.get("/my-reports", "")
	second := f.get("/my-reports", "")

	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Header().Get("Location"), second.Header().Get("Location"))
}

func TestAdminPage_NonAdminSentHomeWithNotice(t *testing.T) {
	f := setupGuards(t)

	rec := f.get("/admin", "user-token")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?notice=acesso-negado", rec.Header().Get("Location"))
}

func TestAdminPage_AnonymousGoesToLogin(t *testing.T) {
	f := setupGuards(t)

	rec := f.get("/admin", "")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fadmin", rec.Header().Get("Location"))
}

func TestAdminPage_AdminAllowedAndCached(t *testing.T) {
	f := setupGuards(t)

	first := f.get("/admin", "admin-token")
	second := f.get("/admin", "admin-token")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 1, f.roles.Calls)
}

func TestAdminPage_LookupErrorDenies(t *testing.T) {
	f := setupGuards(t)
	f.roles.Err = errors.New("role store down")

	rec := f.get("/admin", "admin-token")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?notice=acesso-negado", rec.Header().Get("Location"))
}

func TestAPI_StatusCodes(t *testing.T) {
	f := setupGuards(t)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"anonymous own reports", "/api/v1/users/me/reports", "", http.StatusUnauthorized},
		{"user own reports", "/api/v1/users/me/reports", "user-token", http.StatusOK},
		{"anonymous admin", "/api/v1/admin/reports", "", http.StatusUnauthorized},
		{"user admin", "/api/v1/admin/reports", "user-token", http.StatusForbidden},
		{"admin admin", "/api/v1/admin/reports", "admin-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(tt.path, tt.token)
			assert.Equal(t, tt.status, rec.Code)
			assert.Empty(t, rec.Header().Get("Location"))
		})
	}
}

func TestPendingSession_ShowsLoading(t *testing.T) {
	guards := New(&scriptedChecker{}, Options{})
	app := drift.New()
	app.Use(func(c *drift.Context) {
		c.Set(middleware.SessionKey, identity.NewSession("c1"))
		c.Next()
	})
	pages := app.Group("")
	pages.Use(guards.AuthenticatedPage())
	pages.Get("/my-reports", func(c *drift.Context) {
		_ = c.JSON(http.StatusOK, nil)
	})
	api := app.Group("/api/v1")
	api.Use(guards.AuthenticatedAPI())
	api.Get("/users/me/reports", func(c *drift.Context) {
		_ = c.JSON(http.StatusOK, nil)
	})

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/my-reports", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Carregando")

	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/me/reports", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"retryable":true`)
}

func TestAuthenticated_Decisions(t *testing.T) {
	assert.Equal(t, Pending, Authenticated(identity.NewSession("c1")))
	assert.Equal(t, RedirectLogin, Authenticated(identity.NewAnonymous("c1")))
}

type scriptedChecker struct {
	checks []identity.AdminCheck
	calls  int
}

func (s *scriptedChecker) IsAdmin(context.Context, *identity.Session) (identity.AdminCheck, error) {
	check := s.checks[min(s.calls, len(s.checks)-1)]
	s.calls++
	return check, nil
}

func authenticatedSession(t *testing.T, user *models.User) *identity.Session {
	t.Helper()
	auth := testutil.NewFakeAuth()
	auth.AddUser("tok", "x", user)
	gate := testutil.NewGate(t, auth, testutil.NewFakeRoles(), testutil.FakeProfiles{})
	s := gate.Resolve(context.Background(), "c1", "tok")
	require.Equal(t, identity.Authenticated, s.State())
	return s
}

func TestEvaluateAdmin_RecomputesStaleResult(t *testing.T) {
	user := testutil.NewUser("admin@example.com")
	s := authenticatedSession(t, user)
	checker := &scriptedChecker{checks: []identity.AdminCheck{
		{UserID: uuid.New(), IsAdmin: true},
		{UserID: user.ID, IsAdmin: false},
	}}

	d := EvaluateAdmin(context.Background(), checker, s)

	assert.Equal(t, Deny, d)
	assert.Equal(t, 2, checker.calls)
}

func TestEvaluateAdmin_AlwaysStaleStaysPending(t *testing.T) {
	s := authenticatedSession(t, testutil.NewUser("admin@example.com"))
	checker := &scriptedChecker{checks: []identity.AdminCheck{{UserID: uuid.New(), IsAdmin: true}}}

	d := EvaluateAdmin(context.Background(), checker, s)

	assert.Equal(t, Pending, d)
	assert.Equal(t, maxRoleChecks, checker.calls)
}

func TestAdmin_ErrorDenies(t *testing.T) {
	user := testutil.NewUser("admin@example.com")
	s := authenticatedSession(t, user)

	d := Admin(s, identity.AdminCheck{UserID: user.ID, IsAdmin: true}, errors.New("boom"))

	assert.Equal(t, Deny, d)
}

func TestSafeNext(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"/my-reports", "/my-reports"},
		{"/report/abc?x=1", "/report/abc?x=1"},
		{"https://evil.example.com/", "/"},
		{"//evil.example.com", "/"},
		{`/\evil.example.com`, "/"},
		{"relative/path", "/"},
		{"/login", "/"},
		{"/login?next=/admin", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeNext(tt.in), tt.in)
	}
}

func TestOptionalNext(t *testing.T) {
	assert.Equal(t, "", OptionalNext(""))
	assert.Equal(t, "", OptionalNext("   "))
	assert.Equal(t, "/my-reports", OptionalNext("/my-reports"))
	assert.Equal(t, "/", OptionalNext("https://evil.example"))
}

func TestLoginURL(t *testing.T) {
	assert.Equal(t, "/login?next=%2Freport-problem", LoginURL("/report-problem"))
	assert.Equal(t, "/login?next=%2F", LoginURL("https://evil.example.com"))
}
