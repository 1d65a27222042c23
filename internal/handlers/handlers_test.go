package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dimitrije/reclama-api/internal/identity"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/testutil"
	"github.com/dimitrije/reclama-api/internal/web"
	"github.com/google/uuid"
)

const testPassword = "segredo123"

type fixture struct {
	auth     *testutil.FakeAuth
	roles    *testutil.FakeRoles
	gate     *identity.Gate
	reports  *testutil.MockReportService
	authSvc  *testutil.MockAuthService
	roleSvc  *testutil.MockRoleService
	views    *web.Renderer
	admin    *models.User
	user     *models.User
	profiles testutil.FakeProfiles
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		auth:    testutil.NewFakeAuth(),
		reports: new(testutil.MockReportService),
		authSvc: new(testutil.MockAuthService),
		roleSvc: new(testutil.MockRoleService),
		views:   web.MustNew(),
		admin:   testutil.NewUser("admin@example.com"),
		user:    testutil.NewUser("maria@example.com"),
	}
	f.roles = testutil.NewFakeRoles(f.admin.ID)
	f.profiles = testutil.FakeProfiles{f.user.ID: "Maria Silva"}
	f.auth.AddUser("admin-token", testPassword, f.admin)
	f.auth.AddUser("user-token", testPassword, f.user)
	f.gate = testutil.NewGate(t, f.auth, f.roles, f.profiles)
	return f
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func newRequest(method, path, token string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func formRequest(method, path string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func serve(app http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func cookieValue(rec *httptest.ResponseRecorder, name string) (string, bool) {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func testReport(owner uuid.UUID, status models.ReportStatus) *models.Report {
	title := "Buraco na Rua Principal"
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	return &models.Report{
		ID:          uuid.New(),
		UserID:      owner,
		Title:       &title,
		Description: "Buraco grande em frente ao número 120",
		Category:    "Calçadas e Vias",
		Location:    "Rua Principal, 120",
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
