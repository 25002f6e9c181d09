package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/finpanel/report-service/internal/ratelimit"
	"github.com/finpanel/report-service/internal/report"
	"github.com/finpanel/report-service/internal/risk"
	"github.com/finpanel/report-service/internal/secretroute"
	"github.com/finpanel/report-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAdminUser = "ops"
	testAdminPass = "correct horse battery staple"
)

func newTestServer(t *testing.T, limits ratelimit.Config) *Server {
	t.Helper()

	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPass), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.NewLimiter(limits)
	t.Cleanup(limiter.Stop)
	submitter := report.NewSubmitter(risk.NewScorer(), limiter, st, nil, logger)
	routes := secretroute.NewManager(st, logger)

	srv := NewServer(Config{
		AdminUsername:     testAdminUser,
		AdminPasswordHash: string(hash),
	}, st, submitter, routes, logger)
	t.Cleanup(srv.Stop)
	return srv
}

func looseLimits() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.ReportsPerHour = 100
	cfg.ReportsPerDay = 100
	return cfg
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

func benignBody() map[string]any {
	return map[string]any{
		"email":       "jane@example.org",
		"subject":     "Duplicate recurring payment",
		"description": "A recurring payment I set up last week shows twice in my history.",
		"clientInfo":  map[string]string{"userAgent": "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"},
	}
}

func TestSubmitReportEndpoint(t *testing.T) {
	srv := newTestServer(t, looseLimits())
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/reports/web", benignBody(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	ticketID, _ := decode(t, rec)["ticketId"].(string)
	if !strings.HasPrefix(ticketID, "WEB-") {
		t.Fatalf("ticketId = %q", ticketID)
	}

	// Status lookup, case-insensitive on input.
	rec = doJSON(t, h, http.MethodGet, "/reports/web/status/"+strings.ToLower(ticketID), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status lookup = %d, body = %s", rec.Code, rec.Body.String())
	}
	got := decode(t, rec)
	if got["status"] != "pending" || got["ticketId"] != ticketID {
		t.Errorf("status view = %v", got)
	}
	// The public view must not expose the assessment.
	if _, ok := got["riskAssessment"]; ok {
		t.Error("public status view exposes the risk assessment")
	}
}

func TestSubmitReportValidationError(t *testing.T) {
	srv := newTestServer(t, looseLimits())

	body := benignBody()
	body["email"] = ""
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/reports/web", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if msg, _ := decode(t, rec)["error"].(string); !strings.Contains(msg, "email") {
		t.Errorf("error = %q, want field-specific message", msg)
	}
}

func TestSubmitReportRateLimited(t *testing.T) {
	cfg := ratelimit.DefaultConfig() // 2/hour
	srv := newTestServer(t, cfg)
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		if rec := doJSON(t, h, http.MethodPost, "/reports/web", benignBody(), nil); rec.Code != http.StatusCreated {
			t.Fatalf("submission %d: %d", i+1, rec.Code)
		}
	}
	rec := doJSON(t, h, http.MethodPost, "/reports/web", benignBody(), nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	got := decode(t, rec)
	if msg, _ := got["error"].(string); !strings.Contains(msg, "hourly") {
		t.Errorf("error = %q", msg)
	}
	if got["retryAt"] == "" {
		t.Error("retryAt missing")
	}
}

func TestSubmitReportSecurityBlocked(t *testing.T) {
	srv := newTestServer(t, looseLimits())

	body := map[string]any{
		"email":       "x12345678@mailinator.com",
		"subject":     "FREE MONEY!!!! CLICK HERE NOW http://bit.ly/x",
		"description": "<script>alert(1)</script> SELECT password FROM users WHERE 1=1; rm -rf / casino lottery winner jackpot",
		"clientInfo":  map[string]string{"userAgent": "curl/8.5.0"},
	}
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/reports/web", body, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	msg, _ := decode(t, rec)["error"].(string)
	for _, leak := range []string{"score", "risk", "spam", "pattern"} {
		if strings.Contains(strings.ToLower(msg), leak) {
			t.Errorf("error %q leaks detection internals", msg)
		}
	}
}

func TestReportStatusErrors(t *testing.T) {
	srv := newTestServer(t, looseLimits())
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/reports/web/status/WEB-1767139200000-FFFFFFFF", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown ticket: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/reports/web/status/not-a-ticket", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed ticket: %d", rec.Code)
	}
}

// adminSession walks the full access flow and returns a bearer token.
func adminSession(t *testing.T, h http.Handler) string {
	t.Helper()

	rec := doJSON(t, h, http.MethodPost, "/admin/access",
		map[string]string{"username": testAdminUser, "password": testAdminPass}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin access = %d, body = %s", rec.Code, rec.Body.String())
	}
	path, _ := decode(t, rec)["path"].(string)
	if !secretroute.PathPattern.MatchString(path) {
		t.Fatalf("secret path = %q", path)
	}

	rec = doJSON(t, h, http.MethodGet, path, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("route exchange = %d, body = %s", rec.Code, rec.Body.String())
	}
	token, _ := decode(t, rec)["token"].(string)
	if !strings.HasPrefix(token, "temp-access-") {
		t.Fatalf("session token = %q", token)
	}
	return token
}

func TestAdminAccessFlow(t *testing.T) {
	srv := newTestServer(t, looseLimits())
	h := srv.Handler()

	// Wrong credentials are a uniform 401.
	rec := doJSON(t, h, http.MethodPost, "/admin/access",
		map[string]string{"username": testAdminUser, "password": "nope"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials = %d", rec.Code)
	}

	token := adminSession(t, h)
	auth := map[string]string{"Authorization": "Bearer " + token}

	// Seed two reports, one spammy enough to be auto-flagged.
	if rec := doJSON(t, h, http.MethodPost, "/reports/web", benignBody(), nil); rec.Code != http.StatusCreated {
		t.Fatalf("seed submission: %d", rec.Code)
	}
	spam := map[string]any{
		"email":       "test@mailinator.com",
		"subject":     "Buy now!!!! http://bit.ly/x",
		"description": "limited time offer guaranteed profit",
		"clientInfo":  map[string]string{"userAgent": ""},
	}
	rec = doJSON(t, h, http.MethodPost, "/reports/web", spam, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("spam submission: %d, body = %s", rec.Code, rec.Body.String())
	}

	// Filtered list with the dashboard's query parameter names.
	rec = doJSON(t, h, http.MethodGet, "/reports/web/admin?estado=spam&pagina=1&limite=10", nil, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list = %d, body = %s", rec.Code, rec.Body.String())
	}
	got := decode(t, rec)
	if total, _ := got["total"].(float64); total != 1 {
		t.Errorf("spam total = %v, body = %s", got["total"], rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/reports/web/admin/security-stats", nil, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("security stats = %d", rec.Code)
	}
	stats := decode(t, rec)
	if stats["totalReports"].(float64) != 2 || stats["spamReports"].(float64) != 1 {
		t.Errorf("stats = %v", stats)
	}

	rec = doJSON(t, h, http.MethodPost, "/reports/web/admin/extend-access", nil, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("extend access = %d", rec.Code)
	}

	// Logout invalidates the session and the route.
	rec = doJSON(t, h, http.MethodPost, "/admin/logout", nil, auth)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/reports/web/admin", nil, auth)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("list after logout = %d, want 401", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/reports/web/admin/extend-access", nil, auth)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("extend after logout = %d, want 401", rec.Code)
	}
}

func TestAdminEndpointsRequireSession(t *testing.T) {
	srv := newTestServer(t, looseLimits())
	h := srv.Handler()

	paths := []struct{ method, path string }{
		{http.MethodGet, "/reports/web/admin"},
		{http.MethodPost, "/reports/web/admin/mark-spam/WEB-1767139200000-A1B2C3D4"},
		{http.MethodGet, "/reports/web/admin/security-stats"},
		{http.MethodPost, "/reports/web/admin/extend-access"},
		{http.MethodPost, "/admin/logout"},
	}
	for _, p := range paths {
		rec := doJSON(t, h, p.method, p.path, nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestSecretRouteExchangeRejectsStalePath(t *testing.T) {
	srv := newTestServer(t, looseLimits())
	h := srv.Handler()

	// No route generated at all.
	rec := doJSON(t, h, http.MethodGet, "/secret-aaaabbbbccccdddd-admin", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no active route = %d, want 404", rec.Code)
	}

	// Generating a second route invalidates the first path.
	rec = doJSON(t, h, http.MethodPost, "/admin/access",
		map[string]string{"username": testAdminUser, "password": testAdminPass}, nil)
	first, _ := decode(t, rec)["path"].(string)
	rec = doJSON(t, h, http.MethodPost, "/admin/access",
		map[string]string{"username": testAdminUser, "password": testAdminPass}, nil)
	second, _ := decode(t, rec)["path"].(string)
	if first == second {
		t.Fatal("regeneration returned the same path")
	}

	if rec := doJSON(t, h, http.MethodGet, first, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("old path = %d, want 404", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, second, nil, nil); rec.Code != http.StatusOK {
		t.Errorf("current path = %d, want 200", rec.Code)
	}
}

func TestMarkSpamTransition(t *testing.T) {
	srv := newTestServer(t, looseLimits())
	h := srv.Handler()
	token := adminSession(t, h)
	auth := map[string]string{"Authorization": "Bearer " + token}

	rec := doJSON(t, h, http.MethodPost, "/reports/web", benignBody(), nil)
	ticketID, _ := decode(t, rec)["ticketId"].(string)

	url := fmt.Sprintf("/reports/web/admin/mark-spam/%s", ticketID)
	rec = doJSON(t, h, http.MethodPost, url, map[string]string{"detail": "manual review"}, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark-spam = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Spam is terminal.
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/reports/web/admin/close/%s", ticketID), nil, auth)
	if rec.Code != http.StatusConflict {
		t.Errorf("close after spam = %d, want 409", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/reports/web/admin/mark-spam/WEB-1767139200000-FFFFFFFF", nil, auth)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown ticket = %d, want 404", rec.Code)
	}

	// The admin list carries the action history.
	rec = doJSON(t, h, http.MethodGet, "/reports/web/admin?estado=spam", nil, auth)
	got := decode(t, rec)
	reports, _ := got["reports"].([]any)
	if len(reports) != 1 {
		t.Fatalf("reports = %v", got)
	}
	first := reports[0].(map[string]any)
	history, _ := first["actionHistory"].([]any)
	if len(history) != 1 {
		t.Fatalf("actionHistory = %v", first)
	}
	entry := history[0].(map[string]any)
	if entry["action"] != "mark-spam" || entry["actor"] != testAdminUser || entry["detail"] != "manual review" {
		t.Errorf("history entry = %v", entry)
	}
}
