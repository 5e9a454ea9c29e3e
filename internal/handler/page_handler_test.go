package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/passgate/internal/middleware"
	"github.com/hitoshi/passgate/internal/model"
)

func newTestPageHandler(t *testing.T) *PageHandler {
	t.Helper()
	h, err := NewPageHandler()
	if err != nil {
		t.Fatalf("NewPageHandler failed: %v", err)
	}
	return h
}

func TestPageHandler_Home(t *testing.T) {
	h := newTestPageHandler(t)

	w := httptest.NewRecorder()
	h.Home(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected text/html, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "My First Server!") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestPageHandler_LoginPage(t *testing.T) {
	h := newTestPageHandler(t)

	w := httptest.NewRecorder()
	h.LoginPage(w, httptest.NewRequest(http.MethodGet, "/login", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`id="login-form"`, `/static/login.js`, `type="password"`} {
		if !strings.Contains(body, want) {
			t.Errorf("login page should contain %q", want)
		}
	}
}

func TestPageHandler_Dashboard(t *testing.T) {
	h := newTestPageHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req = req.WithContext(middleware.ContextWithSession(req.Context(),
		&model.Session{ID: "sess-1", Email: "<alice>@example.com"}))
	w := httptest.NewRecorder()
	h.Dashboard(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "This is my dashboard") {
		t.Errorf("unexpected body: %s", body)
	}
	if !strings.Contains(body, `action="/logout?_method=DELETE"`) {
		t.Error("dashboard should contain the logout form")
	}
	if strings.Contains(body, "<alice>") {
		t.Error("identity must be HTML-escaped")
	}
}

func TestStatic_ServesLoginScript(t *testing.T) {
	w := httptest.NewRecorder()
	Static().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/login.js", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/dashboard") {
		t.Error("login script should redirect to /dashboard on success")
	}
}
