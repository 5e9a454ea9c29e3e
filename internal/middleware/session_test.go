package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/passgate/internal/model"
)

// --- モック定義 ---

type mockSessionResolver struct {
	resolveCookieFn func(ctx context.Context, value string) (*model.Session, error)
}

func (m *mockSessionResolver) ResolveCookie(ctx context.Context, value string) (*model.Session, error) {
	if m.resolveCookieFn != nil {
		return m.resolveCookieFn(ctx, value)
	}
	return nil, nil
}

var _ SessionResolver = (*mockSessionResolver)(nil)

func validSessionResolver(email string) *mockSessionResolver {
	return &mockSessionResolver{
		resolveCookieFn: func(_ context.Context, value string) (*model.Session, error) {
			if value != "valid-cookie" {
				return nil, nil
			}
			return &model.Session{ID: "s-1", Email: email, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
}

// --- テスト ---

func TestLoadSession_ValidCookie_InjectsIdentity(t *testing.T) {
	var captured string
	handler := LoadSession(validSessionResolver("a@x.com"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-cookie"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured != "a@x.com" {
		t.Errorf("identity = %q, want %q", captured, "a@x.com")
	}
}

func TestLoadSession_NoCookie_PassesAnonymous(t *testing.T) {
	called := false
	resolver := &mockSessionResolver{
		resolveCookieFn: func(_ context.Context, _ string) (*model.Session, error) {
			called = true
			return nil, nil
		},
	}

	var captured string
	handler := LoadSession(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured != "" {
		t.Errorf("identity = %q, want empty", captured)
	}
	if called {
		t.Error("resolver must not be called without cookie")
	}
}

func TestLoadSession_UnknownCookie_PassesAnonymous(t *testing.T) {
	var captured string
	handler := LoadSession(validSessionResolver("a@x.com"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "forged"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured != "" {
		t.Errorf("identity = %q, want empty", captured)
	}
}

func TestLoadSession_StoreError_Returns500(t *testing.T) {
	resolver := &mockSessionResolver{
		resolveCookieFn: func(_ context.Context, _ string) (*model.Session, error) {
			return nil, errors.New("store down")
		},
	}

	handler := LoadSession(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "any"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestSessionFromContext(t *testing.T) {
	if _, ok := SessionFromContext(context.Background()); ok {
		t.Error("expected no session in empty context")
	}

	session := &model.Session{ID: "s-1", Email: "a@x.com"}
	ctx := ContextWithSession(context.Background(), session)

	got, ok := SessionFromContext(ctx)
	if !ok || got.ID != "s-1" {
		t.Errorf("SessionFromContext() = %+v, %v; want s-1, true", got, ok)
	}
	if IdentityFromContext(ctx) != "a@x.com" {
		t.Errorf("IdentityFromContext() = %q, want %q", IdentityFromContext(ctx), "a@x.com")
	}
}

func TestRequireIdentity(t *testing.T) {
	identity, err := RequireIdentity(context.Background())
	if !errors.Is(err, model.ErrSessionAbsent) {
		t.Errorf("err = %v, want ErrSessionAbsent", err)
	}
	if identity != "" {
		t.Errorf("identity = %q, want empty", identity)
	}

	ctx := ContextWithSession(context.Background(), &model.Session{ID: "s1", Email: "alice@example.com"})
	identity, err = RequireIdentity(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity != "alice@example.com" {
		t.Errorf("identity = %q, want %q", identity, "alice@example.com")
	}
}
