package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/passgate/internal/auth"
	"github.com/hitoshi/passgate/internal/metrics"
	"github.com/hitoshi/passgate/internal/middleware"
	"github.com/hitoshi/passgate/internal/model"
	"github.com/hitoshi/passgate/internal/security"
	"github.com/hitoshi/passgate/internal/validation"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn     func(ctx context.Context, name, email, password string) error
	authenticateFn func(ctx context.Context, email, password string) (auth.AuthResult, error)
	currentUserFn  func(ctx context.Context, email string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, name, email, password string) error {
	if m.registerFn != nil {
		return m.registerFn(ctx, name, email, password)
	}
	return nil
}

func (m *mockAuthService) Authenticate(ctx context.Context, email, password string) (auth.AuthResult, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, email, password)
	}
	return auth.AuthResult{Authenticated: true, Email: email}, nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, email string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, email)
	}
	return nil, nil
}

type mockSessionService struct {
	createFn     func(ctx context.Context, email string) (*model.Session, error)
	destroyFn    func(ctx context.Context, sessionID string) error
	signCookieFn func(session *model.Session) (string, error)
}

func (m *mockSessionService) Create(ctx context.Context, email string) (*model.Session, error) {
	if m.createFn != nil {
		return m.createFn(ctx, email)
	}
	return &model.Session{ID: "new-session", Email: email, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *mockSessionService) Destroy(ctx context.Context, sessionID string) error {
	if m.destroyFn != nil {
		return m.destroyFn(ctx, sessionID)
	}
	return nil
}

func (m *mockSessionService) SignCookie(session *model.Session) (string, error) {
	if m.signCookieFn != nil {
		return m.signCookieFn(session)
	}
	return "signed." + session.ID, nil
}

type mockRecorder struct {
	metrics.NopRecorder
	mu            sync.Mutex
	registrations []string
	logins        []string
	logouts       int
}

func (m *mockRecorder) RecordRegistration(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations = append(m.registrations, result)
}

func (m *mockRecorder) RecordLogin(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, result)
}

func (m *mockRecorder) RecordLogout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts++
}

// --- ヘルパー ---

func newTestValidator(t *testing.T) *validation.Validator {
	t.Helper()
	v, err := validation.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator failed: %v", err)
	}
	return v
}

func newTestAuthHandler(t *testing.T, svc *mockAuthService, sessions *mockSessionService, rec *mockRecorder) *AuthHandler {
	t.Helper()
	return NewAuthHandler(svc, sessions, newTestValidator(t), rec, CookieConfig{MaxAge: 3600})
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) middleware.ResponseBody {
	t.Helper()
	var body middleware.ResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

const validRegisterBody = `{"name":"Alice","email":"alice@example.com","password":"s3cret"}`

// --- Register ---

func TestAuthHandler_Register_Success(t *testing.T) {
	var gotName, gotEmail, gotPassword string
	svc := &mockAuthService{
		registerFn: func(_ context.Context, name, email, password string) error {
			gotName, gotEmail, gotPassword = name, email, password
			return nil
		},
	}
	rec := &mockRecorder{}
	h := newTestAuthHandler(t, svc, &mockSessionService{}, rec)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(validRegisterBody))
	w := httptest.NewRecorder()
	h.Register(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := decodeResponse(t, w)
	if !body.Success {
		t.Error("expected success=true")
	}
	if body.Message != "Successfully registered User" {
		t.Errorf("unexpected message: %q", body.Message)
	}
	if gotName != "Alice" || gotEmail != "alice@example.com" || gotPassword != "s3cret" {
		t.Errorf("unexpected arguments: %q %q %q", gotName, gotEmail, gotPassword)
	}
	if len(rec.registrations) != 1 || rec.registrations[0] != metrics.ResultSuccess {
		t.Errorf("expected one success registration, got %v", rec.registrations)
	}
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantCode   string
		wantResult string
	}{
		{
			name:       "重複メールアドレス",
			body:       validRegisterBody,
			serviceErr: model.ErrEmailAlreadyRegistered,
			wantCode:   model.ErrCodeEmailTaken,
			wantResult: metrics.ResultConflict,
		},
		{
			name:       "ストア障害",
			body:       validRegisterBody,
			serviceErr: errors.Join(model.ErrStoreUnavailable, errors.New("connection refused")),
			wantCode:   model.ErrCodeRegisterFailed,
			wantResult: metrics.ResultError,
		},
		{
			name:       "表示名が空",
			body:       validRegisterBody,
			serviceErr: auth.ErrEmptyName,
			wantCode:   model.ErrCodeValidation,
			wantResult: metrics.ResultInvalid,
		},
		{
			name:       "パスワードが長すぎる",
			body:       validRegisterBody,
			serviceErr: security.ErrPasswordTooLong,
			wantCode:   model.ErrCodeValidation,
			wantResult: metrics.ResultInvalid,
		},
		{
			name:       "不正なJSON",
			body:       `{"name":`,
			wantCode:   model.ErrCodeValidation,
			wantResult: metrics.ResultInvalid,
		},
		{
			name:       "passwordが欠落",
			body:       `{"name":"Alice","email":"alice@example.com"}`,
			wantCode:   model.ErrCodeValidation,
			wantResult: metrics.ResultInvalid,
		},
		{
			name:       "emailの形式が不正",
			body:       `{"name":"Alice","email":"not-an-email","password":"pw"}`,
			wantCode:   model.ErrCodeValidation,
			wantResult: metrics.ResultInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{
				registerFn: func(context.Context, string, string, string) error {
					called = true
					return tt.serviceErr
				},
			}
			rec := &mockRecorder{}
			h := newTestAuthHandler(t, svc, &mockSessionService{}, rec)

			req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Register(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			body := decodeResponse(t, w)
			if body.Success {
				t.Error("expected success=false")
			}
			if body.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, body.Code)
			}
			if tt.serviceErr == nil && called {
				t.Error("service must not be called for invalid bodies")
			}
			if len(rec.registrations) != 1 || rec.registrations[0] != tt.wantResult {
				t.Errorf("expected registration result %q, got %v", tt.wantResult, rec.registrations)
			}
		})
	}
}

// --- Login ---

func TestAuthHandler_Login_Success(t *testing.T) {
	var createdFor string
	sessions := &mockSessionService{
		createFn: func(_ context.Context, email string) (*model.Session, error) {
			createdFor = email
			return &model.Session{ID: "sess-1", Email: email}, nil
		},
	}
	rec := &mockRecorder{}
	h := newTestAuthHandler(t, &mockAuthService{}, sessions, rec)

	req := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"email":"alice@example.com","password":"s3cret"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("expected redirect to /dashboard, got %q", loc)
	}
	if createdFor != "alice@example.com" {
		t.Errorf("session created for %q", createdFor)
	}

	cookie := findCookie(w, middleware.SessionCookieName)
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if cookie.Value != "signed.sess-1" {
		t.Errorf("unexpected cookie value: %q", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("expected SameSite=Lax, got %v", cookie.SameSite)
	}
	if cookie.MaxAge != 3600 {
		t.Errorf("expected MaxAge 3600, got %d", cookie.MaxAge)
	}
	if len(rec.logins) != 1 || rec.logins[0] != metrics.ResultSuccess {
		t.Errorf("expected one successful login, got %v", rec.logins)
	}
}

func TestAuthHandler_Login_RejectionsAreIndistinguishable(t *testing.T) {
	reasons := []auth.RejectReason{auth.RejectUserNotFound, auth.RejectBadPassword}
	var bodies []string

	for _, reason := range reasons {
		svc := &mockAuthService{
			authenticateFn: func(context.Context, string, string) (auth.AuthResult, error) {
				return auth.AuthResult{Reason: reason}, nil
			},
		}
		sessions := &mockSessionService{
			createFn: func(context.Context, string) (*model.Session, error) {
				t.Fatal("session must not be created on rejection")
				return nil, nil
			},
		}
		h := newTestAuthHandler(t, svc, sessions, &mockRecorder{})

		req := httptest.NewRequest(http.MethodPost, "/login",
			strings.NewReader(`{"email":"alice@example.com","password":"nope"}`))
		w := httptest.NewRecorder()
		h.Login(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("reason %s: expected status 401, got %d", reason, w.Code)
		}
		if findCookie(w, middleware.SessionCookieName) != nil {
			t.Errorf("reason %s: no session cookie expected", reason)
		}
		bodies = append(bodies, w.Body.String())
	}

	if bodies[0] != bodies[1] {
		t.Errorf("rejection responses differ:\n%s\n%s", bodies[0], bodies[1])
	}
	if !strings.Contains(bodies[0], "Wrong credentials") {
		t.Errorf("unexpected body: %s", bodies[0])
	}
}

func TestAuthHandler_Login_InvalidBody(t *testing.T) {
	svc := &mockAuthService{
		authenticateFn: func(context.Context, string, string) (auth.AuthResult, error) {
			t.Fatal("Authenticate must not be called")
			return auth.AuthResult{}, nil
		},
	}
	rec := &mockRecorder{}
	h := newTestAuthHandler(t, svc, &mockSessionService{}, rec)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"alice@example.com"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if len(rec.logins) != 1 || rec.logins[0] != metrics.ResultInvalid {
		t.Errorf("expected invalid login result, got %v", rec.logins)
	}
}

func TestAuthHandler_Login_StoreFailures(t *testing.T) {
	storeErr := errors.New("store down")

	tests := []struct {
		name     string
		svc      *mockAuthService
		sessions *mockSessionService
	}{
		{
			name: "認証時のストア障害",
			svc: &mockAuthService{
				authenticateFn: func(context.Context, string, string) (auth.AuthResult, error) {
					return auth.AuthResult{}, storeErr
				},
			},
			sessions: &mockSessionService{},
		},
		{
			name: "セッション作成失敗",
			svc:  &mockAuthService{},
			sessions: &mockSessionService{
				createFn: func(context.Context, string) (*model.Session, error) {
					return nil, storeErr
				},
			},
		},
		{
			name: "Cookie署名失敗",
			svc:  &mockAuthService{},
			sessions: &mockSessionService{
				signCookieFn: func(*model.Session) (string, error) {
					return "", storeErr
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &mockRecorder{}
			h := newTestAuthHandler(t, tt.svc, tt.sessions, rec)

			req := httptest.NewRequest(http.MethodPost, "/login",
				strings.NewReader(`{"email":"alice@example.com","password":"s3cret"}`))
			w := httptest.NewRecorder()
			h.Login(w, req)

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("expected status 500, got %d", w.Code)
			}
			if findCookie(w, middleware.SessionCookieName) != nil {
				t.Error("no session cookie expected on failure")
			}
			if len(rec.logins) != 1 || rec.logins[0] != metrics.ResultError {
				t.Errorf("expected error login result, got %v", rec.logins)
			}
		})
	}
}

func TestAuthHandler_Login_ReplacesExistingSession(t *testing.T) {
	var destroyed string
	sessions := &mockSessionService{
		destroyFn: func(_ context.Context, id string) error {
			destroyed = id
			return nil
		},
	}
	h := newTestAuthHandler(t, &mockAuthService{}, sessions, &mockRecorder{})

	req := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader(`{"email":"alice@example.com","password":"s3cret"}`))
	req = req.WithContext(middleware.ContextWithSession(req.Context(),
		&model.Session{ID: "old-session", Email: "bob@example.com"}))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", w.Code)
	}
	if destroyed != "old-session" {
		t.Errorf("expected old session to be destroyed, got %q", destroyed)
	}
}

// --- Logout ---

func TestAuthHandler_Logout_DestroysSession(t *testing.T) {
	var destroyed string
	sessions := &mockSessionService{
		destroyFn: func(_ context.Context, id string) error {
			destroyed = id
			return nil
		},
	}
	rec := &mockRecorder{}
	h := newTestAuthHandler(t, &mockAuthService{}, sessions, rec)

	req := httptest.NewRequest(http.MethodDelete, "/logout", nil)
	req = req.WithContext(middleware.ContextWithSession(req.Context(),
		&model.Session{ID: "sess-1", Email: "alice@example.com"}))
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("expected redirect to /login, got %q", loc)
	}
	if destroyed != "sess-1" {
		t.Errorf("expected sess-1 destroyed, got %q", destroyed)
	}
	cookie := findCookie(w, middleware.SessionCookieName)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("expected session cookie to be cleared, got %+v", cookie)
	}
	if rec.logouts != 1 {
		t.Errorf("expected 1 logout recorded, got %d", rec.logouts)
	}
}

func TestAuthHandler_Logout_WithoutSession(t *testing.T) {
	sessions := &mockSessionService{
		destroyFn: func(context.Context, string) error {
			t.Fatal("Destroy must not be called without a session")
			return nil
		},
	}
	rec := &mockRecorder{}
	h := newTestAuthHandler(t, &mockAuthService{}, sessions, rec)

	req := httptest.NewRequest(http.MethodDelete, "/logout", nil)
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", w.Code)
	}
	if rec.logouts != 0 {
		t.Errorf("expected no logout recorded, got %d", rec.logouts)
	}
}

func TestAuthHandler_Logout_StoreFailure(t *testing.T) {
	sessions := &mockSessionService{
		destroyFn: func(context.Context, string) error {
			return model.ErrStoreUnavailable
		},
	}
	h := newTestAuthHandler(t, &mockAuthService{}, sessions, &mockRecorder{})

	req := httptest.NewRequest(http.MethodDelete, "/logout", nil)
	req = req.WithContext(middleware.ContextWithSession(req.Context(),
		&model.Session{ID: "sess-1", Email: "alice@example.com"}))
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	if findCookie(w, middleware.SessionCookieName) != nil {
		t.Error("cookie must not be cleared when the store fails")
	}
}

// --- Me ---

func TestAuthHandler_Me(t *testing.T) {
	svc := &mockAuthService{
		currentUserFn: func(_ context.Context, email string) (*model.User, error) {
			return &model.User{Name: "Alice", Email: email, PasswordHash: "secret-hash"}, nil
		},
	}
	h := newTestAuthHandler(t, svc, &mockSessionService{}, &mockRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(middleware.ContextWithSession(req.Context(),
		&model.Session{ID: "sess-1", Email: "alice@example.com"}))
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret-hash") {
		t.Error("password hash must not be exposed")
	}

	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if got["name"] != "Alice" || got["email"] != "alice@example.com" {
		t.Errorf("unexpected body: %v", got)
	}
}

func TestAuthHandler_Me_Unauthenticated(t *testing.T) {
	h := newTestAuthHandler(t, &mockAuthService{}, &mockSessionService{}, &mockRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
	if body := decodeResponse(t, w); body.Code != model.ErrCodeUnauthorized {
		t.Errorf("expected code %q, got %q", model.ErrCodeUnauthorized, body.Code)
	}
}

func TestAuthHandler_Me_UserGone(t *testing.T) {
	h := newTestAuthHandler(t, &mockAuthService{}, &mockSessionService{}, &mockRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(middleware.ContextWithSession(req.Context(),
		&model.Session{ID: "sess-1", Email: "ghost@example.com"}))
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}
