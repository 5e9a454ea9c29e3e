// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/passgate/internal/auth"
	"github.com/hitoshi/passgate/internal/metrics"
	"github.com/hitoshi/passgate/internal/middleware"
	"github.com/hitoshi/passgate/internal/model"
	"github.com/hitoshi/passgate/internal/security"
	"github.com/hitoshi/passgate/internal/validation"
)

const registeredMessage = "Successfully registered User"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, name, email, password string) error
	Authenticate(ctx context.Context, email, password string) (auth.AuthResult, error)
	CurrentUser(ctx context.Context, email string) (*model.User, error)
}

// SessionServiceInterface はセッションの発行と破棄のインターフェース。
type SessionServiceInterface interface {
	Create(ctx context.Context, email string) (*model.Session, error)
	Destroy(ctx context.Context, sessionID string) error
	SignCookie(session *model.Session) (string, error)
}

// RequestValidator はリクエストボディの検証とデコードのインターフェース。
type RequestValidator interface {
	DecodeRegister(body io.Reader) (*validation.RegisterRequest, error)
	DecodeLogin(body io.Reader) (*validation.LoginRequest, error)
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Domain string
	Secure bool
	MaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は登録・ログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	sessions  SessionServiceInterface
	validator RequestValidator
	recorder  metrics.Recorder
	cookie    CookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。recorderがnilの場合はメトリクスを記録しない。
func NewAuthHandler(
	service AuthServiceInterface,
	sessions SessionServiceInterface,
	validator RequestValidator,
	recorder metrics.Recorder,
	cookie CookieConfig,
) *AuthHandler {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &AuthHandler{
		service:   service,
		sessions:  sessions,
		validator: validator,
		recorder:  recorder,
		cookie:    cookie,
	}
}

// Register はユーザーを登録する。
// POST /register {name, email, password}
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, err := h.validator.DecodeRegister(r.Body)
	if err != nil {
		h.recorder.RecordRegistration(metrics.ResultInvalid)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(validationReason(err)))
		return
	}

	err = h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	switch {
	case err == nil:
		h.recorder.RecordRegistration(metrics.ResultSuccess)
		middleware.WriteSuccessResponse(w, http.StatusOK, registeredMessage)
	case errors.Is(err, model.ErrEmailAlreadyRegistered):
		h.recorder.RecordRegistration(metrics.ResultConflict)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewEmailTakenError())
	case errors.Is(err, auth.ErrEmptyName):
		h.recorder.RecordRegistration(metrics.ResultInvalid)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("name must contain text"))
	case errors.Is(err, security.ErrPasswordTooLong):
		h.recorder.RecordRegistration(metrics.ResultInvalid)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("password is too long"))
	default:
		h.recorder.RecordRegistration(metrics.ResultError)
		slog.Error("failed to register user", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewRegisterFailedError())
	}
}

// Login はメールアドレスとパスワードで認証し、セッションを発行する。
// POST /login {email, password}
// 成功時は/dashboardへリダイレクトする。ユーザー未登録とパスワード不一致は同じ401を返す。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := h.validator.DecodeLogin(r.Body)
	if err != nil {
		h.recorder.RecordLogin(metrics.ResultInvalid)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(validationReason(err)))
		return
	}

	result, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recorder.RecordLogin(metrics.ResultError)
		slog.Error("failed to authenticate", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if !result.Authenticated {
		h.recorder.RecordLogin(metrics.ResultRejected)
		slog.Info("login rejected", slog.String("reason", string(result.Reason)))
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}

	// 既存セッションを引き継がず、ログインごとに新しいセッションを発行する
	if current, ok := middleware.SessionFromContext(r.Context()); ok {
		if err := h.sessions.Destroy(r.Context(), current.ID); err != nil {
			slog.Warn("failed to destroy previous session", slog.String("error", err.Error()))
		}
	}

	session, err := h.sessions.Create(r.Context(), result.Email)
	if err != nil {
		h.recorder.RecordLogin(metrics.ResultError)
		slog.Error("failed to create session", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	value, err := h.sessions.SignCookie(session)
	if err != nil {
		h.recorder.RecordLogin(metrics.ResultError)
		slog.Error("failed to sign session cookie", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.recorder.RecordLogin(metrics.ResultSuccess)
	h.setSessionCookie(w, value)
	http.Redirect(w, r, middleware.DashboardPath, http.StatusFound)
}

// Logout はセッションを破棄し、/loginへリダイレクトする。
// DELETE /logout（HTMLフォームからは POST /logout?_method=DELETE）
// セッションストアの削除に失敗した場合は500を返し、Cookieは残す。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session, ok := middleware.SessionFromContext(r.Context()); ok {
		if err := h.sessions.Destroy(r.Context(), session.ID); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}
		h.recorder.RecordLogout()
	}

	h.clearSessionCookie(w)
	http.Redirect(w, r, middleware.LoginPath, http.StatusFound)
}

// Me は現在のログインユーザー情報を返す。
// GET /me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.RequireIdentity(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), identity)
	if err != nil {
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if user == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"name":  user.Name,
		"email": user.Email,
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   h.cookie.MaxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// validationReason は検証エラーからクライアントに返す理由を取り出す。
func validationReason(err error) string {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return "malformed request"
}
