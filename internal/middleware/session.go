// Package middleware はHTTPミドルウェアとルートガードを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/passgate/internal/model"
)

// SessionCookieName はセッションCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストに解決済みセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionResolver はCookie値からセッションを解決するインターフェース。
// 署名不正・期限切れ・存在しないセッションはnil, nilを返す。
type SessionResolver interface {
	ResolveCookie(ctx context.Context, value string) (*model.Session, error)
}

// LoadSession はセッションCookieを解決し、有効なセッションをリクエストコンテキストに注入する。
// セッションがなくてもリクエストは拒否しない。ゲートはRequireAuthenticated/RequireAnonymousが行う。
// セッションストアにアクセスできない場合は500を返す。
func LoadSession(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := resolver.ResolveCookie(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if session == nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// SessionFromContext はリクエストコンテキストから解決済みセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	if !ok || session == nil {
		return nil, false
	}
	return session, true
}

// IdentityFromContext はリクエストに紐づくidentity reference（メールアドレス）を返す。
// 未認証の場合は空文字を返す。
func IdentityFromContext(ctx context.Context) string {
	if session, ok := SessionFromContext(ctx); ok {
		return session.Email
	}
	return ""
}

// RequireIdentity は認証済みリクエストのidentity referenceを返す。
// 有効なセッションがない場合はmodel.ErrSessionAbsentを返す。
func RequireIdentity(ctx context.Context) (string, error) {
	identity := IdentityFromContext(ctx)
	if identity == "" {
		return "", model.ErrSessionAbsent
	}
	return identity, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
