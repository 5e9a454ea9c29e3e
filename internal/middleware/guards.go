package middleware

import "net/http"

const (
	// LoginPath は未認証ユーザーのリダイレクト先。
	LoginPath = "/login"
	// DashboardPath は認証済みユーザーのリダイレクト先。
	DashboardPath = "/dashboard"
)

// GuardDecision はルートガードの判定結果。
// Allowがfalseの場合はRedirectToへリダイレクトする。
type GuardDecision struct {
	Allow      bool
	RedirectTo string
}

// CheckAuthenticated は認証済みの場合のみ通過を許可する。
// identityは解決済みセッションのidentity reference（未認証なら空文字）。
func CheckAuthenticated(identity string) GuardDecision {
	if identity != "" {
		return GuardDecision{Allow: true}
	}
	return GuardDecision{RedirectTo: LoginPath}
}

// CheckAnonymous は未認証の場合のみ通過を許可する。
func CheckAnonymous(identity string) GuardDecision {
	if identity == "" {
		return GuardDecision{Allow: true}
	}
	return GuardDecision{RedirectTo: DashboardPath}
}

// RequireAuthenticated はCheckAuthenticatedを適用するミドルウェア。LoadSessionの後に配置する。
func RequireAuthenticated(next http.Handler) http.Handler {
	return guard(CheckAuthenticated, next)
}

// RequireAnonymous はCheckAnonymousを適用するミドルウェア。LoadSessionの後に配置する。
func RequireAnonymous(next http.Handler) http.Handler {
	return guard(CheckAnonymous, next)
}

func guard(check func(identity string) GuardDecision, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := check(IdentityFromContext(r.Context()))
		if !decision.Allow {
			http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
