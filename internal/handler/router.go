package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/passgate/internal/metrics"
	"github.com/hitoshi/passgate/internal/middleware"
	"github.com/hitoshi/passgate/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HSTS              bool

	// 認証
	AuthService AuthServiceInterface
	Sessions    SessionServiceInterface
	Validator   RequestValidator
	Cookie      CookieConfig

	// 運用
	Recorder metrics.Recorder
	Gatherer prometheus.Gatherer
	Pingers  map[string]repository.Pinger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → CORS → MethodOverride → LoadSession → Logging
//
// ロギングはLoadSessionの後に置き、ログにセッションのidentityを含める。
// X-Forwarded-For等の転送ヘッダーはクライアントが自由に設定できるため、RemoteAddrを書き換えない。
// レート制限は接続元アドレス単位で行う。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}

	pages, err := NewPageHandler()
	if err != nil {
		return nil, err
	}
	authHandler := NewAuthHandler(deps.AuthService, deps.Sessions, deps.Validator, recorder, deps.Cookie)
	healthHandler := NewHealthHandler(deps.Pingers)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewMethodOverrideMiddleware())
	r.Use(middleware.LoadSession(deps.SessionResolver))
	r.Use(middleware.NewLoggingMiddleware(logger, recorder.RecordHTTPStatus))

	// --- ゲートなしのルート ---
	r.Get("/", pages.Home)
	r.Handle("/static/*", Static())
	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Get("/me", authHandler.Me)
	r.Delete("/logout", authHandler.Logout)

	// 登録・ログインはIPごとのレート制限を適用する
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// --- 未認証のみ ---
	r.With(middleware.RequireAnonymous).Get(middleware.LoginPath, pages.LoginPage)

	// --- 認証済みのみ ---
	r.With(middleware.RequireAuthenticated).Get(middleware.DashboardPath, pages.Dashboard)

	return r, nil
}
