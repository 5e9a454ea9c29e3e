// Package app は設定の読み込みから各起動モードのワイヤリングまでを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/passgate/internal/auth"
	"github.com/hitoshi/passgate/internal/config"
	"github.com/hitoshi/passgate/internal/database"
	"github.com/hitoshi/passgate/internal/handler"
	"github.com/hitoshi/passgate/internal/logger"
	"github.com/hitoshi/passgate/internal/metrics"
	"github.com/hitoshi/passgate/internal/middleware"
	"github.com/hitoshi/passgate/internal/security"
	"github.com/hitoshi/passgate/internal/validation"
	"github.com/hitoshi/passgate/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数（と.env）からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Server はワイヤリング済みのHTTPサーバーと、その後始末に必要な資源を保持する。
type Server struct {
	HTTP    *http.Server
	stores  *Stores
	limiter *middleware.RateLimiter
	cleanup *cleanup.CleanupJob
}

// NewServer は設定からストア・サービス・ルーターを構築する。
// グローバルな接続は持たず、すべてConfigから組み立てる。
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	// 1. ストア
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 2. ドメインサービス
	authService := auth.NewService(
		stores.Users,
		security.NewBcryptHasher(cfg.BcryptCost),
		security.NewNameSanitizer(),
	)
	sessions := auth.NewSessionManager(stores.Sessions, auth.SessionConfig{
		MaxAge: cfg.SessionMaxAge,
		Secret: []byte(cfg.SessionSecret),
	})

	validator, err := validation.NewValidator()
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("failed to build request validator: %w", err)
	}

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. ルーター
	limiter := middleware.NewRateLimiter(middleware.AuthRateLimiterConfig(cfg.RateLimitAuth))
	router, err := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionResolver:   sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		HSTS:              cfg.CookieSecure,
		AuthService:       authService,
		Sessions:          sessions,
		Validator:         validator,
		Cookie: handler.CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
			MaxAge: cfg.SessionMaxAgeSeconds(),
		},
		Recorder: collector,
		Gatherer: registry,
		Pingers:  stores.Pingers,
	})
	if err != nil {
		limiter.Stop()
		_ = stores.Close()
		return nil, err
	}

	job := cleanup.NewCleanupJob(stores.Sessions, slog.Default(), collector)
	job.Interval = cfg.SessionCleanupInterval

	return &Server{
		HTTP: &http.Server{
			Addr:              cfg.Host,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		stores:  stores,
		limiter: limiter,
		cleanup: job,
	}, nil
}

// Run はctxがキャンセルされるまでHTTPサーバーとセッションクリーンアップを実行し、
// その後グレースフルシャットダウンして資源を解放する。
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		s.cleanup.Start(cleanupCtx)
	}()
	defer func() {
		cancelCleanup()
		<-cleanupDone
	}()

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", slog.String("addr", s.HTTP.Addr))
		if err := s.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err, ok := <-listenErr:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.HTTP.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func (s *Server) close() {
	s.limiter.Stop()
	if err := s.stores.Close(); err != nil {
		slog.Error("failed to close stores", slog.String("error", err.Error()))
	}
}

// runServe はHTTPサーバーモードで起動する。
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// runWorker は期限切れセッションの削除だけを行うワーカーモードで起動する。
// ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			slog.Error("failed to close stores", slog.String("error", err.Error()))
		}
	}()

	job := cleanup.NewCleanupJob(stores.Sessions, slog.Default(), nil)
	job.Interval = cfg.SessionCleanupInterval

	slog.Info("worker starting", slog.Duration("interval", job.Interval))
	job.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。Postgres以外のバックエンドでは何もしない。
func runMigrate(cfg *config.Config) error {
	backend, err := cfg.DatabaseBackend()
	if err != nil {
		return err
	}
	if backend != config.BackendPostgres {
		slog.Info("no migrations for backend", slog.String("backend", string(backend)))
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, host string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthcheckURL(host), nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckURL はHOST（":3000" や "0.0.0.0:3000"）からローカルの/health URLを組み立てる。
func healthcheckURL(host string) string {
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return "http://" + host + "/health"
	}
	if h == "" || h == "0.0.0.0" || h == "::" {
		h = "localhost"
	}
	return "http://" + net.JoinHostPort(h, port) + "/health"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
