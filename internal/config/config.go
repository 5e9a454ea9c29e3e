// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend はユーザーストアの種類を表す。
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongo"
	BackendMemory   Backend = "memory"
)

// セッションストアの指定値。
const (
	SessionStoreDatabase = "database" // ユーザーストアと同じバックエンド
	SessionStoreRedis    = "redis"
	SessionStoreMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS"     envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS"     envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME"  envDefault:"30m"`

	// Session
	SessionSecret          string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionStore           string        `env:"SESSION_STORE"            envDefault:"database"`
	SessionMaxAge          time.Duration `env:"SESSION_MAX_AGE"          envDefault:"24h"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`
	RedisURL               string        `env:"REDIS_URL"                envDefault:"redis://localhost:6379/0"`

	// Password hashing
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	// Server
	Host string `env:"HOST" envDefault:":3000"`

	// Cookie
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Rate Limit（POST /login, /register のIPごとの1分あたり上限）
	RateLimitAuth int `env:"RATE_LIMIT_AUTH" envDefault:"20"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// 既に設定済みの環境変数は.envの値で上書きしない。
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.Host = NormalizeHost(cfg.Host)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は読み込んだ値の整合性を検証する。
func (c *Config) Validate() error {
	var problems []string

	if _, err := c.DatabaseBackend(); err != nil {
		problems = append(problems, err.Error())
	}

	switch c.SessionStore {
	case SessionStoreDatabase, SessionStoreRedis, SessionStoreMemory:
	default:
		problems = append(problems, fmt.Sprintf("SESSION_STORE must be one of database, redis, memory: got %q", c.SessionStore))
	}

	if c.SessionMaxAge <= 0 {
		problems = append(problems, "SESSION_MAX_AGE must be positive")
	}
	if c.SessionCleanupInterval <= 0 {
		problems = append(problems, "SESSION_CLEANUP_INTERVAL must be positive")
	}
	// bcryptのコストは4〜31の範囲
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		problems = append(problems, fmt.Sprintf("BCRYPT_COST must be between 4 and 31: got %d", c.BcryptCost))
	}
	if c.DBMaxOpenConns < 0 || c.DBMaxIdleConns < 0 {
		problems = append(problems, "DB_MAX_OPEN_CONNS and DB_MAX_IDLE_CONNS must not be negative")
	}
	if c.RateLimitAuth <= 0 {
		problems = append(problems, "RATE_LIMIT_AUTH must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DatabaseBackend はDATABASE_URLのスキームからユーザーストアの種類を判定する。
func (c *Config) DatabaseBackend() (Backend, error) {
	// MongoDBの複数ホスト指定はnet/urlで解析できないため、スキームのみを見る
	scheme, _, ok := strings.Cut(c.DatabaseURL, "://")
	if !ok {
		return "", fmt.Errorf("DATABASE_URL must include a scheme")
	}

	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "mongodb", "mongodb+srv":
		return BackendMongo, nil
	case "memory":
		return BackendMemory, nil
	default:
		return "", fmt.Errorf("DATABASE_URL has unsupported scheme %q", scheme)
	}
}

// SessionMaxAgeSeconds はCookieのMax-Ageに使う秒数を返す。
func (c *Config) SessionMaxAgeSeconds() int {
	return int(c.SessionMaxAge / time.Second)
}

// NormalizeHost はHOSTにポート番号だけが指定された場合に":"を補う。
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ":3000"
	}
	if _, err := strconv.Atoi(host); err == nil {
		return ":" + host
	}
	return host
}
