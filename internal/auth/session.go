package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/passgate/internal/model"
	"github.com/hitoshi/passgate/internal/repository"
)

// ErrInvalidSessionToken はセッションCookieの署名または形式が不正であることを示す。
var ErrInvalidSessionToken = errors.New("invalid session token")

// SessionConfig はセッション管理の設定。
type SessionConfig struct {
	MaxAge time.Duration // セッション有効期間
	Secret []byte        // Cookie署名鍵（HS256）
}

// SessionManager はセッションの発行、解決、破棄を行う。
// セッションにはidentity reference（メールアドレス）のみを保存する。
type SessionManager struct {
	repo   repository.SessionRepository
	config SessionConfig
	now    func() time.Time
}

// NewSessionManager はSessionManagerを生成する。
func NewSessionManager(repo repository.SessionRepository, config SessionConfig) *SessionManager {
	return &SessionManager{
		repo:   repo,
		config: config,
		now:    time.Now,
	}
}

// MaxAge はセッションの有効期間を返す。
func (m *SessionManager) MaxAge() time.Duration {
	return m.config.MaxAge
}

// Create はidentity referenceに紐づくセッションを作成し永続化する。
func (m *SessionManager) Create(ctx context.Context, email string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := m.now()
	session := &model.Session{
		ID:        sessionID,
		Email:     email,
		ExpiresAt: now.Add(m.config.MaxAge),
		CreatedAt: now,
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w: %w", model.ErrStoreUnavailable, err)
	}

	return session, nil
}

// Resolve はセッションIDからセッションを取得する。
// 存在しないか期限切れの場合はnilを返す。
func (m *SessionManager) Resolve(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := m.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w: %w", model.ErrStoreUnavailable, err)
	}
	if session == nil || session.Expired(m.now()) {
		return nil, nil
	}
	return session, nil
}

// Destroy はセッションを破棄する。存在しないセッションに対してもエラーにしない。
func (m *SessionManager) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := m.repo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w: %w", model.ErrStoreUnavailable, err)
	}

	slog.Info("session destroyed", slog.String("session_id", shortID(sessionID)))
	return nil
}

// SignCookie はセッションIDを署名付きトークンにしてCookie値を生成する。
// jtiにセッションID、expにセッションの有効期限を設定する。
func (m *SessionManager) SignCookie(session *model.Session) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        session.ID,
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
	})

	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return signed, nil
}

// ParseCookie はCookie値の署名と有効期限を検証し、セッションIDを返す。
func (m *SessionManager) ParseCookie(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(value, claims,
		func(t *jwt.Token) (interface{}, error) {
			return m.config.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSessionToken, err)
	}
	if !token.Valid || claims.ID == "" {
		return "", ErrInvalidSessionToken
	}

	return claims.ID, nil
}

// ResolveCookie はCookie値からセッションを解決する。
// 署名が不正なCookieはセッションなしとして扱う。
func (m *SessionManager) ResolveCookie(ctx context.Context, value string) (*model.Session, error) {
	if value == "" {
		return nil, nil
	}

	sessionID, err := m.ParseCookie(value)
	if err != nil {
		slog.Debug("session cookie rejected", slog.String("error", err.Error()))
		return nil, nil
	}
	return m.Resolve(ctx, sessionID)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// shortID はログ出力用にセッションIDの先頭のみを返す。
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
