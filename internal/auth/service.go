// Package auth はユーザー登録、パスワード認証、セッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/passgate/internal/model"
	"github.com/hitoshi/passgate/internal/repository"
	"github.com/hitoshi/passgate/internal/security"
)

// ErrEmptyName はサニタイズ後の表示名が空になったことを示す。
var ErrEmptyName = errors.New("name is empty")

// timingEqualizerPassword は未登録メールアドレスの認証でも照合コストを払うためのダミー平文。
const timingEqualizerPassword = "passgate-timing-equalizer"

// RejectReason は認証が拒否された理由を表す。
// ログ用であり、クライアントへのレスポンスでは区別しない。
type RejectReason string

const (
	RejectNone         RejectReason = ""
	RejectUserNotFound RejectReason = "user-not-found"
	RejectBadPassword  RejectReason = "bad-password"
)

// AuthResult は認証結果を表す。
type AuthResult struct {
	Authenticated bool
	Email         string
	Reason        RejectReason
}

// Service はユーザー登録と認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	hasher    security.PasswordHasher
	sanitizer security.NameSanitizer
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	hasher security.PasswordHasher,
	sanitizer security.NameSanitizer,
) *Service {
	return &Service{
		userRepo:  userRepo,
		hasher:    hasher,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Register はユーザーを登録する。
// 同じメールアドレスが既に存在する場合はmodel.ErrEmailAlreadyRegisteredを返す。
// 事前確認をすり抜けた同時登録はストアの一意制約で検出し、同じエラーに変換する。
func (s *Service) Register(ctx context.Context, name, email, password string) error {
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w: %w", model.ErrStoreUnavailable, err)
	}
	if existing != nil {
		return model.ErrEmailAlreadyRegistered
	}

	displayName := s.sanitizer.Sanitize(name)
	if displayName == "" {
		return ErrEmptyName
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Name:         displayName,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.ErrEmailAlreadyRegistered
		}
		return fmt.Errorf("failed to create user: %w: %w", model.ErrStoreUnavailable, err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return nil
}

// Authenticate はメールアドレスとパスワードでユーザーを認証する。
// 認証失敗はエラーではなくAuthResultの拒否理由として返す。
// ストアへのアクセス失敗のみエラーを返し、リトライはしない。
func (s *Service) Authenticate(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("failed to find user: %w: %w", model.ErrStoreUnavailable, err)
	}
	if user == nil {
		// 応答時間から登録済みメールアドレスを推測されないよう、ダミーハッシュと照合する
		s.hasher.Verify(password, s.dummyPasswordHash())
		return AuthResult{Reason: RejectUserNotFound}, nil
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return AuthResult{Reason: RejectBadPassword}, nil
	}

	return AuthResult{Authenticated: true, Email: user.Email}, nil
}

// dummyPasswordHash は同じハッシャー（同じコスト）で生成したダミーハッシュを返す。
// 初回の未登録メールアドレスでの認証時に1度だけ生成する。
func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(timingEqualizerPassword)
		if err != nil {
			slog.Warn("failed to build dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// CurrentUser はセッションのidentity referenceからユーザーを再取得する。
// ユーザーが存在しない場合はnilを返す。
func (s *Service) CurrentUser(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w: %w", model.ErrStoreUnavailable, err)
	}
	return user, nil
}
