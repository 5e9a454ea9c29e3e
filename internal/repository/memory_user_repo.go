package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/passgate/internal/model"
)

// MemoryUserRepo はプロセス内メモリを使用したユーザーリポジトリ。
// テストとローカル開発（DATABASE_URL=memory://）で使用する。
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byEmail map[string]model.User
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byEmail: make(map[string]model.User),
	}
}

// FindByEmail は指定メールアドレスのユーザーのコピーを返す。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// Create はユーザーを作成する。確認と挿入は同じロック内で行う。
func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return ErrDuplicateEmail
	}
	r.byEmail[user.Email] = *user
	return nil
}

// Count は保存されているユーザー数を返す。テスト用。
func (r *MemoryUserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEmail)
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)
