package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost は対話的なログインの待ち時間として許容できるコスト。
const DefaultBcryptCost = 10

// ErrPasswordTooLong はbcryptが扱える72バイトを超えるパスワードを示す。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// PasswordHasher は平文パスワードの一方向ハッシュ化と照合のインターフェース。
type PasswordHasher interface {
	// Hash はランダムなソルト付きのハッシュを生成する。
	// 同じ平文でも呼び出しごとに異なる値になる。
	Hash(plaintext string) (string, error)

	// Verify は平文がハッシュと一致するかを返す。
	// ハッシュの形式が不正な場合はエラーではなくfalseを返す。
	Verify(plaintext, hash string) bool
}

// BcryptHasher はbcryptによるPasswordHasherの実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。
// costが範囲外の場合はDefaultBcryptCostを使う。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash はパスワードをbcryptでハッシュ化する。
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify はbcryptの定数時間比較でパスワードを照合する。
func (h *BcryptHasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Cost は設定されているbcryptコストを返す。
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// compile-time interface check
var _ PasswordHasher = (*BcryptHasher)(nil)
