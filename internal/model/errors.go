// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ドメイン共通のセンチネルエラー。
var (
	// ErrEmailAlreadyRegistered は同じメールアドレスのユーザーが既に存在することを示す。
	ErrEmailAlreadyRegistered = errors.New("email already registered")

	// ErrStoreUnavailable はユーザーストアまたはセッションストアへのアクセスに失敗したことを示す。
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSessionAbsent はリクエストに有効なセッションがないことを示す。
	ErrSessionAbsent = errors.New("session absent")
)

// APIError は統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeRegisterFailed     = "REGISTER_FAILED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// NewValidationError はリクエストボディがスキーマに一致しない場合のエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("Invalid request body: %s", reason),
		Category: "validation",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "There is a User registered with this email already",
		Category: "validation",
	}
}

// NewRegisterFailedError はユーザー登録の保存失敗エラーを生成する。
func NewRegisterFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRegisterFailed,
		Message:  "Failed to register User",
		Category: "system",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Wrong credentials",
		Category: "auth",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: "auth",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、レスポンスには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
	}
}
