// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Emailはユーザーを一意に識別する（大文字小文字は保存された値のまま区別する）。
// PasswordHashは平文パスワードではなくハッシュ値のみを保持する。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// Emailはユーザーを再取得するための最小限の識別子（identity reference）であり、
// ユーザー情報全体やパスワードハッシュはセッションに含めない。
type Session struct {
	ID        string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが指定時刻の時点で期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
