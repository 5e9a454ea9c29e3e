// Package security はパスワードハッシュ化と入力サニタイズを提供する。
//
// NameSanitizer はユーザーが登録時に入力した表示名からHTMLを取り除き、
// 画面表示時のXSSを防ぐ。bluemondayのStrictPolicyを使用し、
// すべてのタグと属性を除去したプレーンテキストのみを残す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizer は表示名のサニタイズ機能のインターフェースを定義する。
type NameSanitizer interface {
	// Sanitize はタグを除去し、前後の空白を取り除いた表示名を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(name string) string
}

// nameSanitizer はNameSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerの新しいインスタンスを生成する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名からHTMLを除去する。
// bluemondayはテキストをエスケープして返すため、保存用にアンエスケープする。
// 表示時のエスケープはhtml/templateが行う。
func (s *nameSanitizer) Sanitize(name string) string {
	cleaned := s.policy.Sanitize(name)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
