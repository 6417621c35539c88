// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizerService はプロフィール文字列のサニタイズ機能の
// インターフェースを定義する。Telegramクレーム由来の表示名はユーザーが
// 自由に設定できるため、保存前にHTMLをすべて除去する。
type ProfileSanitizerService interface {
	// SanitizeName は表示名からHTMLタグをすべて除去し、前後の空白を
	// 取り除いた文字列を返す。同一入力に対して常に同一出力を返す（冪等）。
	SanitizeName(raw string) string
}

// profileSanitizer はProfileSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type profileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerServiceの新しいインスタンスを生成する。
func NewProfileSanitizer() *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeName は表示名からHTMLタグをすべて除去する。
func (s *profileSanitizer) SanitizeName(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
