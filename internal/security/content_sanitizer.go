// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はIdP由来の表示名などサードパーティ入力から
// HTMLタグを除去し、XSS攻撃からユーザーを保護する。
// bluemondayライブラリのStrictPolicyを使用し、全てのタグを除去して
// プレーンテキストのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキストサニタイズ機能のインターフェースを定義する。
// プロフィールの別名保存前および返信プレビュー生成時に使用される。
type TextSanitizerService interface {
	// Sanitize は入力から全てのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白は除去される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグを一切持たないため、scriptタグやon*イベント属性を
// 含む全てのマークアップが除去される。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力から全てのHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
