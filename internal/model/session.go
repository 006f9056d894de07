// Package model はドメインモデルを定義する。
package model

import "time"

// PendingAuth は進行中のOAuth認証フローの状態を表す。
// ログイン開始時にセッションへ保存し、コールバック処理で検証に使用する。
type PendingAuth struct {
	Provider     string `json:"provider"`
	CSRFState    string `json:"csrf_state"`
	PKCEVerifier string `json:"pkce_verifier"`
	ReturnURL    string `json:"return_url"`
}

// SessionData はセッションに紐づく型付きデータを表す。
// 匿名セッションではUserIDが空となり、ログイン完了時に設定される。
type SessionData struct {
	Pending     *PendingAuth `json:"pending,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	DisplayName string       `json:"display_name,omitempty"`
}

// Session はブラウザに紐づくサーバーサイドセッションを表す。
// 有効期限はアクセスのたびに延長されるスライディング方式。
type Session struct {
	ID        string
	Data      SessionData
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsAuthenticated はセッションがログイン済みかどうかを返す。
func (s *Session) IsAuthenticated() bool {
	return s.Data.UserID != ""
}
