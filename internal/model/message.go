// Package model はドメインモデルを定義する。
package model

import "time"

// Message は永続化されたチャットメッセージを表す。
// IDはUUIDv7で時系列順序を持ち、ルーム内の表示順はID順と一致する。
// Contentは生のMarkdownテキストのまま保持する（HTMLへの変換はクライアント側の責務）。
type Message struct {
	ID        string
	RoomID    string
	ProfileID string
	ReplyToID *string
	Content   string
	CreatedAt time.Time
}

// MessageView は投稿者情報と返信プレビューを結合した表示用メッセージ。
// 一覧取得とライブ配信の両方で同じ形を使用する。
type MessageView struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"room_id"`
	ProfileID    string    `json:"profile_id"`
	Handle       string    `json:"handle"`
	Alias        string    `json:"alias"`
	ReplyToID    *string   `json:"reply_to_id,omitempty"`
	ReplyPreview string    `json:"reply_preview,omitempty"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}
