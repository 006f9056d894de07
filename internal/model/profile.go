// Package model はドメインモデルを定義する。
package model

import "time"

// Profile はルームごとのユーザーの仮名を表す。
// 同一ユーザーでもルームが異なれば別のプロフィールを持ち、
// ルームをまたいだ同一性は露出しない。
type Profile struct {
	ID        string
	UserID    string
	RoomID    string
	Handle    string // ルーム内で一意な機械的ハンドル
	Alias     string // 表示名（IdPの表示名または自動生成）
	CreatedAt time.Time
}
