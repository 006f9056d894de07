// Package model はドメインモデルを定義する。
package model

import "time"

// Room はチャットルームを表す。
// IsPublicがtrueの場合は誰でも閲覧でき、書き込みでプロフィールが自動作成される。
// falseの場合は既存プロフィールを持つメンバーのみ閲覧・書き込みできる。
type Room struct {
	ID        string
	Name      string
	IsPublic  bool
	CreatedAt time.Time
}

// WriteDecision はルームへの書き込み可否の判定結果を表す。
type WriteDecision int

const (
	// WriteDenied は書き込みが拒否されたことを示す。
	WriteDenied WriteDecision = iota
	// WriteAsExisting は既存プロフィールで書き込み可能なことを示す。
	WriteAsExisting
	// WriteAsNewProfile はプロフィールの自動作成を伴って書き込み可能なことを示す。
	// 公開ルームへの初回投稿で発生する。
	WriteAsNewProfile
)
