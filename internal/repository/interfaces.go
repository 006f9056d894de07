// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/murmur/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	// 取得に成功した場合、有効期限をアイドルタイムアウト分だけ延長する（スライディング方式）。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// Save はセッションのデータを上書き保存する。
	Save(ctx context.Context, session *model.Session) error

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// RoomRepository はルームデータの永続化インターフェース。
type RoomRepository interface {
	// FindByID は指定IDのルームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Room, error)

	// Create はルームを作成する。
	Create(ctx context.Context, room *model.Room) error

	// ListByUserID はユーザーがプロフィールを持つルームの一覧をID順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Room, error)
}

// ProfileRepository はルームごとのプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// FindByUserAndRoom はユーザーIDとルームIDでプロフィールを検索する。
	// 見つからない場合はnilを返す。
	FindByUserAndRoom(ctx context.Context, userID, roomID string) (*model.Profile, error)

	// Create はプロフィールを作成する。
	// (user_id, room_id) の一意制約違反はそのままエラーとして返す。
	// 呼び出し側で一意制約違反を検出して既存行の再取得を行うこと。
	Create(ctx context.Context, profile *model.Profile) error
}

// MessageWithAuthor はメッセージに投稿者情報と返信先本文を結合した構造体。
type MessageWithAuthor struct {
	model.Message
	Handle       string
	Alias        string
	ReplyContent *string
}

// MessageRepository はメッセージデータの永続化インターフェース。
type MessageRepository interface {
	// Create はメッセージを作成する。
	Create(ctx context.Context, message *model.Message) error

	// FindByIDInRoom は指定ルーム内のメッセージを取得する。
	// 他ルームのメッセージIDを指定した場合もnilを返す。
	FindByIDInRoom(ctx context.Context, roomID, id string) (*model.Message, error)

	// ListByRoom はルームの全メッセージを投稿者情報付きでID昇順に返す。
	// IDはUUIDv7のため、ID順は投稿順と一致する。
	// スナップショットと再同期の復旧経路であるため、件数の上限は設けない。
	ListByRoom(ctx context.Context, roomID string) ([]MessageWithAuthor, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
