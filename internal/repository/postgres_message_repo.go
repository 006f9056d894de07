package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/murmur/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Create はメッセージを作成する。
func (r *PostgresMessageRepo) Create(ctx context.Context, message *model.Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, profile_id, reply_to_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		message.ID, message.RoomID, message.ProfileID, message.ReplyToID, message.Content, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// FindByIDInRoom は指定ルーム内のメッセージを取得する。
// 他ルームのメッセージIDを指定した場合もnilを返す。
func (r *PostgresMessageRepo) FindByIDInRoom(ctx context.Context, roomID, id string) (*model.Message, error) {
	message := &model.Message{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, room_id, profile_id, reply_to_id, content, created_at
		 FROM messages WHERE id = $1 AND room_id = $2`,
		id, roomID,
	).Scan(&message.ID, &message.RoomID, &message.ProfileID, &message.ReplyToID, &message.Content, &message.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message in room: %w", err)
	}

	return message, nil
}

// ListByRoom はルームの全メッセージを投稿者情報付きでID昇順に返す。
// 返信先の本文はLEFT JOINで取得し、プレビューへの切り詰めはサービス層で行う。
func (r *PostgresMessageRepo) ListByRoom(ctx context.Context, roomID string) ([]MessageWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.room_id, m.profile_id, m.reply_to_id, m.content, m.created_at,
		        p.handle, p.alias, rm.content
		 FROM messages m
		 INNER JOIN profiles p ON p.id = m.profile_id
		 LEFT JOIN messages rm ON rm.id = m.reply_to_id AND rm.room_id = m.room_id
		 WHERE m.room_id = $1
		 ORDER BY m.id`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []MessageWithAuthor
	for rows.Next() {
		var m MessageWithAuthor
		if err := rows.Scan(
			&m.ID, &m.RoomID, &m.ProfileID, &m.ReplyToID, &m.Content, &m.CreatedAt,
			&m.Handle, &m.Alias, &m.ReplyContent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
