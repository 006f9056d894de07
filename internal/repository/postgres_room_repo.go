package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/murmur/internal/model"
)

// PostgresRoomRepo はPostgreSQLを使用したルームリポジトリ。
type PostgresRoomRepo struct {
	db *sql.DB
}

// NewPostgresRoomRepo はPostgresRoomRepoを生成する。
func NewPostgresRoomRepo(db *sql.DB) *PostgresRoomRepo {
	return &PostgresRoomRepo{db: db}
}

// FindByID は指定IDのルームを取得する。見つからない場合はnilを返す。
func (r *PostgresRoomRepo) FindByID(ctx context.Context, id string) (*model.Room, error) {
	room := &model.Room{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, is_public, created_at FROM rooms WHERE id = $1`,
		id,
	).Scan(&room.ID, &room.Name, &room.IsPublic, &room.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find room by ID: %w", err)
	}

	return room, nil
}

// Create はルームを作成する。
func (r *PostgresRoomRepo) Create(ctx context.Context, room *model.Room) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, is_public, created_at)
		 VALUES ($1, $2, $3, $4)`,
		room.ID, room.Name, room.IsPublic, room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// ListByUserID はユーザーがプロフィールを持つルームの一覧をID順で返す。
func (r *PostgresRoomRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.is_public, r.created_at
		 FROM rooms r
		 INNER JOIN profiles p ON p.room_id = r.id
		 WHERE p.user_id = $1
		 ORDER BY r.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms by user: %w", err)
	}
	defer rows.Close()

	var rooms []*model.Room
	for rows.Next() {
		room := &model.Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.IsPublic, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}

	return rooms, nil
}

// compile-time interface check
var _ RoomRepository = (*PostgresRoomRepo)(nil)
