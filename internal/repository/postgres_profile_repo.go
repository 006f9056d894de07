package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/murmur/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = pq.ErrorCode("23505")

// IsUniqueViolation はエラーが一意制約違反かどうかを判定する。
// プロフィールの同時作成競合の検出に使用する。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == uniqueViolation
}

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	profile := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, room_id, handle, alias, created_at
		 FROM profiles WHERE id = $1`,
		id,
	).Scan(&profile.ID, &profile.UserID, &profile.RoomID, &profile.Handle, &profile.Alias, &profile.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}

	return profile, nil
}

// FindByUserAndRoom はユーザーIDとルームIDでプロフィールを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserAndRoom(ctx context.Context, userID, roomID string) (*model.Profile, error) {
	profile := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, room_id, handle, alias, created_at
		 FROM profiles WHERE user_id = $1 AND room_id = $2`,
		userID, roomID,
	).Scan(&profile.ID, &profile.UserID, &profile.RoomID, &profile.Handle, &profile.Alias, &profile.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by user and room: %w", err)
	}

	return profile, nil
}

// Create はプロフィールを作成する。
// 一意制約違反はラップせずに返し、呼び出し側がIsUniqueViolationで検出できるようにする。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, user_id, room_id, handle, alias, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		profile.ID, profile.UserID, profile.RoomID, profile.Handle, profile.Alias, profile.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
