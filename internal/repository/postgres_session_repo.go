package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/murmur/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// セッションデータはjsonbカラムに格納し、有効期限はスライディング方式で管理する。
type PostgresSessionRepo struct {
	db          *sql.DB
	idleTimeout time.Duration
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
// idleTimeoutはアクセスのたびに延長されるセッションの有効期間を指定する。
func NewPostgresSessionRepo(db *sql.DB, idleTimeout time.Duration) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db, idleTimeout: idleTimeout}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, data, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, data, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
// 有効なセッションの有効期限は同一ステートメント内で延長される。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var data []byte

	err := r.db.QueryRowContext(ctx,
		`UPDATE sessions
		 SET expires_at = now() + make_interval(secs => $2)
		 WHERE id = $1 AND expires_at > now()
		 RETURNING id, data, expires_at, created_at`,
		id, r.idleTimeout.Seconds(),
	).Scan(&session.ID, &data, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if err := json.Unmarshal(data, &session.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	return session, nil
}

// Save はセッションのデータを上書き保存する。
func (r *PostgresSessionRepo) Save(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE sessions SET data = $2 WHERE id = $1`,
		session.ID, data,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
