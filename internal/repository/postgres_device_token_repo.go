package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/socialauth/internal/model"
)

// PostgresDeviceTokenRepo はPostgreSQLを使用した端末トークンリポジトリ。
type PostgresDeviceTokenRepo struct {
	db *sql.DB
}

// NewPostgresDeviceTokenRepo はPostgresDeviceTokenRepoを生成する。
func NewPostgresDeviceTokenRepo(db *sql.DB) *PostgresDeviceTokenRepo {
	return &PostgresDeviceTokenRepo{db: db}
}

// Upsert は(user_id, token)をキーにトークンを登録する。
// 無効化済みのトークンが再登録された場合も有効に戻す。
func (r *PostgresDeviceTokenRepo) Upsert(ctx context.Context, token *model.DeviceToken) error {
	if token.DeviceType == "" {
		token.DeviceType = model.DeviceTypeWeb
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO device_tokens (user_id, token, device_type, device_name, is_active, last_used_at)
		 VALUES ($1, $2, $3, $4, true, now())
		 ON CONFLICT (user_id, token) DO UPDATE SET
			device_type = EXCLUDED.device_type,
			device_name = EXCLUDED.device_name,
			is_active = true,
			last_used_at = now(),
			updated_at = now()
		 RETURNING id, is_active, last_used_at, created_at, updated_at`,
		token.UserID, token.Token, token.DeviceType, token.DeviceName,
	).Scan(&token.ID, &token.IsActive, &token.LastUsedAt, &token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert device token: %w", err)
	}
	return nil
}

// Delete は指定ユーザーのトークンを削除する。該当行がなくてもエラーにしない。
func (r *PostgresDeviceTokenRepo) Delete(ctx context.Context, userID int64, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM device_tokens WHERE user_id = $1 AND token = $2`,
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete device token: %w", err)
	}
	return nil
}

// ListActiveByUser は指定ユーザーの有効なトークンを返す。
func (r *PostgresDeviceTokenRepo) ListActiveByUser(ctx context.Context, userID int64) ([]*model.DeviceToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, token, device_type, device_name, is_active, last_used_at, created_at, updated_at
		 FROM device_tokens
		 WHERE user_id = $1 AND is_active = true
		 ORDER BY last_used_at DESC NULLS LAST, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*model.DeviceToken
	for rows.Next() {
		t := &model.DeviceToken{}
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Token, &t.DeviceType, &t.DeviceName,
			&t.IsActive, &t.LastUsedAt, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device tokens: %w", err)
	}
	return tokens, nil
}

// ListActiveAdminTokens は管理者ユーザーの有効なトークン文字列を返す。
// 同じトークンが複数の管理者に登録されていても1度だけ返す。
func (r *PostgresDeviceTokenRepo) ListActiveAdminTokens(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT dt.token
		 FROM device_tokens dt
		 JOIN users u ON u.id = dt.user_id
		 WHERE u.role = 'admin' AND dt.is_active = true
		 ORDER BY dt.token`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan admin device token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate admin device tokens: %w", err)
	}
	return tokens, nil
}

// Deactivate は指定トークンをis_active=falseにする。
func (r *PostgresDeviceTokenRepo) Deactivate(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE device_tokens SET is_active = false, updated_at = now()
		 WHERE token = ANY($1) AND is_active = true`,
		pq.Array(tokens),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate device tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ DeviceTokenRepository = (*PostgresDeviceTokenRepo)(nil)
