package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/socialauth/internal/model"
)

const notificationColumns = `id, user_id, title, body, type, data, is_read, for_admins, created_at, updated_at`

// PostgresNotificationRepo はPostgreSQLを使用した通知リポジトリ。
// dataカラムはJSONBで保存する。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

func scanNotification(row rowScanner) (*model.Notification, error) {
	n := &model.Notification{}
	var typ string
	var data []byte
	if err := row.Scan(
		&n.ID, &n.UserID, &n.Title, &n.Body, &typ, &data,
		&n.IsRead, &n.ForAdmins, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	n.Type = model.NotificationType(typ)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("failed to decode notification data: %w", err)
		}
	}
	return n, nil
}

// scopeWhere は受信箱の範囲条件を返す。
func scopeWhere(scope InboxScope) (string, []any) {
	if scope.ForAdmins {
		return "for_admins = true", nil
	}
	return "user_id = $1", []any{scope.UserID}
}

// Create は通知を作成する。
func (r *PostgresNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	// lib/pqは[]byteをbyteaとして送るため、JSONBには文字列で渡す
	var data sql.NullString
	if n.Data != nil {
		b, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("failed to encode notification data: %w", err)
		}
		data = sql.NullString{String: string(b), Valid: true}
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, title, body, type, data, is_read, for_admins)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		n.UserID, n.Title, n.Body, string(n.Type), data, n.IsRead, n.ForAdmins,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// FindByID は指定IDの通知を取得する。見つからない場合はnilを返す。
func (r *PostgresNotificationRepo) FindByID(ctx context.Context, id int64) (*model.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find notification by ID: %w", err)
	}
	return n, nil
}

// List は受信箱の通知をcreated_at降順で返す。
func (r *PostgresNotificationRepo) List(ctx context.Context, scope InboxScope, offset, limit int) ([]*model.Notification, int, error) {
	where, args := scopeWhere(scope)

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM notifications WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			notificationColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var list []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return list, total, nil
}

// CountUnread は受信箱の未読件数を返す。
func (r *PostgresNotificationRepo) CountUnread(ctx context.Context, scope InboxScope) (int, error) {
	where, args := scopeWhere(scope)
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM notifications WHERE is_read = false AND `+where, args...,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead は指定IDの通知を既読にする。
func (r *PostgresNotificationRepo) MarkRead(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = true, updated_at = now() WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

// MarkAllRead は受信箱の未読通知をすべて既読にする。
func (r *PostgresNotificationRepo) MarkAllRead(ctx context.Context, scope InboxScope) (int64, error) {
	where, args := scopeWhere(scope)
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = true, updated_at = now() WHERE is_read = false AND `+where, args...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications as read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
