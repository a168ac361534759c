// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/socialauth/internal/model"
)

// ErrDuplicateEmail はメールアドレスのユニーク制約違反を表す。
var ErrDuplicateEmail = errors.New("email already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDとタイムスタンプを設定する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はprovider、provider_id、avatar_url、full_nameを更新する。
	// password_hashは変更しない。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdateRole はユーザーのロールを更新する。
	UpdateRole(ctx context.Context, id int64, role model.Role) error

	// List は検索条件に一致するユーザーと総件数を返す。
	List(ctx context.Context, filter model.UserFilter) ([]*model.User, int, error)

	// Stats はユーザー数の集計を返す。
	Stats(ctx context.Context) (*model.UserStats, error)
}

// DeviceTokenRepository はプッシュ通知用端末トークンの永続化インターフェース。
type DeviceTokenRepository interface {
	// Upsert は(user_id, token)をキーにトークンを登録する。
	// 既存行があってもis_active=true、last_used_at=現在時刻に更新する。
	Upsert(ctx context.Context, token *model.DeviceToken) error

	// Delete は指定ユーザーのトークンを削除する。
	Delete(ctx context.Context, userID int64, token string) error

	// ListActiveByUser は指定ユーザーの有効なトークンを返す。
	ListActiveByUser(ctx context.Context, userID int64) ([]*model.DeviceToken, error)

	// ListActiveAdminTokens はロールがadminのユーザーが持つ有効なトークン文字列を返す。
	ListActiveAdminTokens(ctx context.Context) ([]string, error)

	// Deactivate は指定トークンをis_active=falseにする。行は削除しない。
	// 更新した行数を返す。
	Deactivate(ctx context.Context, tokens []string) (int64, error)
}

// NotificationRepository は通知レコードの永続化インターフェース。
type NotificationRepository interface {
	// Create は通知を作成し、採番されたIDとタイムスタンプを設定する。
	Create(ctx context.Context, n *model.Notification) error

	// FindByID は指定IDの通知を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Notification, error)

	// List は受信箱の通知をcreated_at降順で返す。総件数も返す。
	List(ctx context.Context, scope InboxScope, offset, limit int) ([]*model.Notification, int, error)

	// CountUnread は受信箱の未読件数を返す。
	CountUnread(ctx context.Context, scope InboxScope) (int, error)

	// MarkRead は指定IDの通知を既読にする。
	MarkRead(ctx context.Context, id int64) error

	// MarkAllRead は受信箱の未読通知をすべて既読にし、更新件数を返す。
	MarkAllRead(ctx context.Context, scope InboxScope) (int64, error)
}

// InboxScope は受信箱の対象範囲を表す。
// ForAdminsがtrueの場合は管理者向け通知、falseの場合はUserID宛ての通知を対象とする。
type InboxScope struct {
	ForAdmins bool
	UserID    int64
}
