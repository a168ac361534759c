// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// 認証プロバイダ名。
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// User はサービス利用ユーザーを表す。
// OAuthのみで登録したユーザーはPasswordHashがnilになる。
type User struct {
	ID           int64
	FullName     *string
	Email        *string
	PasswordHash *string
	Provider     *string
	ProviderID   *string
	AvatarURL    *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin は管理者ロールかどうかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasPassword はパスワードが設定されているかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// DisplayName は通知などに表示する名前を返す。氏名がなければメールアドレスを使う。
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return Deref(u.Email)
}

// Deref はnil安全に文字列ポインタを展開する。
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr は文字列のポインタを返す。空文字はnilとして扱う。
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UserFilter は管理画面のユーザー一覧検索条件を表す。
type UserFilter struct {
	Search    string
	LoginType string // "email" | "google" | ""
	DateFrom  *time.Time
	DateTo    *time.Time
	SortBy    string // "id" | "full_name" | "email" | "created_at"
	SortDesc  bool
	Page      int
	Limit     int
}

// UserStats はユーザー統計を表す。
type UserStats struct {
	TotalUsers  int
	EmailUsers  int
	GoogleUsers int
	AdminUsers  int
}
