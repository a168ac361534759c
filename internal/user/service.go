// Package user は管理者向けのユーザー管理（一覧・統計・権限変更・エクスポート）を提供する。
package user

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/hitoshi/socialauth/internal/auth"
	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/model"
	"github.com/hitoshi/socialauth/internal/repository"
)

const (
	// DefaultPageSize は一覧の1ページあたりの既定件数。
	DefaultPageSize = 10
	maxPageSize     = 100
)

// sortableColumns は一覧で並べ替えに使えるカラム。
var sortableColumns = map[string]bool{
	"id":         true,
	"full_name":  true,
	"email":      true,
	"created_at": true,
}

// Page はユーザー一覧の1ページ分。
type Page struct {
	Users       []*model.User
	Total       int
	CurrentPage int
	LastPage    int
	PerPage     int
}

// Service はユーザー管理のサービス層。
type Service struct {
	users  repository.UserRepository
	events event.Publisher
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// eventsがnilの場合はエクスポートのイベントを発行しない。
func NewService(users repository.UserRepository, events event.Publisher) *Service {
	if events == nil {
		events = event.NopPublisher
	}
	return &Service{users: users, events: events, now: time.Now}
}

// normalizeFilter はページングと並び順の既定値を補う。
func normalizeFilter(filter model.UserFilter) model.UserFilter {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if !sortableColumns[filter.SortBy] {
		filter.SortBy = "created_at"
		filter.SortDesc = true
	}
	if filter.LoginType != model.ProviderEmail && filter.LoginType != model.ProviderGoogle {
		filter.LoginType = ""
	}
	return filter
}

// List は検索条件に一致するユーザーを1ページ分返す。
func (s *Service) List(ctx context.Context, filter model.UserFilter) (*Page, error) {
	filter = normalizeFilter(filter)

	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}

	lastPage := (total + filter.Limit - 1) / filter.Limit
	if lastPage < 1 {
		lastPage = 1
	}
	return &Page{
		Users:       users,
		Total:       total,
		CurrentPage: filter.Page,
		LastPage:    lastPage,
		PerPage:     filter.Limit,
	}, nil
}

// Stats はユーザー数の集計を返す。
func (s *Service) Stats(ctx context.Context) (*model.UserStats, error) {
	stats, err := s.users.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return stats, nil
}

// GrantAdmin は指定ユーザーに管理者権限を付与する。
func (s *Service) GrantAdmin(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		return nil, model.NewAlreadyAdminError()
	}
	return s.setRole(ctx, user, model.RoleAdmin)
}

// RevokeAdmin は指定ユーザーの管理者権限を取り消す。自分自身の権限は取り消せない。
func (s *Service) RevokeAdmin(ctx context.Context, actorID, id int64) (*model.User, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.ID == actorID {
		return nil, model.NewCannotRevokeSelfError()
	}
	if !user.IsAdmin() {
		return nil, model.NewNotAdminError()
	}
	return s.setRole(ctx, user, model.RoleUser)
}

// SetAdminByEmail はメールアドレスで指定したユーザーを管理者にする。コマンドラインから使う。
func (s *Service) SetAdminByEmail(ctx context.Context, email string) (*model.User, error) {
	normalized, err := auth.NormalizeEmail(email)
	if err != nil {
		return nil, model.NewValidationError("invalid email address")
	}
	user, err := s.users.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	if user.IsAdmin() {
		return nil, model.NewAlreadyAdminError()
	}
	return s.setRole(ctx, user, model.RoleAdmin)
}

// Export は検索条件に一致する全ユーザーをCSVでwに書き出し、excel_exportイベントを発行する。
// ページングは無視する。
func (s *Service) Export(ctx context.Context, actor *model.User, filter model.UserFilter, meta event.RequestMetadata, w io.Writer) (int, error) {
	filter = normalizeFilter(filter)
	filter.Page = 1
	filter.Limit = 0

	users, _, err := s.users.List(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to list users for export: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Name", "Email", "Login Type", "Role", "Registered At"}); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, u := range users {
		if err := cw.Write(exportRow(u)); err != nil {
			return 0, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush csv: %w", err)
	}

	slog.Info("user export downloaded",
		slog.Int64("actor_id", actor.ID),
		slog.Int("row_count", len(users)),
	)
	s.events.Publish(event.Event{Type: model.NotificationExcelExport, User: actor, Meta: meta})

	return len(users), nil
}

// ExportFilename はエクスポートファイル名を返す。
func (s *Service) ExportFilename() string {
	return fmt.Sprintf("users_%s.csv", s.now().Format("2006-01-02_150405"))
}

func exportRow(u *model.User) []string {
	loginType := "Email"
	if u.ProviderID != nil {
		loginType = "Google"
	}
	return []string{
		strconv.FormatInt(u.ID, 10),
		csvSafe(model.Deref(u.FullName)),
		csvSafe(model.Deref(u.Email)),
		loginType,
		string(u.Role),
		u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// csvSafe は表計算ソフトで数式として解釈される先頭文字を無害化する。
func csvSafe(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

func (s *Service) findUser(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) setRole(ctx context.Context, user *model.User, role model.Role) (*model.User, error) {
	if err := s.users.UpdateRole(ctx, user.ID, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	user.Role = role

	slog.Info("user role changed",
		slog.Int64("user_id", user.ID),
		slog.String("role", string(role)),
	)
	return user, nil
}
