// Package inbox は通知の受信箱（一覧・未読数・既読化）を提供する。
// 管理者は管理者向けの監査通知を、一般ユーザーは自分宛ての通知を参照する。
package inbox

import (
	"context"
	"fmt"

	"github.com/hitoshi/socialauth/internal/model"
	"github.com/hitoshi/socialauth/internal/repository"
)

const (
	// DefaultPageSize は1ページあたりの既定件数。
	DefaultPageSize = 20
	maxPageSize     = 100
)

// Page は通知一覧の1ページ分。
type Page struct {
	Items       []*model.Notification
	Total       int
	CurrentPage int
	LastPage    int
	PerPage     int
}

// Service は受信箱のサービス層。
type Service struct {
	notifications repository.NotificationRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(notifications repository.NotificationRepository) *Service {
	return &Service{notifications: notifications}
}

// scopeFor は閲覧者に応じた受信箱の範囲を返す。
func scopeFor(viewer *model.User) repository.InboxScope {
	if viewer.IsAdmin() {
		return repository.InboxScope{ForAdmins: true}
	}
	return repository.InboxScope{UserID: viewer.ID}
}

// List は受信箱の通知を新しい順に返す。
func (s *Service) List(ctx context.Context, viewer *model.User, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	items, total, err := s.notifications.List(ctx, scopeFor(viewer), (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	if items == nil {
		items = []*model.Notification{}
	}

	lastPage := (total + limit - 1) / limit
	if lastPage < 1 {
		lastPage = 1
	}
	return &Page{
		Items:       items,
		Total:       total,
		CurrentPage: page,
		LastPage:    lastPage,
		PerPage:     limit,
	}, nil
}

// UnreadCount は受信箱の未読件数を返す。
func (s *Service) UnreadCount(ctx context.Context, viewer *model.User) (int, error) {
	n, err := s.notifications.CountUnread(ctx, scopeFor(viewer))
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead は通知を既読にする。
// 存在しない場合はNOTIFICATION_NOT_FOUND、閲覧者の受信箱にない場合はNOTIFICATION_FORBIDDENを返す。
func (s *Service) MarkRead(ctx context.Context, viewer *model.User, id int64) (*model.Notification, error) {
	n, err := s.notifications.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find notification: %w", err)
	}
	if n == nil {
		return nil, model.NewNotificationNotFoundError()
	}
	if !visibleTo(n, viewer) {
		return nil, model.NewNotificationForbiddenError()
	}

	if !n.IsRead {
		if err := s.notifications.MarkRead(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to mark notification read: %w", err)
		}
		n.IsRead = true
	}
	return n, nil
}

// MarkAllRead は受信箱の未読通知をすべて既読にし、更新件数を返す。
func (s *Service) MarkAllRead(ctx context.Context, viewer *model.User) (int64, error) {
	n, err := s.notifications.MarkAllRead(ctx, scopeFor(viewer))
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return n, nil
}

func visibleTo(n *model.Notification, viewer *model.User) bool {
	if n.ForAdmins {
		return viewer.IsAdmin()
	}
	return n.UserID != nil && *n.UserID == viewer.ID
}
