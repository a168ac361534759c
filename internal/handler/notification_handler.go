package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/socialauth/internal/inbox"
	"github.com/hitoshi/socialauth/internal/model"
)

// InboxService は通知ハンドラーが必要とするサービスインターフェース。
type InboxService interface {
	List(ctx context.Context, viewer *model.User, page, limit int) (*inbox.Page, error)
	UnreadCount(ctx context.Context, viewer *model.User) (int, error)
	MarkRead(ctx context.Context, viewer *model.User, id int64) (*model.Notification, error)
	MarkAllRead(ctx context.Context, viewer *model.User) (int64, error)
}

// NotificationHandler は受信箱関連のHTTPハンドラー。
// 管理者は管理者向け通知、一般ユーザーは自分宛ての通知を扱う。
type NotificationHandler struct {
	service InboxService
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(service InboxService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type notificationResponse struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Type      string            `json:"type"`
	Data      map[string]string `json:"data"`
	IsRead    bool              `json:"isRead"`
	CreatedAt string            `json:"createdAt"`
}

type pageMeta struct {
	Total       int `json:"total"`
	PerPage     int `json:"perPage"`
	CurrentPage int `json:"currentPage"`
	LastPage    int `json:"lastPage"`
	FirstPage   int `json:"firstPage"`
}

type notificationListResponse struct {
	Data []notificationResponse `json:"data"`
	Meta pageMeta               `json:"meta"`
}

// List は受信箱の通知を新しい順に返す。
// GET /api/notifications?page=1&limit=20
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	page, err := h.service.List(r.Context(), user,
		queryInt(r, "page", 1),
		queryInt(r, "limit", inbox.DefaultPageSize),
	)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := make([]notificationResponse, 0, len(page.Items))
	for _, n := range page.Items {
		data = append(data, toNotificationResponse(n))
	}
	writeJSON(w, r, http.StatusOK, notificationListResponse{
		Data: data,
		Meta: pageMeta{
			Total:       page.Total,
			PerPage:     page.PerPage,
			CurrentPage: page.CurrentPage,
			LastPage:    page.LastPage,
			FirstPage:   1,
		},
	})
}

// UnreadCount は未読件数を返す。
// GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"count": count})
}

// MarkRead は通知を既読にする。
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if _, err := h.service.MarkRead(r.Context(), user, id); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, messageResponse{Message: "Notification marked as read"})
}

// MarkAllRead は受信箱の通知をすべて既読にする。
// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"message": "All notifications marked as read",
		"updated": updated,
	})
}

func toNotificationResponse(n *model.Notification) notificationResponse {
	data := n.Data
	if data == nil {
		data = map[string]string{}
	}
	return notificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Body:      n.Body,
		Type:      string(n.Type),
		Data:      data,
		IsRead:    n.IsRead,
		CreatedAt: formatTime(n.CreatedAt),
	}
}
