package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/socialauth/internal/inbox"
	"github.com/hitoshi/socialauth/internal/model"
)

func TestNotificationHandler_List(t *testing.T) {
	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := &mockInboxService{
		listFn: func(ctx context.Context, viewer *model.User, page, limit int) (*inbox.Page, error) {
			if page != 2 || limit != 5 {
				t.Errorf("page=%d limit=%d, want 2/5", page, limit)
			}
			return &inbox.Page{
				Items: []*model.Notification{
					{ID: 9, Title: "👤 User Login", Type: model.NotificationUserLogin, CreatedAt: created},
				},
				Total:       6,
				CurrentPage: 2,
				LastPage:    2,
				PerPage:     5,
			}, nil
		},
	}
	req := withUser(httptest.NewRequest(http.MethodGet, "/api/notifications?page=2&limit=5", nil), &model.User{ID: 1, Role: model.RoleAdmin})
	w := httptest.NewRecorder()

	NewNotificationHandler(svc).List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body notificationListResponse
	decodeJSON(t, w, &body)
	if len(body.Data) != 1 || body.Data[0].Type != "user_login" || body.Data[0].Data == nil {
		t.Errorf("data = %+v", body.Data)
	}
	if body.Meta.Total != 6 || body.Meta.LastPage != 2 || body.Meta.CurrentPage != 2 {
		t.Errorf("meta = %+v", body.Meta)
	}
}

func TestNotificationHandler_List_DefaultPaging(t *testing.T) {
	svc := &mockInboxService{
		listFn: func(ctx context.Context, viewer *model.User, page, limit int) (*inbox.Page, error) {
			if page != 1 || limit != inbox.DefaultPageSize {
				t.Errorf("page=%d limit=%d", page, limit)
			}
			return &inbox.Page{Items: []*model.Notification{}, CurrentPage: 1, LastPage: 1, PerPage: limit}, nil
		},
	}
	w := httptest.NewRecorder()
	NewNotificationHandler(svc).List(w, withUser(httptest.NewRequest(http.MethodGet, "/api/notifications?page=abc", nil), &model.User{ID: 1}))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestNotificationHandler_UnreadCount(t *testing.T) {
	svc := &mockInboxService{
		unreadCountFn: func(ctx context.Context, viewer *model.User) (int, error) { return 4, nil },
	}
	w := httptest.NewRecorder()
	NewNotificationHandler(svc).UnreadCount(w, withUser(httptest.NewRequest(http.MethodGet, "/api/notifications/unread-count", nil), &model.User{ID: 1}))

	var body struct {
		Count int `json:"count"`
	}
	decodeJSON(t, w, &body)
	if body.Count != 4 {
		t.Errorf("count = %d, want 4", body.Count)
	}
}

func TestNotificationHandler_MarkRead(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		err        error
		wantStatus int
	}{
		{"success", "12", nil, http.StatusOK},
		{"not found", "12", model.NewNotificationNotFoundError(), http.StatusNotFound},
		{"forbidden", "12", model.NewNotificationForbiddenError(), http.StatusForbidden},
		{"invalid id", "abc", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockInboxService{
				markReadFn: func(ctx context.Context, viewer *model.User, id int64) (*model.Notification, error) {
					if id != 12 {
						t.Errorf("id = %d, want 12", id)
					}
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.Notification{ID: id, IsRead: true}, nil
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/api/notifications/"+tt.id+"/read", nil)
			req = withChiURLParam(withUser(req, &model.User{ID: 1}), "id", tt.id)
			w := httptest.NewRecorder()

			NewNotificationHandler(svc).MarkRead(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNotificationHandler_MarkAllRead(t *testing.T) {
	svc := &mockInboxService{
		markAllReadFn: func(ctx context.Context, viewer *model.User) (int64, error) { return 3, nil },
	}
	w := httptest.NewRecorder()
	NewNotificationHandler(svc).MarkAllRead(w, withUser(httptest.NewRequest(http.MethodPost, "/api/notifications/read-all", nil), &model.User{ID: 1}))

	var body struct {
		Message string `json:"message"`
		Updated int64  `json:"updated"`
	}
	decodeJSON(t, w, &body)
	if body.Updated != 3 || body.Message == "" {
		t.Errorf("body = %+v", body)
	}
}
