package repository

import (
	"context"
	"testing"

	"github.com/hitoshi/socialauth/internal/model"
)

func TestPostgresNotificationRepo_ImplementsInterface(t *testing.T) {
	var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
}

func TestPostgresNotificationRepo_InboxScopes(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	repo := NewPostgresNotificationRepo(db)
	ctx := context.Background()

	u := createTestUser(t, users, "inbox@example.com", model.RoleUser)

	adminNote := &model.Notification{
		Title:     "New User Registered",
		Body:      "someone just signed up",
		Type:      model.NotificationNewUser,
		Data:      map[string]string{"userId": "1", "link": "/admin/users"},
		ForAdmins: true,
	}
	if err := repo.Create(ctx, adminNote); err != nil {
		t.Fatalf("Create error = %v", err)
	}
	if err := repo.Create(ctx, &model.Notification{UserID: &u.ID, Title: "hi", Body: "b", Type: model.NotificationUserLogin}); err != nil {
		t.Fatalf("Create error = %v", err)
	}

	admin := InboxScope{ForAdmins: true}
	list, total, err := repo.List(ctx, admin, 0, 20)
	if err != nil {
		t.Fatalf("List error = %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("admin inbox = %d (total %d), want 1", len(list), total)
	}
	if list[0].Data["link"] != "/admin/users" {
		t.Errorf("Data[link] = %q, want %q", list[0].Data["link"], "/admin/users")
	}

	own := InboxScope{UserID: u.ID}
	if n, err := repo.CountUnread(ctx, own); err != nil || n != 1 {
		t.Fatalf("CountUnread = (%d, %v), want (1, nil)", n, err)
	}
	if n, err := repo.MarkAllRead(ctx, own); err != nil || n != 1 {
		t.Fatalf("MarkAllRead = (%d, %v), want (1, nil)", n, err)
	}
	if n, err := repo.CountUnread(ctx, admin); err != nil || n != 1 {
		t.Errorf("admin unread after user MarkAllRead = (%d, %v), want (1, nil)", n, err)
	}

	if err := repo.MarkRead(ctx, adminNote.ID); err != nil {
		t.Fatalf("MarkRead error = %v", err)
	}
	got, err := repo.FindByID(ctx, adminNote.ID)
	if err != nil {
		t.Fatalf("FindByID error = %v", err)
	}
	if !got.IsRead {
		t.Error("expected notification to be read")
	}
}
