package model

import "time"

// NotificationType は監査通知の種別を表す。
type NotificationType string

const (
	NotificationNewUser     NotificationType = "new_user"
	NotificationUserLogin   NotificationType = "user_login"
	NotificationExcelExport NotificationType = "excel_export"
)

// Notification は永続化される通知レコード。
// システムイベント由来のレコードはUserIDがnilでForAdmins=trueになる。
type Notification struct {
	ID        int64
	UserID    *int64
	Title     string
	Body      string
	Type      NotificationType
	Data      map[string]string
	IsRead    bool
	ForAdmins bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
