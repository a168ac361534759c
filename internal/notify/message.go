package notify

import (
	"fmt"
	"strconv"

	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/model"
)

// adminUsersLink は管理者通知のクリック時の遷移先。
const adminUsersLink = "/admin/users"

// Message はプッシュ通知の内容。
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Image string            `json:"image,omitempty"`
}

// adminMessage はイベントから管理者向けの通知内容を組み立てる。
// 対象外のイベント種別の場合はfalseを返す。
func adminMessage(ev event.Event) (Message, bool) {
	name := "A user"
	var userID string
	var avatar string
	if ev.User != nil {
		name = ev.User.DisplayName()
		userID = strconv.FormatInt(ev.User.ID, 10)
		avatar = model.Deref(ev.User.AvatarURL)
	}

	msg := Message{
		Data: map[string]string{
			"type":   string(ev.Type),
			"userId": userID,
			"link":   adminUsersLink,
		},
		Image: avatar,
	}

	switch ev.Type {
	case model.NotificationNewUser:
		channel := ev.Channel
		if channel == "" {
			channel = "Email"
		}
		msg.Title = "🎉 New User Registered"
		msg.Body = fmt.Sprintf("%s just signed up via %s", name, channel)
	case model.NotificationUserLogin:
		msg.Title = "👤 User Login"
		msg.Body = fmt.Sprintf("%s just logged in", name)
	case model.NotificationExcelExport:
		msg.Title = "📊 Excel Export Downloaded"
		msg.Body = fmt.Sprintf("%s downloaded user data export", name)
	default:
		return Message{}, false
	}
	return msg, true
}

// auditRecord は通知内容から管理者向けの監査レコードを生成する。
func auditRecord(ev event.Event, msg Message) *model.Notification {
	return &model.Notification{
		Title:     msg.Title,
		Body:      msg.Body,
		Type:      ev.Type,
		Data:      msg.Data,
		ForAdmins: true,
	}
}
