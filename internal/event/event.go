// Package event は認証・管理操作で発生するドメインイベントと、その配送バスを提供する。
package event

import (
	"time"

	"github.com/hitoshi/socialauth/internal/model"
)

// RequestMetadata はイベントを発生させたHTTPリクエストの情報。
// ログイン通知メールに記載する。
type RequestMetadata struct {
	IPAddress string
	UserAgent string
}

// Event は管理者通知の起点となるドメインイベント。
type Event struct {
	ID         string
	Type       model.NotificationType
	User       *model.User
	Channel    string // 登録経路の表示名（"Email", "Google"）。new_userのみ使用
	Meta       RequestMetadata
	OccurredAt time.Time
}

// Publisher はイベントの発行インターフェース。
// 発行は呼び出し元の処理結果に影響してはならないため、エラーを返さない。
type Publisher interface {
	Publish(ev Event)
}

// PublisherFunc は関数をPublisherとして扱うためのアダプタ。
type PublisherFunc func(ev Event)

// Publish はfを呼び出す。
func (f PublisherFunc) Publish(ev Event) {
	f(ev)
}

// NopPublisher はイベントを破棄するPublisher。
var NopPublisher Publisher = PublisherFunc(func(Event) {})
