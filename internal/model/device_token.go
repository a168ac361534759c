package model

import "time"

// DeviceTypeWeb は端末種別が指定されなかった場合の既定値。
const DeviceTypeWeb = "web"

// DeviceToken はプッシュ通知の宛先となる端末トークンを表す。
// (UserID, Token) の組で一意になる。無効と判定されたトークンは削除せずIsActive=falseにする。
type DeviceToken struct {
	ID         int64
	UserID     int64
	Token      string
	DeviceType string
	DeviceName *string
	IsActive   bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
