// Package notify はドメインイベントを管理者向けのプッシュ通知・監査記録と、
// ユーザー向けのメールに変換して配送する。
// 配送はすべてベストエフォートで、失敗は記録するだけで再送しない。
package notify

// Outcome はチャネルごとの配送結果。
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeThrottled Outcome = "throttled"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomePartial   Outcome = "partial" // 一部の宛先にのみ配送できた
)

// チャネル名。メトリクスのラベルに使う。
const (
	ChannelPush    = "push"
	ChannelAudit   = "audit"
	ChannelWelcome = "email_welcome"
	ChannelLogin   = "email_login"
	ChannelRelay   = "relay"
)

// Recorder は配送結果を記録する。
type Recorder interface {
	RecordDelivery(channel string, outcome Outcome)
	RecordTokensDeactivated(count int)
}

type nopRecorder struct{}

func (nopRecorder) RecordDelivery(string, Outcome) {}
func (nopRecorder) RecordTokensDeactivated(int)     {}
