package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/socialauth/internal/repository"
)

// 送信先トークンが今後も使えないことを表すエラー。該当トークンは無効化される。
var (
	// ErrTokenInvalid はトークンの形式や宛先が不正であることを表す。
	ErrTokenInvalid = errors.New("push token is invalid")
	// ErrTokenUnregistered はプッシュサービスがトークンを登録解除済みと応答したことを表す。
	ErrTokenUnregistered = errors.New("push token is unregistered")
)

// SendResult はトークン1件ごとの送信結果。
type SendResult struct {
	Token string
	Err   error
}

// PushSender は複数トークンへのマルチキャスト送信を行う。
// 結果はtokensと同じ順序で返す。
type PushSender interface {
	SendMulticast(ctx context.Context, tokens []string, msg Message) ([]SendResult, error)
}

// FanoutReport はプッシュ配信1回分の集計。
type FanoutReport struct {
	Outcome     Outcome
	Success     int
	Failure     int
	Deactivated int
}

// AdminPusher は管理者の有効なトークンすべてにプッシュ通知を配信する。
type AdminPusher struct {
	tokens   repository.DeviceTokenRepository
	sender   PushSender
	logger   *slog.Logger
	recorder Recorder
}

// NewAdminPusher はAdminPusherを生成する。senderがnilの場合、配信は常にスキップされる。
func NewAdminPusher(tokens repository.DeviceTokenRepository, sender PushSender, logger *slog.Logger, recorder Recorder) *AdminPusher {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &AdminPusher{tokens: tokens, sender: sender, logger: logger, recorder: recorder}
}

// Push は管理者トークンへ通知を送り、無効・登録解除済みのトークンを無効化する。
// トークンは削除せずis_active=falseにする。
func (p *AdminPusher) Push(ctx context.Context, msg Message) (FanoutReport, error) {
	report, err := p.push(ctx, msg)
	p.recorder.RecordDelivery(ChannelPush, report.Outcome)
	return report, err
}

func (p *AdminPusher) push(ctx context.Context, msg Message) (FanoutReport, error) {
	if p.sender == nil {
		p.logger.Debug("push sender is not configured, skipping")
		return FanoutReport{Outcome: OutcomeSkipped}, nil
	}

	// 1. 管理者の有効なトークンを取得
	tokens, err := p.tokens.ListActiveAdminTokens(ctx)
	if err != nil {
		return FanoutReport{Outcome: OutcomeFailed}, fmt.Errorf("failed to list admin tokens: %w", err)
	}
	if len(tokens) == 0 {
		p.logger.Info("no active admin push tokens, skipping")
		return FanoutReport{Outcome: OutcomeSkipped}, nil
	}

	// 2. マルチキャスト送信
	results, err := p.sender.SendMulticast(ctx, tokens, msg)
	if err != nil {
		return FanoutReport{Outcome: OutcomeFailed, Failure: len(tokens)}, fmt.Errorf("failed to send push multicast: %w", err)
	}

	// 3. 結果を集計し、使えないトークンを抽出
	var report FanoutReport
	var stale []string
	for _, r := range results {
		if r.Err == nil {
			report.Success++
			continue
		}
		report.Failure++
		if errors.Is(r.Err, ErrTokenInvalid) || errors.Is(r.Err, ErrTokenUnregistered) {
			stale = append(stale, r.Token)
		}
	}

	// 4. 使えないトークンを無効化
	if len(stale) > 0 {
		n, err := p.tokens.Deactivate(ctx, stale)
		if err != nil {
			p.logger.Error("failed to deactivate push tokens",
				slog.Int("count", len(stale)),
				slog.String("error", err.Error()),
			)
		} else {
			report.Deactivated = int(n)
			p.recorder.RecordTokensDeactivated(int(n))
		}
	}

	switch {
	case report.Failure == 0:
		report.Outcome = OutcomeSent
	case report.Success == 0:
		report.Outcome = OutcomeFailed
	default:
		report.Outcome = OutcomePartial
	}

	p.logger.Info("admin push notification sent",
		slog.Int("success_count", report.Success),
		slog.Int("failure_count", report.Failure),
		slog.Int("deactivated_count", report.Deactivated),
	)
	return report, nil
}
