// Package cleanup は不要になった通知データの定期削除ジョブを提供する。
// 無効化されたデバイストークンと、既読になって保持期間を過ぎた通知を日次で削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultTokenRetentionDays        = 30
	defaultNotificationRetentionDays = 180
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// target は1種類の削除対象。
type target struct {
	name  string
	query string
	days  int
}

// Job は保持期間を超過したデータの削除ジョブ。何度実行しても結果は変わらない。
type Job struct {
	db     Executor
	logger *slog.Logger

	TokenRetentionDays        int // 無効化されたトークンの保持日数（デフォルト: 30）
	NotificationRetentionDays int // 既読通知の保持日数（デフォルト: 180）
}

// NewJob は新しいJobを生成する。
func NewJob(db Executor, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		db:                        db,
		logger:                    logger,
		TokenRetentionDays:        defaultTokenRetentionDays,
		NotificationRetentionDays: defaultNotificationRetentionDays,
	}
}

func (j *Job) targets() []target {
	return []target{
		{
			name:  "device_tokens",
			query: `DELETE FROM device_tokens WHERE is_active = false AND updated_at < now() - $1::interval`,
			days:  j.TokenRetentionDays,
		},
		{
			name:  "notifications",
			query: `DELETE FROM notifications WHERE is_read = true AND updated_at < now() - $1::interval`,
			days:  j.NotificationRetentionDays,
		},
	}
}

// Run は保持期間を超過したデータを削除する。
// 保持日数が0以下の対象は削除しない。1つの対象が失敗しても残りの対象は処理する。
func (j *Job) Run(ctx context.Context) error {
	var firstErr error
	for _, t := range j.targets() {
		if t.days <= 0 {
			continue
		}
		if err := j.purge(ctx, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (j *Job) purge(ctx context.Context, t target) error {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, t.query, fmt.Sprintf("%d days", t.days))
	if err != nil {
		j.logger.Error("failed to purge expired rows",
			slog.String("table", t.name),
			slog.Int("retention_days", t.days),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to purge %s: %w", t.name, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get deleted count for %s: %w", t.name, err)
	}

	j.logger.Info("purged expired rows",
		slog.String("table", t.name),
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", t.days),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Schedule はctxがキャンセルされるまでintervalごとにRunを実行する。
// 起動直後に1回実行する。
func (j *Job) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// エラーはpurgeでログ済み
		_ = j.Run(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
