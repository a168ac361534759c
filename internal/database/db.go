package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// コネクションプール設定。APIプロセス1台で単一のPostgreSQLを共有する前提の値。
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// Open はPostgreSQLの接続プールを作成する。接続は試行しない。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return db, nil
}

// Pinger は接続確認ができるDB。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// WaitReady はDBが応答するまで最大attempts回Pingを繰り返す。
// コンテナ起動直後はDBの準備が終わっていないことがあるため、起動時に使う。
// 待機間隔は1回ごとに2倍にする（上限5秒）。
func WaitReady(ctx context.Context, db Pinger, attempts int, initialDelay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := initialDelay

	var err error
	for i := 1; i <= attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		slog.Warn("database is not ready, retrying",
			slog.Int("attempt", i),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("database readiness wait aborted: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > 5*time.Second {
			delay = 5 * time.Second
		}
	}
	return fmt.Errorf("database is not reachable after %d attempts: %w", attempts, err)
}
