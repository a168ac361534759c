// Package task はリクエスト処理から切り離したバックグラウンドタスクの実行を提供する。
// 通知送信のように結果をレスポンスに反映しない処理を、タイムアウト付きで非同期に実行する。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultMaxConcurrent = 16
)

// Func はバックグラウンドで実行されるタスク。
// ctxはタスクごとのタイムアウトでキャンセルされる。
type Func func(ctx context.Context) error

// Observer はタスクの完了を記録する。メトリクス収集に使う。
type Observer interface {
	ObserveTask(name string, err error, duration time.Duration)
}

// Runner はタスクを呼び出し元をブロックせずに実行する。
// 同時実行数はsemaphoreで制限し、上限を超えたタスクは待機用のgoroutineで順番を待つ。
type Runner struct {
	logger   *slog.Logger
	timeout  time.Duration
	sem      chan struct{}
	observer Observer

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// Option はRunnerの設定を変更する。
type Option func(*Runner)

// WithObserver はタスク完了時に呼ばれるObserverを設定する。
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// NewRunner はRunnerを生成する。
// timeoutまたはmaxConcurrentが0以下の場合はデフォルト値（10秒、16並列）を使用する。
func NewRunner(logger *slog.Logger, timeout time.Duration, maxConcurrent int, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	r := &Runner{
		logger:  logger,
		timeout: timeout,
		sem:     make(chan struct{}, maxConcurrent),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Go はタスクを非同期に実行する。呼び出し元はタスクの完了を待たない。
// タスクのエラーやpanicはログに記録するだけで呼び出し元には伝播しない。
// Wait開始後に投入されたタスクは実行せずに破棄し、falseを返す。
func (r *Runner) Go(name string, fn Func) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("タスクランナーは停止済みのためタスクを破棄しました",
			slog.String("task", name),
		)
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		r.sem <- struct{}{} // semaphore取得
		defer func() { <-r.sem }()

		r.run(name, fn)
	}()
	return true
}

func (r *Runner) run(name string, fn Func) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	taskID := uuid.NewString()
	start := time.Now()
	err := r.safeCall(ctx, fn)
	duration := time.Since(start)

	if r.observer != nil {
		r.observer.ObserveTask(name, err, duration)
	}

	if err != nil {
		r.logger.Error("バックグラウンドタスクが失敗しました",
			slog.String("task_id", taskID),
			slog.String("task", name),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		return
	}
	r.logger.Debug("バックグラウンドタスクが完了しました",
		slog.String("task_id", taskID),
		slog.String("task", name),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
}

// safeCall はタスクのpanicをエラーに変換する。
func (r *Runner) safeCall(ctx context.Context, fn Func) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return fn(ctx)
}

// Wait は新しいタスクの受け付けを停止し、実行中のタスクの完了を待つ。
// ctxが先にキャンセルされた場合はctx.Err()を返す。
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain は受け付けを止めずに、その時点で投入済みのタスクの完了を待つ。
// テストで非同期処理の結果を検証する際に使う。
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
