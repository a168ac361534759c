package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"

	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/model"
	"github.com/hitoshi/socialauth/internal/repository"
	"github.com/hitoshi/socialauth/internal/worker/task"
)

// TaskRunner はバックグラウンドタスクの投入先。
type TaskRunner interface {
	Go(name string, fn task.Func) bool
}

// DispatcherConfig はDispatcherの依存関係。
type DispatcherConfig struct {
	Runner        TaskRunner
	Notifications repository.NotificationRepository
	Pusher        *AdminPusher
	Email         *EmailChannel
	Relay         Relay // nilの場合は転送しない
	Logger        *slog.Logger
	Recorder      Recorder
}

// Dispatcher はドメインイベントを各チャネルの配送タスクに変換する。
// Dispatchは呼び出し元をブロックせず、配送結果も返さない。
type Dispatcher struct {
	runner        TaskRunner
	notifications repository.NotificationRepository
	pusher        *AdminPusher
	email         *EmailChannel
	relay         Relay
	logger        *slog.Logger
	recorder      Recorder
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		runner:        cfg.Runner,
		notifications: cfg.Notifications,
		pusher:        cfg.Pusher,
		email:         cfg.Email,
		relay:         cfg.Relay,
		logger:        cfg.Logger,
		recorder:      cfg.Recorder,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.recorder == nil {
		d.recorder = nopRecorder{}
	}
	return d
}

// Subscribe はイベントバスにDispatchを購読者として登録する。
func (d *Dispatcher) Subscribe(bus *event.Bus) error {
	return bus.Subscribe(d.Dispatch)
}

// Dispatch はイベントに応じた配送タスクを投入して即座に返る。
func (d *Dispatcher) Dispatch(ev event.Event) {
	if _, ok := adminMessage(ev); !ok {
		d.logger.Warn("unsupported notification event", slog.String("type", string(ev.Type)))
		return
	}

	d.runner.Go("admin_notify:"+string(ev.Type), func(ctx context.Context) error {
		return d.notifyAdmins(ctx, ev)
	})

	if d.email != nil && ev.User != nil {
		switch ev.Type {
		case model.NotificationNewUser, model.NotificationUserLogin:
			d.runner.Go("user_email:"+string(ev.Type), func(ctx context.Context) error {
				return d.emailUser(ctx, ev)
			})
		}
	}
}

// notifyAdmins は監査レコードを保存してから管理者へプッシュ通知を送る。
// 保存に失敗した場合はプッシュ通知を送らない。
func (d *Dispatcher) notifyAdmins(ctx context.Context, ev event.Event) error {
	msg, _ := adminMessage(ev)

	// 1. 監査レコードを保存
	record := auditRecord(ev, msg)
	if err := d.notifications.Create(ctx, record); err != nil {
		d.recorder.RecordDelivery(ChannelAudit, OutcomeFailed)
		return fmt.Errorf("failed to persist admin notification, push skipped: %w", err)
	}
	d.recorder.RecordDelivery(ChannelAudit, OutcomeSent)

	// 2. 外部への転送（失敗してもプッシュは続行）
	if d.relay != nil {
		if err := d.relay.Relay(ctx, record); err != nil {
			d.recorder.RecordDelivery(ChannelRelay, OutcomeFailed)
			d.logger.Error("failed to relay admin notification",
				slog.Int64("notification_id", record.ID),
				slog.String("error", err.Error()),
			)
		} else {
			d.recorder.RecordDelivery(ChannelRelay, OutcomeSent)
		}
	}

	// 3. 管理者へプッシュ通知
	if d.pusher == nil {
		return nil
	}
	data := maps.Clone(msg.Data)
	data["notificationId"] = strconv.FormatInt(record.ID, 10)
	msg.Data = data
	if _, err := d.pusher.Push(ctx, msg); err != nil {
		return err
	}
	return nil
}

// emailUser はイベントの対象ユーザーへメールを送る。
// 新規登録ではウェルカムメールとログイン通知を独立に送り、一方の失敗が他方を妨げない。
func (d *Dispatcher) emailUser(ctx context.Context, ev event.Event) error {
	var errs []error

	if ev.Type == model.NotificationNewUser {
		if _, err := d.email.SendWelcome(ctx, ev.User); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := d.email.SendLoginNotice(ctx, ev.User, ev.Meta); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
