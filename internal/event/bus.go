package event

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
)

// topicAuthEvent はドメインイベントを配送するトピック名。
const topicAuthEvent = "auth:event"

// Bus はasaskevich/EventBusによるインプロセスのイベントバス。
// 購読者は同期的に呼び出されるため、購読側は重い処理をバックグラウンドに委譲すること。
type Bus struct {
	bus EventBus.Bus
	now func() time.Time
}

// NewBus はBusを生成する。
func NewBus() *Bus {
	return &Bus{
		bus: EventBus.New(),
		now: time.Now,
	}
}

// Publish はイベントIDと発生時刻を補完して購読者に配送する。
// 購読者がpanicしても発行元には伝播させない。
func (b *Bus) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = b.now()
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("event subscriber panicked",
				slog.String("event_id", ev.ID),
				slog.String("type", string(ev.Type)),
				slog.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	b.bus.Publish(topicAuthEvent, ev)
}

// Subscribe はイベントの購読者を登録する。
func (b *Bus) Subscribe(fn func(ev Event)) error {
	if err := b.bus.Subscribe(topicAuthEvent, fn); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topicAuthEvent, err)
	}
	return nil
}

// compile-time interface check
var _ Publisher = (*Bus)(nil)
