package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hitoshi/socialauth/internal/model"
)

// Relay は永続化済みの監査レコードを外部の購読者へ転送する。
type Relay interface {
	Relay(ctx context.Context, n *model.Notification) error
}

// relayMessage はキューに流すメッセージの形式。
type relayMessage struct {
	ID        int64             `json:"id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// amqpChannel はAMQPチャネルのうちRelayが使う操作。
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPRelay はRabbitMQの永続キューに監査レコードを転送する。
type AMQPRelay struct {
	conn    *amqp.Connection
	channel amqpChannel
	queue   string
}

// NewAMQPRelay はRabbitMQに接続し、永続キューを宣言してAMQPRelayを生成する。
func NewAMQPRelay(url, queue string) (*AMQPRelay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare amqp queue %s: %w", queue, err)
	}

	return &AMQPRelay{conn: conn, channel: ch, queue: q.Name}, nil
}

// Relay は監査レコードをJSONにしてキューへ発行する。
func (r *AMQPRelay) Relay(ctx context.Context, n *model.Notification) error {
	body, err := json.Marshal(relayMessage{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode relay message: %w", err)
	}

	if err := r.channel.PublishWithContext(ctx, "", r.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         string(n.Type),
	}); err != nil {
		return fmt.Errorf("failed to publish relay message: %w", err)
	}
	return nil
}

// Close はチャネルと接続を閉じる。
func (r *AMQPRelay) Close() {
	_ = r.channel.Close()
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

// compile-time interface check
var _ Relay = (*AMQPRelay)(nil)
